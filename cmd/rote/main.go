// Command rote runs tasks declared in a JavaScript build file. Flags and
// exit codes follow original_source's components/rote/main.rs: 0 on
// success, 1 for a loading or task failure, 2 for a usage error. Built
// on cobra, the CLI framework used throughout the retrieval pack's
// task-runner manifests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/rote/internal/config"
	"github.com/aristath/rote/internal/events"
	"github.com/aristath/rote/internal/history"
	"github.com/aristath/rote/internal/rerr"
	"github.com/aristath/rote/internal/runner"
	"github.com/aristath/rote/internal/script"
	"github.com/aristath/rote/internal/tui"
)

var rootFlags struct {
	directory  string
	file       string
	jobs       int
	dryRun     bool
	alwaysMake bool
	list       bool
	quiet      bool
	verbose    int
	version    bool
	profile    string
	watch      bool
	vars       []string
	include    []string
}

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCommand()
	enteredRunE := false
	cmd.RunE = wrapRunE(cmd.RunE, &enteredRunE)

	if err := cmd.Execute(); err != nil {
		if !enteredRunE {
			// Cobra rejected the flags/args before RunE ran: a usage error.
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		if _, ok := err.(usageError); ok {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		return 1
	}
	return 0
}

func wrapRunE(inner func(*cobra.Command, []string) error, entered *bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		*entered = true
		return inner(cmd, args)
	}
}

// usageError marks an error as a command-line misuse (exit code 2)
// rather than a build failure (exit code 1).
type usageError struct{ error }

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rote [flags] [task...]",
		Short:         "A JavaScript-scripted build task runner",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args)
		},
	}

	cmd.Flags().StringVarP(&rootFlags.directory, "directory", "C", "", "Change to DIRECTORY before running tasks")
	cmd.Flags().StringVarP(&rootFlags.file, "file", "f", "", "Read FILE as the build file")
	cmd.Flags().IntVarP(&rootFlags.jobs, "jobs", "j", 0, "The number of jobs to run simultaneously")
	cmd.Flags().BoolVarP(&rootFlags.dryRun, "dry-run", "d", false, "Don't actually perform any action")
	cmd.Flags().BoolVarP(&rootFlags.alwaysMake, "always-make", "B", false, "Unconditionally run all tasks")
	cmd.Flags().BoolVarP(&rootFlags.list, "list", "l", false, "List available tasks")
	cmd.Flags().BoolVarP(&rootFlags.quiet, "quiet", "q", false, "Suppress all non-task output")
	cmd.Flags().CountVarP(&rootFlags.verbose, "verbose", "v", "Enable verbose logging (repeatable)")
	cmd.Flags().BoolVarP(&rootFlags.version, "version", "V", false, "Print the program version and exit")
	cmd.Flags().StringVar(&rootFlags.profile, "profile", "", "Named configuration profile to apply")
	cmd.Flags().BoolVar(&rootFlags.watch, "watch", false, "Show a live dashboard while running")
	cmd.Flags().StringArrayVar(&rootFlags.vars, "var", nil, "Set a build-file variable (name=value), repeatable")
	cmd.Flags().StringArrayVarP(&rootFlags.include, "include", "I", nil, "Add a module include path, repeatable")

	cmd.AddCommand(newLogCommand())

	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	if rootFlags.version {
		fmt.Printf("rote version %s\n", version)
		return nil
	}

	logger := rerr.NewLogger(rerr.LevelFromFlags(rootFlags.quiet, rootFlags.verbose))

	if rootFlags.directory != "" {
		if err := os.Chdir(rootFlags.directory); err != nil {
			logger.Errorf("failed to change directory to %q", rootFlags.directory)
			return fmt.Errorf("chdir: %w", err)
		}
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		logger.Errorf("loading config: %v", err)
		return err
	}
	profile := cfg.Profile(rootFlags.profile)

	buildFile := rootFlags.file
	if buildFile == "" {
		buildFile = cfg.BuildFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := runner.New(buildFile, script.New())
	if err != nil {
		logger.Errorf("%v", err)
		return err
	}
	r.SetLogger(logger)

	jobs := rootFlags.jobs
	if jobs == 0 {
		jobs = profile.Jobs
	}
	if jobs > 0 {
		r.Jobs(jobs)
	}
	if rootFlags.dryRun {
		r.DryRun()
	}
	if rootFlags.alwaysMake {
		r.AlwaysRun()
	}
	for _, p := range profile.IncludePaths {
		r.IncludePath(p)
	}
	for _, p := range rootFlags.include {
		r.IncludePath(p)
	}
	for name, value := range profile.Variables {
		r.SetVar(name, value)
	}
	for _, kv := range rootFlags.vars {
		name, value, ok := splitVar(kv)
		if !ok {
			return usageError{fmt.Errorf("invalid --var %q, expected name=value", kv)}
		}
		r.SetVar(name, value)
	}

	bus := events.NewBus()
	defer bus.Close()
	r.SetEventBus(bus)

	if histDB := filepath.Join(".rote", "history.db"); histDB != "" {
		if h, err := history.Open(ctx, histDB); err == nil {
			r.SetHistory(h)
			defer h.Close()
		} else {
			logger.Warnf("history disabled: %v", err)
		}
	}

	if err := r.Load(ctx); err != nil {
		logger.Errorf("%v", err)
		return err
	}

	if rootFlags.list {
		printTaskList(r)
		return nil
	}

	var program *tea.Program
	var programDone chan error
	if rootFlags.watch {
		model := tui.New(bus)
		program = tea.NewProgram(model, tea.WithAltScreen())
		programDone = make(chan error, 1)
		go func() {
			_, err := program.Run()
			programDone <- err
		}()
	}

	runErr := runTasks(ctx, r, args)

	if program != nil {
		program.Quit()
		<-programDone
	}

	if runErr != nil {
		logger.Errorf("%v", runErr)
		return runErr
	}

	return nil
}

func runTasks(ctx context.Context, r *runner.Runner, args []string) error {
	if len(args) == 0 {
		return r.RunDefault(ctx)
	}
	return r.Run(ctx, args)
}

func printTaskList(r *runner.Runner) {
	fmt.Println("Available tasks:")
	for _, t := range r.TaskList() {
		if t.Description != "" {
			fmt.Printf("  %-16s%s\n", t.Name, t.Description)
		} else {
			fmt.Printf("  %s\n", t.Name)
		}
	}
	if name, ok := r.DefaultTask(); ok {
		fmt.Println()
		fmt.Printf("Default task: %s\n", name)
	}
}

func newLogCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent build runs recorded in .rote/history.db",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			h, err := history.Open(ctx, filepath.Join(".rote", "history.db"))
			if err != nil {
				return fmt.Errorf("opening history: %w", err)
			}
			defer h.Close()

			runs, err := h.RecentRuns(ctx, limit)
			if err != nil {
				return fmt.Errorf("querying history: %w", err)
			}

			for _, r := range runs {
				status := "ok"
				if !r.Succeeded {
					status = "FAILED"
				}
				fmt.Printf("%s  %-6s  %-20s  %s -> %s\n",
					r.ID, status, r.Targets, r.StartedAt.Format("2006-01-02 15:04:05"), r.FinishedAt.Format("15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	return cmd
}

func splitVar(kv string) (name, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}
