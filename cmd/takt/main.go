package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds the daemon connection flags for client commands.
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

// ProcessFlags holds flags for process lifecycle commands.
type ProcessFlags struct {
	ID            string
	Justification string
	Delta         float64
}

// RegisterFlags holds flags for the register command.
type RegisterFlags struct {
	ID          string
	Name        string
	Kind        string
	TargetUnits float64
	Rate        float64
}

// PresenceFlags holds flags for check-in/check-out commands.
type PresenceFlags struct {
	WorkerID      string
	ProcessID     string
	Role          string
	Justification string
}

// BulkExitFlags holds flags for the bulk-exit command.
type BulkExitFlags struct {
	ProcessID     string
	Credential    string
	Justification string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}

	root := createRootCommand(globalFlags, apiFlags)
	taktCommand := command{api: apiFlags}

	root.AddCommand(
		createServeCommand(globalFlags),
		createLoginCommand(taktCommand),
		createLogoutCommand(),
		createRegisterCommand(taktCommand),
		createStatusCommand(taktCommand),
		createEstimateCommand(taktCommand),
		createStartCommand(taktCommand),
		createPauseCommand(taktCommand),
		createResumeCommand(taktCommand),
		createFinishCommand(taktCommand),
		createAdjustCommand(taktCommand),
		createTimerCommand(taktCommand),
		createCheckInCommand(taktCommand),
		createCheckOutCommand(taktCommand),
		createBulkExitCommand(taktCommand),
		createJustificationsCommand(taktCommand),
	)

	return root
}

func createRootCommand(flags *GlobalFlags, api *APIFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "takt",
		Short: "Shop-floor progress and presence tracking",
		Long: `Takt tracks production processes on the shop floor: live completion
estimates, worker presence, and the end-of-run grace window.

Examples:
  takt serve --config=config.toml            # Start the daemon
  takt login --username=luis                 # Obtain an API token
  takt status --id=pack-1                    # Live estimate for one process
  takt check-in --worker=w1 --process=pack-1 --role=core`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	root.PersistentFlags().StringVar(&api.URL, "api-url", "http://localhost:8080", "daemon URL")
	root.PersistentFlags().DurationVar(&api.Timeout, "api-timeout", 10*time.Second, "request timeout")

	return root
}

func createRegisterCommand(c command) *cobra.Command {
	flags := &RegisterFlags{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new process (supervisor only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Register(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "process id (required)")
	cmd.Flags().StringVar(&flags.Name, "name", "", "display name")
	cmd.Flags().StringVar(&flags.Kind, "kind", "packaging", "process kind: packaging, other or annex")
	cmd.Flags().Float64Var(&flags.TargetUnits, "target", 0, "target units")
	cmd.Flags().Float64Var(&flags.Rate, "rate", 0, "units per core worker per minute")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createStatusCommand(c command) *cobra.Command {
	flags := &ProcessFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show process status with the live estimate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "process id (all processes when empty)")
	return cmd
}

func createEstimateCommand(c command) *cobra.Command {
	flags := &ProcessFlags{}
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Show only the live estimate for a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Estimate(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "process id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createStartCommand(c command) *cobra.Command {
	flags := &ProcessFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a registered process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "process id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createPauseCommand(c command) *cobra.Command {
	flags := &ProcessFlags{}
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause a running process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Pause(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "process id (required)")
	cmd.Flags().StringVar(&flags.Justification, "justification", "", "pause justification (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createResumeCommand(c command) *cobra.Command {
	flags := &ProcessFlags{}
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Resume(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "process id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createFinishCommand(c command) *cobra.Command {
	flags := &ProcessFlags{}
	cmd := &cobra.Command{
		Use:   "finish",
		Short: "Finish a process and check out its crew",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Finish(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "process id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createAdjustCommand(c command) *cobra.Command {
	flags := &ProcessFlags{}
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Apply a manual correction to the completed-units counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Adjust(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "process id (required)")
	cmd.Flags().Float64Var(&flags.Delta, "delta", 0, "units to add (negative to subtract)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createTimerCommand(c command) *cobra.Command {
	flags := &ProcessFlags{}
	cmd := &cobra.Command{
		Use:   "timer <op>",
		Short: "Drive a sub-timer: setup_start, setup_finish, quality_call, rework_start, ...",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Timer(*flags, args[0])
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "process id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createCheckInCommand(c command) *cobra.Command {
	flags := &PresenceFlags{}
	cmd := &cobra.Command{
		Use:   "check-in",
		Short: "Check a worker in on a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.CheckIn(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.WorkerID, "worker", "", "worker id (required)")
	cmd.Flags().StringVar(&flags.ProcessID, "process", "", "process id (required)")
	cmd.Flags().StringVar(&flags.Role, "role", "core", "role: core or support")
	if err := cmd.MarkFlagRequired("worker"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("process"); err != nil {
		panic(err)
	}
	return cmd
}

func createCheckOutCommand(c command) *cobra.Command {
	flags := &PresenceFlags{}
	cmd := &cobra.Command{
		Use:   "check-out",
		Short: "Check a worker out of their current process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.CheckOut(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.WorkerID, "worker", "", "worker id (required)")
	cmd.Flags().StringVar(&flags.Justification, "justification", "", "exit justification (required)")
	if err := cmd.MarkFlagRequired("worker"); err != nil {
		panic(err)
	}
	return cmd
}

func createBulkExitCommand(c command) *cobra.Command {
	flags := &BulkExitFlags{}
	cmd := &cobra.Command{
		Use:   "bulk-exit",
		Short: "Check out every worker on a process under one authorization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.BulkExit(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ProcessID, "process", "", "process id (required)")
	cmd.Flags().StringVar(&flags.Credential, "credential", "", "authorizer badge or id (required)")
	cmd.Flags().StringVar(&flags.Justification, "justification", "", "exit justification (required)")
	if err := cmd.MarkFlagRequired("process"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("credential"); err != nil {
		panic(err)
	}
	return cmd
}

func createJustificationsCommand(c command) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "justifications",
		Short: "List the canned justification texts for a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Justifications(category)
		},
	}
	cmd.Flags().StringVar(&category, "category", "pause", "pause or exit")
	return cmd
}

func createLoginCommand(c command) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the daemon and store the API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Login(username, password)
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username (required)")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	if err := cmd.MarkFlagRequired("username"); err != nil {
		panic(err)
	}
	return cmd
}

func createLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NewSessionManager().ClearSession(); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}
