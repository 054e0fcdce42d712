package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/demml/potatohead-go/config"
	"github.com/demml/potatohead-go/logging"
	"github.com/demml/potatohead-go/store"
	"github.com/demml/potatohead-go/workflow"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "potatohead",
		Short: "Multi-provider LLM workflow runner",
		Long:  "Potatohead runs DAGs of dependent generation tasks across OpenAI, Anthropic and Gemini agents.",
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newEventsCommand())
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, _ := cmd.Flags().GetStringArray("param")
			eventsDB, _ := cmd.Flags().GetString("events-db")
			logLevel, _ := cmd.Flags().GetString("log-level")
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}

			globalContext, err := parseParams(params)
			if err != nil {
				return err
			}

			logger := logging.NewSlogLogger(parseLogLevel(logLevel), "text", false)
			wf, err := cfg.Build(cmd.Context(), func(o *config.BuildOptions) {
				o.Logger = logger
				o.GlobalContext = globalContext
			})
			if err != nil {
				return err
			}

			run, runErr := wf.Run(cmd.Context())

			if eventsDB != "" && run != nil {
				db, err := store.Open(eventsDB)
				if err != nil {
					return fmt.Errorf("open events db: %w", err)
				}
				defer db.Close()
				if err := db.SaveEvents(run.Events()); err != nil {
					return fmt.Errorf("save events: %w", err)
				}
			}

			if run != nil {
				if err := printRun(run, asJSON); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringArrayP("param", "p", nil, "Global parameter binding as key=value (repeatable)")
	cmd.Flags().String("events-db", "", "SQLite path for persisting run events")
	cmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().Bool("json", false, "Print the run result as JSON")
	return cmd
}

func newPlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <workflow.yaml>",
		Short: "Print the dispatch levels of a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			for i, level := range cfg.Plan() {
				fmt.Printf("level %d: %s\n", i+1, strings.Join(level, ", "))
			}
			return nil
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Validate a workflow definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d agents, %d tasks, %d levels\n",
				cfg.Name, len(cfg.Agents), len(cfg.Tasks), len(cfg.Plan()))
			return nil
		},
	}
}

func newEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "Show the persisted events of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventsDB, _ := cmd.Flags().GetString("events-db")
			if eventsDB == "" {
				return fmt.Errorf("--events-db is required")
			}

			db, err := store.Open(eventsDB)
			if err != nil {
				return fmt.Errorf("open events db: %w", err)
			}
			defer db.Close()

			events, err := db.EventsForWorkflow(args[0])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No events found.")
				return nil
			}
			for _, e := range events {
				line := fmt.Sprintf("%s %-9s %s (%s)", e.Timestamp.Format("15:04:05"), e.Status, e.TaskID, e.Details.Duration)
				if e.Details.Error != "" {
					line += " error: " + e.Details.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().String("events-db", "", "SQLite path holding persisted run events")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("potatohead %s\n", version)
		},
	}
}

// parseParams turns repeated key=value flags into a context map.
func parseParams(params []string) (map[string]any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	out := map[string]any{}
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", p)
		}
		out[key] = value
	}
	return out, nil
}

func parseLogLevel(s string) logging.LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}

func printRun(run *workflow.Workflow, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Run %s (%s)\n", run.ID, run.Name)
	for _, id := range run.TaskNames() {
		t, ok := run.Task(id)
		if !ok {
			continue
		}
		line := fmt.Sprintf("  %s [%s]", id, t.Status())
		if res := t.Result(); res != nil {
			line += " " + truncate(res.Response.Content(), 80)
		}
		fmt.Println(line)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
