// Command moleq is a small command-line peer of a running moleqd broker:
// it dials the IPC endpoint, issues one request, prints the reply as JSON,
// and exits. Grounded on arkeep/agent/cmd/agent/main.go's cobra root +
// subcommand shape (buildLogger, envOrDefault, signal-aware RunE), adapted
// from a long-lived daemon into a one-shot CLI around internal/client.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/client"
	"github.com/molequeue-io/molequeue/internal/filespec"
	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

type config struct {
	socketName string
	logLevel   string
	timeout    time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "moleq",
		Short: "moleq is a command-line client for a running moleqd broker",
		Long: `moleq dials a moleqd broker over its local IPC endpoint and issues a
single listQueues, submit, cancel, lookup, or watch request.`,
	}

	defaultSocket := filepath.Join(os.TempDir(), "MoleQueue")
	root.PersistentFlags().StringVar(&cfg.socketName, "socket", envOrDefault("MOLEQUEUE_SOCKET", defaultSocket), "IPC endpoint path (Unix domain socket)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("MOLEQUEUE_LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&cfg.timeout, "timeout", 10*time.Second, "Request timeout")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newListQueuesCmd(cfg))
	root.AddCommand(newSubmitCmd(cfg))
	root.AddCommand(newCancelCmd(cfg))
	root.AddCommand(newLookupCmd(cfg))
	root.AddCommand(newWatchCmd(cfg))

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("moleq %s (commit: %s)\n", version, commit)
		},
	}
}

func newListQueuesCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "list-queues",
		Short: "List the broker's configured queues and their programs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(ctx context.Context, c *client.Client) error {
				queues, err := c.RequestQueueListUpdate(ctx)
				if err != nil {
					return fmt.Errorf("list-queues: %w", err)
				}
				return printJSON(queues)
			})
		},
	}
}

func newSubmitCmd(cfg *config) *cobra.Command {
	var (
		queueName     string
		program       string
		inputFilePath string
		description   string
		cores         int
		maxWallTime   int
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a job to the broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			data := jobs.NewData()
			data.Queue = queueName
			data.Program = program
			data.Description = description
			data.NumberOfCores = cores
			data.MaxWallTime = maxWallTime
			if inputFilePath != "" {
				abs, err := filepath.Abs(inputFilePath)
				if err != nil {
					return fmt.Errorf("submit: resolve input file: %w", err)
				}
				data.InputFile = filespec.FromPath(abs)
			}

			return withClient(cmd.Context(), cfg, func(ctx context.Context, c *client.Client) error {
				result, err := c.SubmitJobRequest(ctx, data)
				if err != nil {
					return fmt.Errorf("submit: %w", err)
				}
				return printJSON(result)
			})
		},
	}

	cmd.Flags().StringVar(&queueName, "queue", "", "Queue to submit to (required)")
	cmd.Flags().StringVar(&program, "program", "", "Program name within the queue (required)")
	cmd.Flags().StringVar(&inputFilePath, "input-file", "", "Path to the job's input file")
	cmd.Flags().StringVar(&description, "description", "", "Human-readable job description")
	cmd.Flags().IntVar(&cores, "cores", 1, "Number of cores to request")
	cmd.Flags().IntVar(&maxWallTime, "max-wall-time", 0, "Maximum wall time in minutes (0 = queue default)")
	cmd.MarkFlagRequired("queue")   //nolint:errcheck
	cmd.MarkFlagRequired("program") //nolint:errcheck

	return cmd
}

func newCancelCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <moleQueueId>",
		Short: "Request cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), cfg, func(ctx context.Context, c *client.Client) error {
				if err := c.CancelJobRequest(ctx, id); err != nil {
					return fmt.Errorf("cancel: %w", err)
				}
				fmt.Printf("cancellation requested for job %d\n", id)
				return nil
			})
		},
	}
}

func newLookupCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <moleQueueId>",
		Short: "Fetch a job's current data from the broker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), cfg, func(ctx context.Context, c *client.Client) error {
				data, err := c.LookupJobRequest(ctx, id)
				if err != nil {
					return fmt.Errorf("lookup: %w", err)
				}
				hash, err := data.ToHash()
				if err != nil {
					return fmt.Errorf("lookup: re-encode result: %w", err)
				}
				fmt.Println(string(hash))
				return nil
			})
		},
	}
}

func newWatchCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print job state change notifications as they arrive until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.BuildLogger(cfg.logLevel)
			if err != nil {
				return fmt.Errorf("watch: build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			c, err := client.Dial(cfg.socketName, logger)
			if err != nil {
				return fmt.Errorf("watch: dial %s: %w", cfg.socketName, err)
			}
			defer c.Close()

			c.Subscribe(&watchObserver{})

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			<-ctx.Done()
			return nil
		},
	}
}

// watchObserver prints every notification it receives to stdout as a
// single JSON line, for piping into jq or similar tools.
type watchObserver struct {
	client.NopObserver
}

func (watchObserver) JobStateChanged(id jobs.ID, old, newState jobs.State) {
	printJSON(map[string]any{ //nolint:errcheck
		"moleQueueId": uint64(id),
		"oldState":    old.String(),
		"newState":    newState.String(),
	})
}

// withClient dials the broker, runs fn with a timeout-bounded context, and
// always closes the connection before returning.
func withClient(ctx context.Context, cfg *config, fn func(context.Context, *client.Client) error) error {
	logger, err := logging.BuildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	c, err := client.Dial(cfg.socketName, logger)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.socketName, err)
	}
	defer c.Close()

	reqCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	return fn(reqCtx, c)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseJobID(raw string) (jobs.ID, error) {
	var id uint64
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid moleQueueId %q: %w", raw, err)
	}
	return jobs.ID(id), nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
