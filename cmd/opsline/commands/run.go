package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsline/opsline/pkg/config"
	"github.com/opsline/opsline/pkg/engine"
	"github.com/opsline/opsline/pkg/inventory"
	"github.com/opsline/opsline/pkg/playbook"
	"github.com/opsline/opsline/pkg/stores"
	"github.com/opsline/opsline/pkg/telemetry"
	sshtransport "github.com/opsline/opsline/pkg/transports/ssh"
)

type runFlags struct {
	serial         bool
	noWait         bool
	parallel       int
	failPercent    int
	strictHostKeys bool
	knownHosts     string
	metricsAddr    string
	storePath      string
}

func newRunCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <playbook>",
		Short: "Execute a playbook against the inventory",
		Long: `Connect to every inventory host, compile the playbook's tasks into
per-host command sequences, and execute them.

By default each operation runs across all hosts in parallel, with a
completion barrier before the next operation starts. Use --serial to
drain all operations host by host, or --no-wait to fire commands
without waiting for completion.`,
		Example: `  # Run a playbook against the default inventory
  opsline run deploy.yaml

  # Tolerate up to 25% of hosts failing
  opsline run deploy.yaml --fail-percent 25

  # One host at a time
  opsline run deploy.yaml --serial`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}

			metrics := telemetry.NewMetrics(flags.metricsAddr != "")
			if flags.metricsAddr != "" {
				go func() {
					if err := metrics.Serve(flags.metricsAddr); err != nil {
						log.Warn().Err(err).Msg("metrics server stopped")
					}
				}()
			}

			provider := sshtransport.NewProvider()
			provider.StrictHostKeyChecking = flags.strictHostKeys
			provider.KnownHostsPath = flags.knownHosts

			report, err := runPlaybook(cmd.Context(), cfg, inventoryPath, args[0], provider, metrics, engine.RunOptions{
				Serial: flags.serial,
				NoWait: flags.noWait,
			})
			if report != nil {
				printSummary(report)
				if cfg.StorePath != "" {
					if storeErr := persistRun(cmd.Context(), cfg.StorePath, report, err); storeErr != nil {
						log.Warn().Err(storeErr).Msg("failed to persist run history")
					}
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&flags.serial, "serial", false, "run all operations against one host before the next")
	cmd.Flags().BoolVar(&flags.noWait, "no-wait", false, "dispatch commands without waiting for completion")
	cmd.Flags().IntVar(&flags.parallel, "parallel", 0, "max parallel connections (overrides config)")
	cmd.Flags().IntVar(&flags.failPercent, "fail-percent", -1, "percentage of hosts allowed to fail (overrides config)")
	cmd.Flags().BoolVar(&flags.strictHostKeys, "strict-host-keys", false, "verify host keys against known_hosts")
	cmd.Flags().StringVar(&flags.knownHosts, "known-hosts", "", "known_hosts file path")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&flags.storePath, "store", "", "run-history database path (overrides config)")

	return cmd
}

func loadConfig(cmd *cobra.Command, flags *runFlags) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.parallel > 0 {
		cfg.Parallel = flags.parallel
	}
	if flags.failPercent >= 0 {
		cfg.FailPercent = flags.failPercent
	}
	if flags.storePath != "" {
		cfg.StorePath = flags.storePath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runPlaybook is the shared connect/compile/execute path used by both the
// run and watch commands.
func runPlaybook(ctx context.Context, cfg *config.Config, invPath, pbPath string, provider engine.Provider, metrics *telemetry.Metrics, opts engine.RunOptions) (*engine.Report, error) {
	inv, err := inventory.Load(invPath)
	if err != nil {
		return nil, err
	}

	pb, err := playbook.Load(pbPath)
	if err != nil {
		return nil, err
	}

	state := engine.NewState(inv, cfg, provider).WithMetrics(metrics)
	defer state.Close()

	log.Info().
		Int("hosts", inv.Len()).
		Int("tasks", len(pb.Tasks)).
		Msg("Starting run")

	if err := engine.ConnectAll(ctx, state); err != nil {
		return nil, err
	}

	for i := range pb.Tasks {
		task := &pb.Tasks[i]
		op, err := task.Operation()
		if err != nil {
			return nil, err
		}
		if _, err := engine.AddOp(state, op, task.Options()); err != nil {
			return nil, err
		}
	}

	return engine.RunOps(ctx, state, opts)
}

func printSummary(report *engine.Report) {
	summary := report.Summary()
	fmt.Printf("\nRun %s finished in %s\n", report.RunID, report.CompletedAt().Sub(report.StartedAt).Round(time.Millisecond))
	fmt.Printf("  succeeded: %d  failed: %d  skipped: %d", summary.Succeeded, summary.Failed, summary.Skipped)
	if summary.Dispatched > 0 {
		fmt.Printf("  dispatched: %d", summary.Dispatched)
	}
	fmt.Println()

	for _, res := range report.Results() {
		if res.Status != engine.ResultFailed {
			continue
		}
		fmt.Printf("  FAILED %s: %s: %v\n", res.Host, res.OpName, res.Err)
	}
}

func persistRun(ctx context.Context, path string, report *engine.Report, runErr error) error {
	store, err := stores.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	summary := report.Summary()
	status := stores.RunStatusSucceeded
	switch {
	case runErr != nil, summary.Failed > 0 && summary.Succeeded == 0:
		status = stores.RunStatusFailed
	case summary.Failed > 0:
		status = stores.RunStatusPartial
	}

	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}

	completed := report.CompletedAt()
	now := time.Now()
	run := &stores.Run{
		ID:          report.RunID,
		Status:      status,
		Succeeded:   summary.Succeeded,
		Failed:      summary.Failed,
		Skipped:     summary.Skipped,
		Error:       errMsg,
		StartedAt:   report.StartedAt,
		CompletedAt: &completed,
		CreatedAt:   now,
	}

	hosts := map[string]struct{}{}
	for _, res := range report.Results() {
		hosts[res.Host] = struct{}{}
	}
	run.Hosts = len(hosts)

	if err := store.CreateRun(ctx, run); err != nil {
		return err
	}

	for _, res := range report.Results() {
		record := &stores.HostResult{
			RunID:     report.RunID,
			Host:      res.Host,
			OpHash:    res.OpHash,
			OpName:    res.OpName,
			Status:    string(res.Status),
			Duration:  res.Duration,
			CreatedAt: now,
		}
		if n := len(res.Commands); n > 0 {
			last := res.Commands[n-1]
			record.ExitCode = last.ExitCode
			record.Output = combinedOutput(last)
		}
		if res.Err != nil {
			msg := res.Err.Error()
			record.Error = &msg
		}
		if err := store.AppendHostResult(ctx, record); err != nil {
			return err
		}
	}

	return nil
}

func combinedOutput(res engine.CommandResult) string {
	parts := []string{}
	if res.Stdout != "" {
		parts = append(parts, res.Stdout)
	}
	if res.Stderr != "" {
		parts = append(parts, res.Stderr)
	}
	return strings.Join(parts, "\n")
}
