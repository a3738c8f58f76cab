package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsline/opsline/pkg/engine"
	"github.com/opsline/opsline/pkg/telemetry"
	sshtransport "github.com/opsline/opsline/pkg/transports/ssh"
)

func newWatchCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "watch <playbook>",
		Short: "Re-run a playbook whenever it or the inventory changes",
		Long: `Watch the playbook and inventory files and execute a full run on every
change. Each run connects fresh, so host failures in one run do not
poison the next.`,
		Example: `  # Re-apply on every edit
  opsline watch deploy.yaml -i staging.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}

			provider := sshtransport.NewProvider()
			provider.StrictHostKeyChecking = flags.strictHostKeys
			provider.KnownHostsPath = flags.knownHosts

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			pbPath := args[0]
			watched := map[string]bool{
				filepath.Clean(pbPath):        true,
				filepath.Clean(inventoryPath): true,
			}
			// Watch the containing directories. Editors typically replace
			// files on save, which drops inotify watches on the files
			// themselves.
			dirs := map[string]bool{}
			for path := range watched {
				dirs[filepath.Dir(path)] = true
			}
			for dir := range dirs {
				if err := watcher.Add(dir); err != nil {
					return fmt.Errorf("failed to watch %s: %w", dir, err)
				}
			}

			ctx := cmd.Context()
			opts := engine.RunOptions{Serial: flags.serial, NoWait: flags.noWait}

			doRun := func() {
				report, err := runPlaybook(ctx, cfg, inventoryPath, pbPath, provider, telemetry.NewMetrics(false), opts)
				if err != nil {
					log.Error().Err(err).Msg("Run failed")
				}
				if report != nil {
					printSummary(report)
				}
			}

			log.Info().Str("playbook", pbPath).Str("inventory", inventoryPath).Msg("Watching for changes")
			doRun()

			// Editors fire several events per save; coalesce them.
			var timer *time.Timer
			pending := make(chan struct{}, 1)
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !watched[filepath.Clean(event.Name)] {
						continue
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
						continue
					}
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(250*time.Millisecond, func() {
						select {
						case pending <- struct{}{}:
						default:
						}
					})
				case <-pending:
					doRun()
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Warn().Err(err).Msg("Watcher error")
				}
			}
		},
	}

	cmd.Flags().BoolVar(&flags.serial, "serial", false, "run all operations against one host before the next")
	cmd.Flags().BoolVar(&flags.noWait, "no-wait", false, "dispatch commands without waiting for completion")
	cmd.Flags().IntVar(&flags.parallel, "parallel", 0, "max parallel connections (overrides config)")
	cmd.Flags().IntVar(&flags.failPercent, "fail-percent", -1, "percentage of hosts allowed to fail (overrides config)")
	cmd.Flags().BoolVar(&flags.strictHostKeys, "strict-host-keys", false, "verify host keys against known_hosts")
	cmd.Flags().StringVar(&flags.knownHosts, "known-hosts", "", "known_hosts file path")

	return cmd
}
