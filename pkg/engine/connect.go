package engine

import (
	"context"
	"sync"

	"github.com/opsline/opsline/pkg/inventory"
	"github.com/opsline/opsline/pkg/telemetry"
)

// ConnectAll attempts to establish a session for every host in the
// inventory, one bounded worker per host. Individual failures are recorded,
// never fatal on their own; once every attempt has finished the accumulated
// failure rate is checked against the configured threshold. An empty
// inventory connects trivially.
func ConnectAll(ctx context.Context, state *State) error {
	logger := telemetry.ComponentLogger("connect")

	hosts := state.Inventory.Hosts()
	if len(hosts) == 0 {
		return nil
	}

	workQueue := make(chan *inventory.Host, len(hosts))
	for _, h := range hosts {
		workQueue <- h
	}
	close(workQueue)

	workerCount := state.Config.Parallel
	if len(hosts) < workerCount {
		workerCount = len(hosts)
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for h := range workQueue {
				sess, err := ConnectOne(ctx, state, h)
				if err != nil {
					logger.Warn().Str("host", h.Name).Err(err).Msg("failed to connect")
					state.markFailed(h.Name)
					if state.metrics != nil {
						state.metrics.ConnectAttempted(false)
					}
					continue
				}
				state.addSession(h, sess)
				logger.Debug().Str("host", h.Name).Msg("connected")
				if state.metrics != nil {
					state.metrics.ConnectAttempted(true)
				}
			}
		}()
	}
	wg.Wait()

	if err := state.checkThreshold(); err != nil {
		logger.Error().Err(err).Msg("connect failure threshold breached")
		return err
	}

	logger.Info().
		Int("connected", len(state.Inventory.ConnectedHosts())).
		Int("total", len(hosts)).
		Msg("connection phase complete")

	return nil
}

// ConnectOne opens a session for a single host. Recognized failure classes
// (authentication, transport, DNS, unexpected EOF) come back as a nil
// session with a ConnectError; they are expected outcomes, not panics.
func ConnectOne(ctx context.Context, state *State, host *inventory.Host) (Session, error) {
	connectCtx, cancel := context.WithTimeout(ctx, state.Config.ConnectTimeout)
	defer cancel()

	sess, err := state.provider.Connect(connectCtx, host)
	if err != nil {
		return nil, &ConnectError{Host: host.Name, Err: err}
	}
	return sess, nil
}
