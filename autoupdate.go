package apicorpus

import (
	"context"
	"time"

	"github.com/agentstation/apicorpus/pkg/constants"
	"github.com/agentstation/apicorpus/pkg/errors"
	"github.com/agentstation/apicorpus/pkg/logging"
	"github.com/agentstation/apicorpus/pkg/sync"
)

// Compile-time interface check to ensure proper implementation.
var _ AutoUpdater = (*client)(nil)

// AutoUpdater provides controls for scheduled update runs.
type AutoUpdater interface {
	// AutoUpdatesOn starts running the update step on the configured interval
	AutoUpdatesOn() error

	// AutoUpdatesOff stops scheduled update runs
	AutoUpdatesOff() error
}

// AutoUpdatesOn starts running the update step on the configured interval.
func (c *client) AutoUpdatesOn() error {
	if c.options.autoUpdateInterval <= 0 {
		return &errors.ValidationError{
			Field:   "autoUpdateInterval",
			Value:   c.options.autoUpdateInterval,
			Message: "update interval must be positive",
		}
	}

	if err := c.AutoUpdatesOff(); err != nil {
		return err
	}

	// stopCh was closed by AutoUpdatesOff
	c.stopCh = make(chan struct{})
	c.updateTicker = time.NewTicker(c.options.autoUpdateInterval)

	ctx, cancel := context.WithCancel(context.Background())
	c.updateCancel = cancel
	done := make(chan struct{})
	c.updateDone = done

	go func(parentCtx context.Context, ticks <-chan time.Time, stop <-chan struct{}) {
		defer close(done)
		for {
			select {
			case <-ticks:
				result, err := c.Run(parentCtx, sync.StepUpdate, sync.WithTimeout(constants.RunTimeout))
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					logging.Error().Err(err).Msg("Scheduled update failed")
					continue
				}
				logging.Info().Str("run_id", result.RunID).Msg(result.Summary())
			case <-parentCtx.Done():
				return
			case <-stop:
				return
			}
		}
	}(ctx, c.updateTicker.C, c.stopCh)

	return nil
}

// AutoUpdatesOff stops scheduled update runs and waits for an in-flight run
// to return. It must not be called from a hook.
func (c *client) AutoUpdatesOff() error {
	if c.updateTicker != nil {
		c.updateTicker.Stop()
		c.updateTicker = nil
	}
	if c.updateCancel != nil {
		c.updateCancel()
		c.updateCancel = nil
	}
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	if c.updateDone != nil {
		<-c.updateDone
		c.updateDone = nil
	}
	return nil
}
