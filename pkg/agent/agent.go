// Package agent wires the collector and redeemer into their two cooperative ticks, coordinated by
// golang.org/x/sync/errgroup so either tick's fatal error brings down the other and propagates to
// the caller.
package agent

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/dl-graf/indexer-agent/pkg/collector"
	"github.com/dl-graf/indexer-agent/pkg/redeemer"
)

// Agent runs the collector's 10s tick and the redeemer's 30s tick for the lifetime of a context.
type Agent struct {
	collector *collector.Collector
	redeemer  *redeemer.Redeemer
	log       log.Logger

	collectionTickInterval time.Duration
	redemptionTickInterval time.Duration
}

// New constructs an Agent. Zero-valued intervals fall back to 10s/30s defaults.
func New(c *collector.Collector, r *redeemer.Redeemer, logger log.Logger, collectionTickInterval, redemptionTickInterval time.Duration) *Agent {
	if collectionTickInterval == 0 {
		collectionTickInterval = 10 * time.Second
	}
	if redemptionTickInterval == 0 {
		redemptionTickInterval = 30 * time.Second
	}
	return &Agent{
		collector:               c,
		redeemer:                r,
		log:                     logger,
		collectionTickInterval:  collectionTickInterval,
		redemptionTickInterval:  redemptionTickInterval,
	}
}

// Run starts both ticks and blocks until ctx is canceled or a tick returns a fatal error. The
// collector and redeemer handlers already absorb their own per-item errors, so a tick handler
// never throws; Run only propagates errors from the ticks' own bookkeeping (currently none are
// fatal, so Run effectively blocks until ctx is done).
func (a *Agent) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.runTick(groupCtx, a.collectionTickInterval, func(ctx context.Context) error {
			a.collector.Tick(ctx)
			return nil
		})
	})
	group.Go(func() error {
		return a.runTick(groupCtx, a.redemptionTickInterval, func(ctx context.Context) error {
			if err := a.redeemer.Tick(ctx); err != nil {
				a.log.Error("redemption tick failed", "err", err)
			}
			return nil
		})
	})

	return group.Wait()
}

func (a *Agent) runTick(ctx context.Context, interval time.Duration, handler func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := handler(ctx); err != nil {
				return err
			}
		}
	}
}
