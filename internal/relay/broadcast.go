// ABOUTME: Broadcast dispatcher fanning one message out to the learner roster
// ABOUTME: Per-recipient failure isolation with a bounded concurrency window

package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/devzone/class-relay/internal/messenger"
	"github.com/devzone/class-relay/internal/store"
)

// defaultWindow bounds concurrent deliveries so the transport's rate limits
// are respected on large rosters.
const defaultWindow = 4

// Outcome aggregates one broadcast run.
type Outcome struct {
	Delivered int
	Failed    int
}

// Dispatcher fans a single message out to many recipients. One recipient's
// delivery failure never aborts the remaining fan-out; there is no retry.
type Dispatcher struct {
	msgr   messenger.Messenger
	window int
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. window <= 0 selects the default.
func NewDispatcher(msgr messenger.Messenger, window int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &Dispatcher{
		msgr:   msgr,
		window: window,
		logger: logger.With("component", "broadcast"),
	}
}

// Dispatch copies the source message to every recipient and returns the
// aggregate delivery counts.
func (d *Dispatcher) Dispatch(ctx context.Context, src messenger.MessageRef, recipients []*store.Participant) Outcome {
	runID := uuid.New().String()
	d.logger.Info("broadcast started", "run_id", runID, "recipients", len(recipients))

	var (
		mu      sync.Mutex
		outcome Outcome
		wg      sync.WaitGroup
		sem     = make(chan struct{}, d.window)
	)

	for _, rec := range recipients {
		wg.Add(1)
		sem <- struct{}{}
		go func(rec *store.Participant) {
			defer wg.Done()
			defer func() { <-sem }()

			err := d.msgr.CopyMessage(ctx, rec.ID, "", src)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcome.Failed++
				d.logger.Warn("broadcast delivery failed",
					"run_id", runID, "recipient_id", rec.ID, "error", err)
				return
			}
			outcome.Delivered++
		}(rec)
	}
	wg.Wait()

	d.logger.Info("broadcast finished",
		"run_id", runID, "delivered", outcome.Delivered, "failed", outcome.Failed)
	return outcome
}
