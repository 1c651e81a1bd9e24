package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/channel"
	"github.com/facilitydesk/taskdispatch/internal/message"
	"github.com/facilitydesk/taskdispatch/internal/redact"
	"github.com/google/uuid"
)

// DefaultSendDelay is the pause between consecutive successful sends.
const DefaultSendDelay = 1500 * time.Millisecond

// Sender is the part of the channel session the executor drives.
type Sender interface {
	State() channel.State
	Send(ctx context.Context, to, text string) error
}

// Renderer turns a reminder into message text.
type Renderer interface {
	Render(r message.Reminder) (string, error)
}

// Result is the outcome of one batch.
type Result struct {
	RecipientID   uuid.UUID `json:"recipient_id"`
	RecipientName string    `json:"recipient_name"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`

	// Class is the error class of a failure: "recipient", "fatal" or "unknown".
	Class string `json:"class,omitempty"`
}

// Outcome is what one execution produced. When Aborted is set, Results
// covers only the batches attempted before the abort.
type Outcome struct {
	Results     []Result `json:"results"`
	Aborted     bool     `json:"aborted"`
	AbortReason string   `json:"abort_reason,omitempty"`

	// AbortErr is the error that stopped the run.
	AbortErr error `json:"-"`
}

// Succeeded counts successful results.
func (o *Outcome) Succeeded() int {
	n := 0
	for _, r := range o.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Failed counts failed results.
func (o *Outcome) Failed() int {
	return len(o.Results) - o.Succeeded()
}

func (o *Outcome) abort(err error) {
	o.Aborted = true
	o.AbortErr = err
	o.AbortReason = err.Error()
}

// ExecutorConfig holds executor parameters.
type ExecutorConfig struct {
	// CountryCode is prepended to national contact numbers.
	CountryCode string

	// SendDelay is the pause after each successful send that is followed by another batch.
	SendDelay time.Duration
}

// Executor sends batches one after another through a Sender.
type Executor struct {
	sender   Sender
	renderer Renderer
	cfg      ExecutorConfig
	logger   *slog.Logger

	// sleep waits for d or until ctx ends.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor.
func NewExecutor(sender Sender, renderer Renderer, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if sender == nil || renderer == nil {
		panic("sender and renderer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendDelay < 0 {
		cfg.SendDelay = 0
	}
	return &Executor{
		sender:   sender,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger.With("component", "dispatch_executor"),
		sleep:    sleepContext,
	}
}

// Execute sends every batch in order. It fails without attempting anything
// when the sender is not ready. A recipient-level failure is recorded and the
// loop continues; a channel-fatal failure is recorded and ends the run.
func (e *Executor) Execute(ctx context.Context, batches []Batch) (*Outcome, error) {
	if state := e.sender.State(); state != channel.StateReady {
		return nil, fmt.Errorf("%w: session is %s", channel.ErrNotReady, state)
	}

	out := &Outcome{Results: make([]Result, 0, len(batches))}
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			out.abort(err)
			return out, nil
		}
		log := e.logger.With("recipient_id", b.RecipientID.String())

		result, fatal := e.sendBatch(ctx, b)
		out.Results = append(out.Results, result)
		if fatal != nil {
			out.abort(fatal)
			log.Error("dispatch aborted, channel unusable",
				"error", redact.Error(fatal),
				"attempted", i+1,
				"remaining", len(batches)-i-1)
			return out, nil
		}
		if !result.Success {
			log.Warn("dispatch to recipient failed", "error", redact.String(result.Error), "class", result.Class)
			continue
		}
		log.Info("dispatch to recipient succeeded", "occurrences", b.Size())

		if i < len(batches)-1 && e.cfg.SendDelay > 0 {
			if err := e.sleep(ctx, e.cfg.SendDelay); err != nil {
				out.abort(err)
				return out, nil
			}
		}
	}
	return out, nil
}

// sendBatch attempts one batch. The returned error is non-nil only when the
// run must stop.
func (e *Executor) sendBatch(ctx context.Context, b Batch) (Result, error) {
	result := Result{RecipientID: b.RecipientID, RecipientName: b.RecipientName}

	text, err := e.renderer.Render(b.Reminder())
	if err != nil {
		result.Error = fmt.Sprintf("render message: %v", err)
		result.Class = channel.ClassRecipient.String()
		return result, nil
	}

	to, err := NormalizeAddress(b.Contact, e.cfg.CountryCode)
	if err != nil {
		result.Error = err.Error()
		result.Class = channel.ClassRecipient.String()
		return result, nil
	}

	if err := e.sender.Send(ctx, to, text); err != nil {
		class := channel.ClassifyError(err)
		result.Error = err.Error()
		result.Class = class.String()
		if class == channel.ClassFatal {
			return result, err
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, nil
	}

	result.Success = true
	return result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
