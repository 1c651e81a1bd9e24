package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/events"
)

// Default session timings.
const (
	DefaultInitTimeout     = 2 * time.Minute
	DefaultTeardownTimeout = 10 * time.Second
)

// SessionConfig holds the timing parameters of a Session.
type SessionConfig struct {
	// InitTimeout bounds how long a connection attempt may take to reach ready.
	InitTimeout time.Duration

	// TeardownTimeout bounds each best-effort client teardown.
	TeardownTimeout time.Duration
}

// notice is an event queued under the lock and emitted after it is released.
type notice struct {
	eventType string
	payload   interface{}
}

// Session owns at most one live Client and tracks its lifecycle.
// It is safe for concurrent use; sends are serialized.
type Session struct {
	factory ClientFactory
	emitter events.EventEmitter
	cfg     SessionConfig
	logger  *slog.Logger
	now     func() time.Time

	sendMu sync.Mutex

	mu          sync.Mutex
	state       State
	since       time.Time
	scanPayload string
	lastErr     string
	client      Client

	// gen identifies the current connection attempt. Client events and
	// timers carrying an older generation are ignored.
	gen        uint64
	cancelInit context.CancelFunc
	initTimer  *time.Timer
}

// NewSession creates a disconnected Session. A nil emitter disables events.
func NewSession(factory ClientFactory, emitter events.EventEmitter, cfg SessionConfig, logger *slog.Logger) *Session {
	if factory == nil {
		panic("client factory cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = DefaultTeardownTimeout
	}

	return &Session{
		factory: factory,
		emitter: emitter,
		cfg:     cfg,
		logger:  logger.With("component", "channel_session"),
		now:     time.Now,
		state:   StateDisconnected,
		since:   time.Now().UTC(),
	}
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:       s.state,
		ScanPayload: s.scanPayload,
		Since:       s.since,
		LastError:   s.lastErr,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect starts a connection attempt. When the session is not disconnected
// it returns the current state without side effects.
func (s *Session) Connect(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("connect ignored, session already active", "state", state)
		return state, nil
	}

	client, err := s.factory()
	if err != nil {
		s.mu.Unlock()
		return StateDisconnected, fmt.Errorf("create channel client: %w", err)
	}

	s.gen++
	gen := s.gen
	s.client = client
	s.lastErr = ""
	initCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelInit = cancel
	s.initTimer = time.AfterFunc(s.cfg.InitTimeout, func() { s.onInitTimeout(gen) })
	pending := []notice{s.setStateLocked(StateInitializing, "")}
	s.mu.Unlock()

	s.emit(pending)
	s.logger.Info("channel connection started", "init_timeout", s.cfg.InitTimeout.String())

	go s.watch(initCtx, gen, client)
	go func() {
		if err := client.Initialize(initCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.onInitFailed(gen, err)
		}
	}()

	return StateInitializing, nil
}

// Disconnect tears the session down. The resulting disconnect is not
// reported as a failure.
func (s *Session) Disconnect(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return StateDisconnected, nil
	}
	s.lastErr = ""
	client, pending := s.resetLocked(ReasonCallerInitiated)
	s.mu.Unlock()

	s.emit(pending)
	s.destroy(ctx, client)
	s.logger.Info("channel disconnected by caller")
	return StateDisconnected, nil
}

// Send delivers a message through the ready channel. It fails fast with
// ErrNotReady in any other state. A channel-fatal failure tears the session
// down and is returned wrapping ErrChannelBroken.
func (s *Session) Send(ctx context.Context, to, text string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.state != StateReady || s.client == nil {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: session is %s", ErrNotReady, state)
	}
	client, gen := s.client, s.gen
	s.mu.Unlock()

	err := client.Send(ctx, to, text)
	if err == nil {
		return nil
	}
	if ClassifyError(err) != ClassFatal {
		return err
	}

	s.breakChannel(ctx, gen, err)
	if errors.Is(err, ErrChannelBroken) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrChannelBroken, err)
}

// watch consumes client events for one connection attempt.
func (s *Session) watch(ctx context.Context, gen uint64, client Client) {
	evs := client.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				s.onClientEvent(gen, ClientEvent{Type: ClientEventDisconnected, Reason: ReasonClientClosed})
				return
			}
			s.onClientEvent(gen, ev)
		}
	}
}

func (s *Session) onClientEvent(gen uint64, ev ClientEvent) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}

	var (
		pending []notice
		doomed  Client
	)
	switch ev.Type {
	case ClientEventQR:
		if s.state != StateInitializing && s.state != StateAwaitingScan {
			break
		}
		s.scanPayload = ev.Payload
		if s.state != StateAwaitingScan {
			pending = append(pending, s.setStateLocked(StateAwaitingScan, ""))
		}
		pending = append(pending, notice{events.TypeChannelScanIssued, ScanIssued{Payload: ev.Payload}})

	case ClientEventAuthenticated:
		if s.state == StateReady || s.state == StateAuthenticated {
			break
		}
		s.scanPayload = ""
		pending = append(pending, s.setStateLocked(StateAuthenticated, ""))

	case ClientEventReady:
		if s.state == StateReady {
			break
		}
		s.scanPayload = ""
		s.stopInitTimerLocked()
		pending = append(pending,
			s.setStateLocked(StateReady, ""),
			notice{events.TypeChannelReady, nil})

	case ClientEventAuthFailure:
		s.lastErr = fmt.Sprintf("%v: %s", ErrAuthFailed, ev.Reason)
		pending = append(pending, notice{events.TypeChannelAuthFailed, Failure{Reason: ReasonAuthFailed, Error: ev.Reason}})
		var more []notice
		doomed, more = s.resetLocked(ReasonAuthFailed)
		pending = append(pending, more...)

	case ClientEventDisconnected:
		reason := ev.Reason
		if reason == "" {
			reason = "unknown"
		}
		if reason != ReasonCallerInitiated {
			s.lastErr = "channel disconnected: " + reason
		}
		var more []notice
		doomed, more = s.resetLocked(reason)
		pending = append(pending, more...)

	default:
		s.mu.Unlock()
		s.logger.Warn("ignoring unknown channel event", "type", string(ev.Type))
		return
	}
	s.mu.Unlock()

	if ev.Type == ClientEventAuthFailure || (ev.Type == ClientEventDisconnected && ev.Reason != ReasonCallerInitiated) {
		s.logger.Warn("channel lost", "event", string(ev.Type), "reason", ev.Reason)
	} else {
		s.logger.Debug("channel event", "event", string(ev.Type))
	}

	s.emit(pending)
	s.destroy(context.Background(), doomed)
}

func (s *Session) onInitTimeout(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state == StateReady || s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.lastErr = ErrInitTimeout.Error()
	pending := []notice{{events.TypeChannelInitTimeout, Failure{Reason: ReasonInitTimeout, Error: ErrInitTimeout.Error()}}}
	client, more := s.resetLocked(ReasonInitTimeout)
	s.mu.Unlock()

	s.logger.Warn("channel did not become ready in time", "init_timeout", s.cfg.InitTimeout.String())
	s.emit(append(pending, more...))
	s.destroy(context.Background(), client)
}

func (s *Session) onInitFailed(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.lastErr = "channel initialization failed: " + err.Error()
	client, pending := s.resetLocked(ReasonInitFailed)
	s.mu.Unlock()

	s.logger.Error("channel initialization failed", "error", err)
	s.emit(pending)
	s.destroy(context.Background(), client)
}

// breakChannel moves the session through fatal to disconnected after a
// channel-fatal send failure.
func (s *Session) breakChannel(ctx context.Context, gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	fatalGen := s.gen
	client := s.client
	s.client = nil
	s.scanPayload = ""
	s.lastErr = ErrChannelBroken.Error()
	s.stopInitTimerLocked()
	pending := []notice{
		s.setStateLocked(StateFatal, ReasonChannelBroken),
		{events.TypeChannelBroken, Failure{Reason: ReasonChannelBroken, Error: cause.Error()}},
	}
	s.mu.Unlock()

	s.logger.Error("channel broken, tearing down", "error", cause)
	s.emit(pending)
	s.destroy(ctx, client)

	s.mu.Lock()
	if s.gen != fatalGen {
		s.mu.Unlock()
		return
	}
	_, pending = s.resetLocked(ReasonChannelBroken)
	s.mu.Unlock()
	s.emit(pending)
}

// resetLocked returns the session to disconnected and hands back the client
// to destroy. Callers must hold s.mu.
func (s *Session) resetLocked(reason string) (Client, []notice) {
	client := s.client
	s.client = nil
	s.gen++
	s.scanPayload = ""
	s.stopInitTimerLocked()
	if s.cancelInit != nil {
		s.cancelInit()
		s.cancelInit = nil
	}
	return client, []notice{
		s.setStateLocked(StateDisconnected, reason),
		{events.TypeChannelDisconnected, Failure{Reason: reason}},
	}
}

func (s *Session) stopInitTimerLocked() {
	if s.initTimer != nil {
		s.initTimer.Stop()
		s.initTimer = nil
	}
}

func (s *Session) setStateLocked(state State, reason string) notice {
	s.state = state
	s.since = s.now().UTC()
	return notice{events.TypeChannelStateChanged, StateChange{State: state, Reason: reason}}
}

// destroy tears a client down on a best-effort basis.
func (s *Session) destroy(ctx context.Context, client Client) {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TeardownTimeout)
	defer cancel()
	if err := client.Destroy(ctx); err != nil {
		s.logger.Warn("channel teardown failed", "error", err)
	}
}

func (s *Session) emit(pending []notice) {
	for _, n := range pending {
		events.Emit(context.Background(), s.emitter, n.eventType, n.payload)
	}
}
