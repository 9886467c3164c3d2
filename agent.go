package tev

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tevkit/tev/internal/tevdebug"
)

// ErrAgentClosed is returned by lifecycle operations on a closed agent.
var ErrAgentClosed = errors.New("agent closed")

// EventWriter receives batches of captured events from the agent's
// background goroutine.
type EventWriter interface {
	WriteEvents(events []*Event) error
}

// EventWriterFunc adapts a function to the EventWriter interface.
type EventWriterFunc func(events []*Event) error

// WriteEvents implements EventWriter.
func (f EventWriterFunc) WriteEvents(events []*Event) error { return f(events) }

type discardWriter struct{}

func (discardWriter) WriteEvents(events []*Event) error { return nil }

const (
	// DefaultAgentBuffer is the default capacity of the handoff channel
	// between emitting code and the agent goroutine.
	DefaultAgentBuffer = 1024

	// DefaultFlushInterval is the default period between background flushes.
	DefaultFlushInterval = 1 * time.Second

	// flushBatchSize forces a flush once this many events are pending,
	// ahead of the ticker.
	flushBatchSize = 512
)

// AgentConfig collects the parameters for [NewAgent]. All fields are
// optional.
type AgentConfig struct {
	// Writer receives flushed event batches. Default: discard.
	Writer EventWriter

	// Buffer is the handoff channel capacity. Events emitted while the
	// channel is full are dropped, never blocked on. Default
	// [DefaultAgentBuffer].
	Buffer int

	// FlushInterval is the background flush period. Default
	// [DefaultFlushInterval].
	FlushInterval time.Duration

	// OnError is invoked from the agent goroutine with any write failure
	// that survived its retry. Default: ignore.
	OnError func(error)
}

// Agent owns the background goroutine that runs the trace capture
// lifecycle. The goroutine is created with the agent and lives until
// [Agent.Close]; Start and Stop bound capture sessions within it.
//
// The agent is also a [Recorder]: recorded events whose category group
// intersects the active allow-list are handed to the goroutine over a
// bounded channel and batched to the configured [EventWriter]. The handoff
// never blocks the emitting code; if the channel is full the event is
// dropped and counted, retrievable via [Agent.DroppedEvents].
type Agent struct {
	writer   EventWriter
	onError  func(error)
	interval time.Duration

	started atomic.Bool
	allowed atomic.Pointer[map[string]struct{}]
	dropped atomic.Uint64

	mtx        sync.Mutex
	categories []string
	session    string

	eventc    chan *Event
	flushc    chan chan error
	quitc     chan struct{}
	donec     chan struct{}
	closeOnce sync.Once
}

var (
	_ Recorder   = (*Agent)(nil)
	_ Controller = (*Agent)(nil)
)

// NewAgent returns an agent with the given configuration and spawns its
// background goroutine. The agent is stopped: no events are captured until
// [Agent.Start].
func NewAgent(cfg AgentConfig) *Agent {
	if cfg.Writer == nil {
		cfg.Writer = discardWriter{}
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultAgentBuffer
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}

	a := &Agent{
		writer:   cfg.Writer,
		onError:  cfg.OnError,
		interval: cfg.FlushInterval,
		eventc:   make(chan *Event, cfg.Buffer),
		flushc:   make(chan chan error),
		quitc:    make(chan struct{}),
		donec:    make(chan struct{}),
	}

	empty := map[string]struct{}{}
	a.allowed.Store(&empty)

	go a.run()

	return a
}

// SetCategories replaces the capture allow-list. If the agent is started,
// the new list takes effect by restarting the capture session: events
// already handed off are flushed under the old session, and events emitted
// after the call are filtered by the new list.
func (a *Agent) SetCategories(categories []string) {
	clean := make([]string, 0, len(categories))
	allowed := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		if c == "" {
			continue
		}
		if _, ok := allowed[c]; ok {
			continue
		}
		allowed[c] = struct{}{}
		clean = append(clean, c)
	}

	a.mtx.Lock()
	a.categories = clean
	a.allowed.Store(&allowed)
	restart := a.started.Load()
	a.mtx.Unlock()

	if restart {
		a.Start()
	}
}

// Categories returns a copy of the current allow-list.
func (a *Agent) Categories() []string {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return append([]string(nil), a.categories...)
}

// Start begins a capture session against the current category list. With no
// categories set, the session is a no-op that captures nothing. Starting an
// already-started agent is a well-defined restart: pending events are
// flushed and a fresh session begins.
func (a *Agent) Start() {
	a.mtx.Lock()
	a.session = ulid.Make().String()
	already := a.started.Swap(true)
	a.mtx.Unlock()

	if already {
		a.Flush() // flush errors reach the error hook
	}
}

// Stop ends the active session and synchronously flushes pending events,
// returning any write error. Stopping a stopped agent is a no-op.
func (a *Agent) Stop() error {
	if !a.started.Swap(false) {
		return nil
	}
	return a.Flush()
}

// IsStarted reports whether a capture session is active.
func (a *Agent) IsStarted() bool {
	return a.started.Load()
}

// SessionID returns the ULID of the current or most recent capture session,
// or the empty string if the agent was never started.
func (a *Agent) SessionID() string {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.session
}

// DroppedEvents returns the number of events dropped because the handoff
// channel was full.
func (a *Agent) DroppedEvents() uint64 {
	return a.dropped.Load()
}

// Flush synchronously drains the handoff channel and writes all pending
// events, returning any write error. Write failures are retried once and
// also delivered to the error hook.
func (a *Agent) Flush() error {
	errc := make(chan error, 1)

	select {
	case a.flushc <- errc:
	case <-a.donec:
		return ErrAgentClosed
	}

	select {
	case err := <-errc:
		return err
	case <-a.donec:
		return ErrAgentClosed
	}
}

// Close stops the agent if started, performs a final flush, and joins the
// background goroutine. The agent cannot be reused afterwards. Close is safe
// to call more than once.
func (a *Agent) Close() error {
	err := a.Stop()
	a.closeOnce.Do(func() { close(a.quitc) })
	<-a.donec
	return err
}

// EmitBegin implements Recorder.
func (a *Agent) EmitBegin(name string, id uint64, category string, args map[string]any) {
	a.enqueue(&Event{Type: TypeBegin, Name: name, ID: id, Categories: splitGroupKey(category), Args: args})
}

// EmitEnd implements Recorder.
func (a *Agent) EmitEnd(name string, id uint64, category string, args map[string]any) {
	a.enqueue(&Event{Type: TypeEnd, Name: name, ID: id, Categories: splitGroupKey(category), Args: args})
}

// EmitInstant implements Recorder.
func (a *Agent) EmitInstant(name string, id uint64, category string, args map[string]any) {
	a.enqueue(&Event{Type: TypeInstant, Name: name, ID: id, Categories: splitGroupKey(category), Args: args})
}

// EmitCount implements Recorder.
func (a *Agent) EmitCount(name string, id uint64, category string, value Value) {
	a.enqueue(&Event{Type: TypeCount, Name: name, ID: id, Categories: splitGroupKey(category), Value: value})
}

func (a *Agent) enqueue(ev *Event) {
	if !a.started.Load() {
		return
	}
	if !a.allows(ev.Categories) {
		return
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	select {
	case a.eventc <- ev:
		tevdebug.AgentCounters.Enqueued.Add(1)
	default:
		a.dropped.Add(1)
		tevdebug.AgentCounters.Dropped.Add(1)
	}
}

func (a *Agent) allows(categories []string) bool {
	m := *a.allowed.Load()
	if len(m) == 0 {
		return false
	}
	for _, c := range categories {
		if _, ok := m[c]; ok {
			return true
		}
	}
	return false
}

func (a *Agent) run() {
	defer close(a.donec)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	var pending []*Event

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		batch := pending
		pending = nil

		tevdebug.AgentCounters.Flushes.Add(1)

		err := a.writer.WriteEvents(batch)
		if err != nil {
			err = a.writer.WriteEvents(batch) // one retry
		}
		if err != nil {
			tevdebug.AgentCounters.FlushErrors.Add(1)
			err = fmt.Errorf("write events: %w", err)
			if a.onError != nil {
				a.onError(err)
			}
			return err
		}
		return nil
	}

	drain := func() {
		for {
			select {
			case ev := <-a.eventc:
				pending = append(pending, ev)
			default:
				return
			}
		}
	}

	for {
		select {
		case ev := <-a.eventc:
			pending = append(pending, ev)
			if len(pending) >= flushBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case errc := <-a.flushc:
			drain()
			errc <- flush()

		case <-a.quitc:
			drain()
			flush()
			for {
				select {
				case errc := <-a.flushc:
					errc <- nil
				default:
					return
				}
			}
		}
	}
}

func splitGroupKey(category string) []string {
	if category == "" {
		return nil
	}
	return strings.Split(category, ",")
}

// ParseCategoryList splits a comma-separated category list, trimming
// whitespace and dropping empty entries. If the result is empty, def is
// returned.
func ParseCategoryList(s string, def []string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
