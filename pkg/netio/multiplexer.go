// Package netio implements the dual-listener I/O multiplexer of
// spec.md §4.10: a raw line-framed stream listener and a websocket
// "framed" listener, both funneling into one goroutine that is the
// sole owner of every Session and of the shared VM (spec.md §5 — no
// mutexes, no cross-thread sharing of VM state). Accept and read
// loops run concurrently per connection, but they only ever produce
// events onto a channel; applying those events to session/VM state
// happens exclusively in Multiplexer.ownerLoop.
package netio

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Thurtea/amlp-driver/internal/store"
	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/efun"
	"github.com/Thurtea/amlp-driver/pkg/session"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

type eventKind int

const (
	evConnect eventKind = iota
	evLine
	evDisconnect
)

type netEvent struct {
	kind   eventKind
	id     uuid.UUID
	out    session.Outputter
	closer io.Closer
	line   string
}

type connHandle struct {
	sess   *session.Session
	out    session.Outputter
	closer io.Closer
}

// Config collects everything the multiplexer needs to accept
// connections and drive sessions against one shared VM.
type Config struct {
	StreamAddr      string
	FramedAddr      string
	MaxSessions     int
	IdleTimeout     time.Duration
	AnsiSpans       bool // true: tag SGR codes as <span>; false: strip them
	Machine         *vm.VM
	Registry        *efun.Registry
	Players         *store.PlayerStore
	PlayerProgram   *bytecode.Program
	Log             *slog.Logger
}

// Multiplexer is the single-threaded accept-loop/session-dispatch
// engine cmd/driver runs. It satisfies session.Host for the admin
// built-ins (shutdown/users/promote).
type Multiplexer struct {
	cfg Config
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events chan netEvent
	slots  chan struct{}

	sessions map[uuid.UUID]*connHandle
	order    []uuid.UUID // accept order, for slot-order broadcast (spec.md §5)
	ansiSpan bool

	httpServer *http.Server
}

// New builds a Multiplexer. Call Run to start serving.
func New(cfg Config) *Multiplexer {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	max := cfg.MaxSessions
	if max <= 0 {
		max = 256
	}
	slots := make(chan struct{}, max)
	for i := 0; i < max; i++ {
		slots <- struct{}{}
	}
	return &Multiplexer{
		cfg:      cfg,
		log:      log,
		events:   make(chan netEvent, 64),
		slots:    slots,
		sessions: make(map[uuid.UUID]*connHandle),
		ansiSpan: cfg.AnsiSpans,
	}
}

// Broadcast sends msg to every currently Playing session, iterated in
// accept (slot) order, synchronously within whichever command
// triggered it — spec.md §5's broadcast ordering contract.
func (m *Multiplexer) Broadcast(msg string) {
	for _, id := range m.order {
		h, ok := m.sessions[id]
		if !ok || h.sess.State != session.Playing {
			continue
		}
		h.out.SendLine(msg)
	}
}

// Sessions returns the live session set, for the users/promote admin
// built-ins.
func (m *Multiplexer) Sessions() []*session.Session {
	out := make([]*session.Session, 0, len(m.sessions))
	for _, h := range m.sessions {
		out = append(out, h.sess)
	}
	return out
}

// RequestShutdown begins a graceful shutdown: the accept loops stop,
// every session gets a closing message, and Run returns once
// everything has unwound.
func (m *Multiplexer) RequestShutdown() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Run starts the stream listener, the framed (websocket) listener,
// and the owner loop, and blocks until ctx is cancelled (or
// RequestShutdown is called from a session's "shutdown" built-in) and
// every goroutine has unwound.
func (m *Multiplexer) Run(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	streamLn, err := net.Listen("tcp", m.cfg.StreamAddr)
	if err != nil {
		return err
	}
	framedLn, err := net.Listen("tcp", m.cfg.FramedAddr)
	if err != nil {
		streamLn.Close()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", m.framedHandler)
	m.httpServer = &http.Server{Handler: mux}

	var g errgroup.Group

	g.Go(func() error {
		m.acceptStream(streamLn)
		return nil
	})
	g.Go(func() error {
		err := m.httpServer.Serve(framedLn)
		if err != nil && m.ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		m.ownerLoop()
		return nil
	})
	g.Go(func() error {
		<-m.ctx.Done()
		m.httpServer.Close()
		return nil
	})

	return g.Wait()
}

// ownerLoop is the sole mutator of m.sessions and the sole caller of
// any Session method: every connect/line/disconnect event and every
// idle-timeout sweep happens here, on one goroutine, satisfying
// spec.md §5's single-owner contract.
func (m *Multiplexer) ownerLoop() {
	idle := m.cfg.IdleTimeout
	if idle <= 0 {
		idle = 1800 * time.Second
	}
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.shutdownAll()
			return

		case ev := <-m.events:
			m.applyEvent(ev)

		case <-ticker.C:
			m.sweepIdle(idle)
		}
	}
}

func (m *Multiplexer) applyEvent(ev netEvent) {
	switch ev.kind {
	case evConnect:
		sess := session.New(ev.out, m.cfg.Machine, m.cfg.Registry, m.cfg.Players, m.cfg.PlayerProgram, m, m.log)
		m.sessions[ev.id] = &connHandle{sess: sess, out: ev.out, closer: ev.closer}
		m.order = append(m.order, ev.id)
		sess.Banner()

	case evLine:
		h, ok := m.sessions[ev.id]
		if !ok {
			return
		}
		h.sess.HandleLine(ev.line)
		if h.sess.State == session.Disconnecting {
			m.closeSession(ev.id)
		}

	case evDisconnect:
		h, ok := m.sessions[ev.id]
		if !ok {
			return
		}
		h.sess.Disconnect()
		m.closeSession(ev.id)
	}
}

func (m *Multiplexer) closeSession(id uuid.UUID) {
	h, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	h.closer.Close()
	select {
	case m.slots <- struct{}{}:
	default:
	}
}

func (m *Multiplexer) sweepIdle(idle time.Duration) {
	now := time.Now()
	for id, h := range m.sessions {
		if now.Sub(h.sess.LastActivity) > idle {
			h.sess.Disconnect()
			m.closeSession(id)
		}
	}
}

func (m *Multiplexer) shutdownAll() {
	for id, h := range m.sessions {
		h.out.SendLine("The driver is shutting down. Goodbye.")
		h.sess.Disconnect()
		delete(m.sessions, id)
		h.closer.Close()
	}
	m.order = nil
}
