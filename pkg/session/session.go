// Package session implements the per-connection login/play state
// machine of spec.md §4.9: Connecting → GetName → (GetPassword or
// NewPassword → ConfirmPassword) → Chargen → Playing → Disconnecting,
// plus the built-in command dispatch a player falls back to whenever
// their bound object's process_command returns Null (spec.md §6).
//
// A Session never touches a socket directly — it speaks to whatever
// Outputter the netio layer hands it, so the same state machine drives
// both the raw stream protocol and the framed (websocket) one.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/google/uuid"

	"github.com/Thurtea/amlp-driver/internal/store"
	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/efun"
	"github.com/Thurtea/amlp-driver/pkg/object"
	"github.com/Thurtea/amlp-driver/pkg/value"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

// Outputter is whatever a Session sends its responses to: a raw
// line-buffered socket (stream protocol) or a websocket text frame
// (framed protocol). Both live in pkg/netio.
type Outputter interface {
	SendLine(line string) error
}

// Host is the cross-session surface the admin built-ins need
// (shutdown/users/promote). pkg/netio's Multiplexer satisfies this
// structurally; pkg/session never imports pkg/netio, avoiding the
// import cycle that would otherwise create.
type Host interface {
	Broadcast(msg string)
	Sessions() []*Session
	RequestShutdown()
}

// Session is one connected player's state: identity, login progress,
// the object bound to them once they reach Playing, and the shared VM
// resources (machine, efun registry, player store) every session in
// the process uses.
type Session struct {
	ID           uuid.UUID
	State        State
	Username     string
	PrivLevel    int
	BoundObject  value.Value
	LastActivity time.Time

	out      Outputter
	machine  *vm.VM
	registry *efun.Registry
	players  *store.PlayerStore
	host     Host
	log      *slog.Logger

	playerProgram *bytecode.Program
	pendingPass   string
	passwordHash  string

	limiter *rate.Limiter
}

// New builds a freshly Connecting Session. playerProgram is the
// compiled program clone_object attaches to every newly created player
// object (SPEC_FULL.md's bootstrap "master_source_path" compiles to
// this). host is nil-able for tests that don't exercise admin
// built-ins.
func New(out Outputter, machine *vm.VM, registry *efun.Registry, players *store.PlayerStore, playerProgram *bytecode.Program, host Host, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		ID:            uuid.New(),
		State:         Connecting,
		out:           out,
		machine:       machine,
		registry:      registry,
		players:       players,
		playerProgram: playerProgram,
		host:          host,
		log:           log,
		LastActivity:  time.Now(),
		BoundObject:   value.NullValue(),
		// One command line per 200ms, bursting to 5 — generous enough
		// for ordinary typing, tight enough to stop a scripted flood
		// from monopolizing the single-threaded dispatch loop.
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// Banner sends the welcome text and moves the Session into GetName.
// The multiplexer calls this once, immediately after accepting a
// connection.
func (s *Session) Banner() {
	s.send("Welcome to the AMLP driver.")
	s.send("Name: ")
	s.State = GetName
}

func (s *Session) send(line string) {
	if err := s.out.SendLine(line); err != nil {
		s.log.Warn("session: write failed", "session", s.ID, "err", err)
	}
}

// HandleLine routes one line of player input through the state
// machine. It is the only entry point the multiplexer calls once a
// session exists.
func (s *Session) HandleLine(line string) {
	s.LastActivity = time.Now()
	if !s.limiter.Allow() {
		s.send("You are typing too fast.")
		return
	}
	line = strings.TrimSpace(line)

	switch s.State {
	case GetName:
		s.handleGetName(line)
	case GetPassword:
		s.handleGetPassword(line)
	case NewPassword:
		s.handleNewPassword(line)
	case ConfirmPassword:
		s.handleConfirmPassword(line)
	case Chargen:
		s.handleChargen(line)
	case Playing:
		s.handlePlaying(line)
	default:
		s.log.Warn("session: input received in terminal state", "session", s.ID, "state", s.State)
	}
}

func validName(name string) bool {
	if len(name) < 3 || len(name) > 15 {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func (s *Session) handleGetName(line string) {
	if !validName(line) {
		s.send("Names must be 3-15 letters or digits. Name: ")
		return
	}
	s.Username = line
	if s.players.Exists(line) {
		s.send("Password: ")
		s.State = GetPassword
		return
	}
	s.send("New character. Choose a password (at least 6 characters): ")
	s.State = NewPassword
}

func (s *Session) handleGetPassword(line string) {
	rec, ok, err := s.players.Load(s.Username)
	if err != nil || !ok {
		s.send("Login failed.")
		s.State = Disconnecting
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(line)) != nil {
		s.send("Incorrect password.")
		s.State = Disconnecting
		return
	}
	s.PrivLevel = rec.PrivLevel
	s.passwordHash = rec.PasswordHash
	s.enterPlaying()
}

func (s *Session) handleNewPassword(line string) {
	if len(line) < 6 {
		s.send("Passwords must be at least 6 characters. Choose a password: ")
		return
	}
	s.pendingPass = line
	s.send("Confirm password: ")
	s.State = ConfirmPassword
}

func (s *Session) handleConfirmPassword(line string) {
	if line != s.pendingPass {
		s.pendingPass = ""
		s.send("Passwords did not match. Choose a password: ")
		s.State = NewPassword
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(line), bcrypt.DefaultCost)
	if err != nil {
		s.send("Could not create your account.")
		s.State = Disconnecting
		return
	}
	s.passwordHash = string(hash)
	s.pendingPass = ""
	s.PrivLevel = 1

	if s.playerProgram != nil {
		obj, err := s.registry.Objects().CloneObject(s.machine, "/obj/player/"+s.Username, s.playerProgram)
		if err != nil {
			s.log.Error("session: clone_object for new player failed", "err", err)
		} else {
			s.BoundObject = object.ValueOf(obj)
		}
	}

	s.send("Character generation is not implemented by this build; press Enter to continue.")
	s.State = Chargen
}

func (s *Session) handleChargen(string) {
	s.enterPlaying()
}

func (s *Session) enterPlaying() {
	s.State = Playing
	s.send(fmt.Sprintf("Welcome, %s.", s.Username))
}

func (s *Session) handlePlaying(line string) {
	if line == "" {
		return
	}
	if strings.EqualFold(line, "quit") {
		s.quit()
		return
	}

	if resolver, ok := s.BoundObject.AsObject().(vm.MethodResolver); ok {
		s.registry.SetCurrentPlayer(s.BoundObject)
		result, rerr := s.machine.InvokeMethod(resolver, "process_command", []value.Value{value.StringValue(line)})
		s.registry.SetCurrentPlayer(value.NullValue())
		if rerr != nil {
			s.log.Error("session: process_command runtime error", "session", s.ID, "err", rerr)
		} else if result.Kind() == value.String {
			s.send(result.AsString())
			return
		}
	}

	s.send(s.builtinDispatch(line))
}

func (s *Session) quit() {
	s.save()
	s.send("Goodbye.")
	s.State = Disconnecting
}

func (s *Session) save() {
	if s.Username == "" {
		return
	}
	rec := store.Record{Name: s.Username, PrivLevel: s.PrivLevel, PasswordHash: s.passwordHash}
	if err := s.players.Save(rec); err != nil {
		s.log.Error("session: save failed", "session", s.ID, "username", s.Username, "err", err)
	}
}

// Disconnect persists a minimal save record (iff a username was ever
// set) and moves the session to its terminal state. The multiplexer
// calls this once, when the underlying connection is torn down for any
// reason other than an explicit quit.
func (s *Session) Disconnect() {
	if s.State != Disconnecting {
		s.save()
	}
	s.State = Disconnecting
}
