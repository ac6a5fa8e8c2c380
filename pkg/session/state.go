package session

// State is one node of the login/play state machine spec.md §4.9
// defines. The multiplexer (pkg/netio) only ever sees a Session
// through HandleLine/Banner; transition logic lives entirely here.
type State int

const (
	// Connecting is the transient state a Session starts in, before
	// its banner has been sent.
	Connecting State = iota
	GetName
	GetPassword
	NewPassword
	ConfirmPassword
	// Chargen models entry into character generation. Its actual
	// content is out of scope (spec.md §1 Non-goals) — the driver
	// treats it as an opaque step that any input line completes.
	Chargen
	Playing
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case GetName:
		return "GetName"
	case GetPassword:
		return "GetPassword"
	case NewPassword:
		return "NewPassword"
	case ConfirmPassword:
		return "ConfirmPassword"
	case Chargen:
		return "Chargen"
	case Playing:
		return "Playing"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}
