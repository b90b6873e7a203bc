package codec

import "fmt"

// State is the lifecycle position of an encoder or decoder session. The zero
// value is StateUnopened.
type State int

const (
	StateUnopened State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RequireActive returns ErrStateCorruption, annotated with op, unless s is
// StateActive.
func (s State) RequireActive(op string) error {
	if s == StateActive {
		return nil
	}
	return fmt.Errorf("%s on %s session: %w", op, s, ErrStateCorruption)
}
