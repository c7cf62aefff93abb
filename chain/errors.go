package chain

import "fmt"

// ErrorKind classifies every failure the hard core can report, matching the
// six-way split a caller must be able to switch on: whether a retry ever
// makes sense, whether the input was simply bad, or whether the node itself
// is no longer trustworthy.
type ErrorKind string

const (
	// Malformed means the bytes could not even be parsed into a value.
	Malformed ErrorKind = "MALFORMED"
	// SemanticInvalid means the value parses but violates a context-free
	// rule (bad signature, weight over the limit, duplicate input).
	SemanticInvalid ErrorKind = "SEMANTIC_INVALID"
	// StateInvalid means the value is only invalid against the current
	// authenticated state (missing box, height lock not yet reached).
	StateInvalid ErrorKind = "STATE_INVALID"
	// NotApplicable means the modifier cannot be applied right now (it
	// does not extend any known version) but may become valid later.
	NotApplicable ErrorKind = "NOT_APPLICABLE"
	// Transient means the failure is environmental (I/O, timeout) and a
	// retry of the same operation may succeed.
	Transient ErrorKind = "TRANSIENT"
	// Fatal means the node's invariants have been violated and it must
	// stop rather than continue operating on state it can no longer trust.
	Fatal ErrorKind = "FATAL"
)

// Error is the leaf-level error value every chain/state/history operation
// returns. mining.Coordinator.AssembleCandidate wraps the errors it passes
// on with pkg/errors to attach a stack; KindOf still finds the Error inside.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Newf builds a chain.Error with a formatted message.
func Newf(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind carried by err, defaulting to Fatal for any
// error that did not originate as a *chain.Error (e.g. an unexpected bug).
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *Error
	for {
		if e, ok := err.(*Error); ok {
			ce = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
		if err == nil {
			break
		}
	}
	if ce == nil {
		return Fatal
	}
	return ce.Kind
}
