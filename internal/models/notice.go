package models

import (
	"errors"
	"fmt"
	"time"
)

// Notice is a short-lived operator message.
type Notice struct {
	Text  string
	Kind  error
	Until time.Time
}

func NewNotice(err error, now time.Time, ttl time.Duration) Notice {
	n := Notice{Text: Message(err), Until: now.Add(ttl)}
	for _, k := range []error{ErrNotFound, ErrConflict, ErrValidation, ErrIO} {
		if errors.Is(err, k) {
			n.Kind = k
			break
		}
	}
	return n
}

func (n Notice) Active(now time.Time) bool {
	return n.Text != "" && now.Before(n.Until)
}

// Message renders err for a banner. It is Error without the operation
// prefix.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = e.Msg
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}
