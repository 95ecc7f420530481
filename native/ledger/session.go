package ledger

import (
	"errors"

	coreerrors "pegcore/core/errors"
)

var errSessionBound = errors.New("ledger: queue session already bound")

// Session is the capability the queue holds to open a handler window. A
// window admits exactly one handler entry and stays open until Close, so
// settlement callbacks that run after the handler cannot re-enter the
// ledger.
type Session struct {
	l *Ledger
}

type window struct {
	entered bool
}

// Bind hands out the ledger's single queue session.
func (l *Ledger) Bind() (*Session, error) {
	if l == nil {
		return nil, errNilState
	}
	if l.session != nil {
		return nil, errSessionBound
	}
	l.session = &Session{l: l}
	return l.session, nil
}

// Open starts a handler window for one operation.
func (s *Session) Open() error {
	if s == nil || s.l == nil {
		return errNilState
	}
	if s.l.window != nil {
		return coreerrors.ErrReentrancyGuard
	}
	s.l.window = &window{}
	return nil
}

// Close ends the current window. Closing twice is a no-op.
func (s *Session) Close() {
	if s == nil || s.l == nil {
		return
	}
	s.l.window = nil
}

// enter claims the open window for a handler.
func (l *Ledger) enter() error {
	if l.window == nil {
		return coreerrors.ErrOnlyQueue
	}
	if l.window.entered {
		return coreerrors.ErrReentrancyGuard
	}
	l.window.entered = true
	return nil
}

func (l *Ledger) inWindow() bool {
	return l.window != nil
}
