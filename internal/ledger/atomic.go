package ledger

import (
	"github.com/elys-network/perpvault/internal/types"
)

type snapshot struct {
	tokens   map[types.Address]*token
	events   int
	journals []any
}

// Register adds a collaborator to every future snapshot.
func (l *Ledger) Register(j Journaled) {
	l.journals = append(l.journals, j)
}

func (l *Ledger) snapshot() snapshot {
	s := snapshot{
		tokens:   make(map[types.Address]*token, len(l.tokens)),
		events:   len(l.events),
		journals: make([]any, len(l.journals)),
	}
	for k, t := range l.tokens {
		s.tokens[k] = t.clone()
	}
	for i, j := range l.journals {
		s.journals[i] = j.Snapshot()
	}
	return s
}

func (l *Ledger) restore(s snapshot) {
	l.tokens = s.tokens
	l.events = l.events[:s.events]
	for i, snap := range s.journals {
		l.journals[i].Restore(snap)
	}
}

// Atomic runs fn and rolls back every balance, supply, event and journaled collaborator if fn
// returns an error or panics. Calls may nest.
func (l *Ledger) Atomic(fn func() error) (err error) {
	s := l.snapshot()
	defer func() {
		if r := recover(); r != nil {
			l.restore(s)
			panic(r)
		}
		if err != nil {
			l.restore(s)
		}
	}()
	return fn()
}
