package alerting

import (
	"sort"
	"time"

	"github.com/Praj460/PowerPulse-AI/pkg/dab"
)

// Store holds the live alerts of one converter, keyed by (kind, quantity).
// It is owned by the evaluation cycle and passed into the engine; it is
// not safe for concurrent use.
type Store struct {
	converterID string
	entries     map[dab.AlertKey]*entry
	trendStreak int
}

type entry struct {
	alert         dab.Alert
	severityAtAck dab.Severity
	clearSince    time.Time
}

func NewStore(converterID string) *Store {
	return &Store{
		converterID: converterID,
		entries:     map[dab.AlertKey]*entry{},
	}
}

func (s *Store) ConverterID() string {
	return s.converterID
}

// Active returns copies of all live alerts, oldest raise first.
func (s *Store) Active() []dab.Alert {
	out := make([]dab.Alert, 0, len(s.entries))
	for _, ent := range s.entries {
		out = append(out, ent.alert)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RaisedAt.Equal(out[j].RaisedAt) {
			return out[i].RaisedAt.Before(out[j].RaisedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) Get(id string) (dab.Alert, bool) {
	for _, ent := range s.entries {
		if ent.alert.ID == id {
			return ent.alert, true
		}
	}
	return dab.Alert{}, false
}

func (s *Store) find(id string) *entry {
	for _, ent := range s.entries {
		if ent.alert.ID == id {
			return ent
		}
	}
	return nil
}

func (s *Store) sortedKeys() []dab.AlertKey {
	keys := make([]dab.AlertKey, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Quantity < keys[j].Quantity
	})
	return keys
}
