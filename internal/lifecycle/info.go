package lifecycle

import (
	"slices"

	"github.com/linnemanlabs/pulse/internal/signal"
)

// Info is a signal's position in its type's workflow.
type Info struct {
	Stages       []string `json:"stages"`
	CurrentIndex int      `json:"current_index"`
	CurrentStage string   `json:"current_stage"`
	CurrentOwner string   `json:"current_owner"`
	SLAHours     *int     `json:"sla_hours,omitempty"`
}

// GetLifecycleInfo resolves s against table. A nil table means the default table.
func GetLifecycleInfo(s *signal.Signal, table *Table) Info {
	if table == nil {
		table = DefaultTable()
	}
	return table.Info(s)
}

// Info resolves the current stage, owner and SLA for s.
//
// The stage key is the signal's explicit override, else the status mapping,
// else the first stage. A key that is not one of the configured stages
// resolves to index 0. Type and status are matched leniently, the same way
// the classifier reads them.
func (t *Table) Info(s *signal.Signal) Info {
	sc := t.lookup(signal.ParseType(string(s.Type)))

	key := s.LifecycleStage
	if key == "" {
		key = sc.StatusToStage[signal.ParseStatus(string(s.Status))]
	}
	if key == "" {
		key = sc.Stages[0]
	}

	idx := slices.Index(sc.Stages, key)
	if idx < 0 {
		idx = 0
	}

	owner := s.CurrentOwner
	if owner == "" {
		owner = sc.DefaultOwners[key]
	}
	if owner == "" {
		owner = UnassignedOwner
	}

	var sla *int
	switch {
	case s.SLAHours != nil:
		h := *s.SLAHours
		sla = &h
	case sc.DefaultSLAHours != nil:
		h := *sc.DefaultSLAHours
		sla = &h
	}

	return Info{
		Stages:       slices.Clone(sc.Stages),
		CurrentIndex: idx,
		CurrentStage: sc.Stages[idx],
		CurrentOwner: owner,
		SLAHours:     sla,
	}
}
