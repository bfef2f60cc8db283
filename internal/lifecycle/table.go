// Package lifecycle maps signals onto their per-type workflow stages and
// derives SLA and progress facts for display. Everything here is a pure
// function of a signal, an immutable stage Table, and (for SLA) a clock.
package lifecycle

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/linnemanlabs/pulse/internal/signal"
)

// UnassignedOwner is reported when neither the signal nor the table names an owner.
const UnassignedOwner = "Unassigned"

// StageConfig describes the ordered workflow for one signal type.
type StageConfig struct {
	Stages          []string
	StatusToStage   map[signal.Status]string
	DefaultOwners   map[string]string
	DefaultSLAHours *int
}

// Table is an immutable set of StageConfigs keyed by signal type. It always
// holds a TypeGeneral entry, used for unconfigured types.
type Table struct {
	configs map[signal.Type]StageConfig
}

// NewTable validates configs and returns a Table holding private copies of
// them. A missing TypeGeneral entry is filled from the default table.
func NewTable(configs map[signal.Type]StageConfig) (*Table, error) {
	var errs []error
	out := make(map[signal.Type]StageConfig, len(configs)+1)

	for typ, sc := range configs {
		if !typ.Valid() {
			errs = append(errs, fmt.Errorf("unknown signal type %q", typ))
			continue
		}
		if err := sc.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", typ, err))
			continue
		}
		out[typ] = sc.clone()
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if _, ok := out[signal.TypeGeneral]; !ok {
		out[signal.TypeGeneral] = defaultConfigs()[signal.TypeGeneral]
	}
	return &Table{configs: out}, nil
}

// Config returns the StageConfig for typ, falling back to the general entry.
// The returned value shares no memory with the table.
func (t *Table) Config(typ signal.Type) StageConfig {
	return t.lookup(typ).clone()
}

// Types returns the configured signal types in sorted order.
func (t *Table) Types() []signal.Type {
	out := make([]signal.Type, 0, len(t.configs))
	for typ := range t.configs {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Table) lookup(typ signal.Type) StageConfig {
	if sc, ok := t.configs[typ]; ok {
		return sc
	}
	return t.configs[signal.TypeGeneral]
}

func (sc StageConfig) validate() error {
	if len(sc.Stages) == 0 {
		return errors.New("at least one stage is required")
	}
	seen := make(map[string]bool, len(sc.Stages))
	for _, st := range sc.Stages {
		if st == "" {
			return errors.New("stage names must be non-empty")
		}
		if seen[st] {
			return fmt.Errorf("duplicate stage %q", st)
		}
		seen[st] = true
	}
	for status, st := range sc.StatusToStage {
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", status)
		}
		if !seen[st] {
			return fmt.Errorf("status %q maps to unknown stage %q", status, st)
		}
	}
	for st := range sc.DefaultOwners {
		if !seen[st] {
			return fmt.Errorf("owner configured for unknown stage %q", st)
		}
	}
	if sc.DefaultSLAHours != nil && *sc.DefaultSLAHours <= 0 {
		return fmt.Errorf("default SLA hours must be positive, got %d", *sc.DefaultSLAHours)
	}
	return nil
}

func (sc StageConfig) clone() StageConfig {
	out := StageConfig{
		Stages:        slices.Clone(sc.Stages),
		StatusToStage: make(map[signal.Status]string, len(sc.StatusToStage)),
		DefaultOwners: make(map[string]string, len(sc.DefaultOwners)),
	}
	for k, v := range sc.StatusToStage {
		out.StatusToStage[k] = v
	}
	for k, v := range sc.DefaultOwners {
		out.DefaultOwners[k] = v
	}
	if sc.DefaultSLAHours != nil {
		h := *sc.DefaultSLAHours
		out.DefaultSLAHours = &h
	}
	return out
}
