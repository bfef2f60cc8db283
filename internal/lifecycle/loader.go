package lifecycle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/pulse/internal/signal"
)

// fileStageConfig is the on-disk shape of one signal type's workflow.
type fileStageConfig struct {
	Stages          []string          `yaml:"stages"`
	StatusToStage   map[string]string `yaml:"status_to_stage"`
	DefaultOwners   map[string]string `yaml:"default_owners"`
	DefaultSLAHours *int              `yaml:"default_sla_hours"`
}

// LoadFile reads a YAML stage table from path. An empty path returns the
// default table.
//
// The file is a mapping from signal type to its workflow:
//
//	purchase:
//	  stages: [submitted, approved, ordered, delivered, invoiced, closed]
//	  status_to_stage: {pending: submitted, approved: approved}
//	  default_owners: {submitted: Team Lead}
//	  default_sla_hours: 48
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read stage config: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("stage config %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a YAML stage table. Unknown fields are rejected.
func Parse(data []byte) (*Table, error) {
	var raw map[string]fileStageConfig

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("stage config is empty")
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	configs := make(map[signal.Type]StageConfig, len(raw))
	for name, fc := range raw {
		sc := StageConfig{
			Stages:          fc.Stages,
			StatusToStage:   make(map[signal.Status]string, len(fc.StatusToStage)),
			DefaultOwners:   fc.DefaultOwners,
			DefaultSLAHours: fc.DefaultSLAHours,
		}
		for status, stage := range fc.StatusToStage {
			sc.StatusToStage[signal.Status(status)] = stage
		}
		configs[signal.Type(name)] = sc
	}
	return NewTable(configs)
}
