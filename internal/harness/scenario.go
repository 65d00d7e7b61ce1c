package harness

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// Scenario describes one relay run: the entities that exist, the events
// pushed at them, and optionally what the run must produce.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description" json:"description"`

	// RunToken is a fixed run token for deterministic traces.
	// If empty, testutil.DefaultRunToken is used.
	RunToken string `yaml:"run_token,omitempty" json:"run_token,omitempty"`

	// Workers is the pool size. 0 leaves the choice to the caller.
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty"`

	// Entities are spawned in order; events refer to them by position.
	// A roster supplied with WithRoster replaces them.
	Entities []EntitySpec `yaml:"entities,omitempty" json:"entities,omitempty"`

	// Events are pushed exclusively, in order, before the first drain.
	Events []EventSpec `yaml:"events" json:"events"`

	// Expect is checked against the result when present.
	Expect *Expect `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// EntitySpec is one roster member.
type EntitySpec struct {
	Name string `yaml:"name" json:"name"`
	Age  int    `yaml:"age" json:"age"`

	// Despawn removes the entity after events are pushed and before any
	// drain, so its events are skipped by the joining reader.
	Despawn bool `yaml:"despawn,omitempty" json:"despawn,omitempty"`
}

// EventSpec is one print event.
type EventSpec struct {
	// Target is the position of the entity in the roster.
	Target int `yaml:"target" json:"target"`

	// Append is joined to the entity's name on print.
	Append string `yaml:"append" json:"append"`
}

// Expect lists the expected outcome. Unset fields are not checked.
type Expect struct {
	// Lines is the sorted list of shouted lines.
	Lines []string `yaml:"lines,omitempty" json:"lines,omitempty"`

	// Skipped is the total number of events skipped across both drains.
	Skipped *int `yaml:"skipped,omitempty" json:"skipped,omitempty"`
}

// LoadScenario reads, decodes and validates a scenario file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields, or violates the scenario schema.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(filepath.Base(path), data)
}

// ParseScenario decodes and validates scenario YAML. filename is only used
// in error positions.
func ParseScenario(filename string, data []byte) (*Scenario, error) {
	// Strict decode catches typos like "event:" vs "events:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := checkSchema(filename, data); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// checkSchema unifies the YAML document with the #Scenario definition.
func checkSchema(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling scenario schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("building %s: %w", filename, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Scenario")).Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// validateScenario checks what the schema cannot: event targets must name
// a declared entity. Scenarios without entities rely on a roster supplied
// at run time and are checked there.
func validateScenario(s *Scenario) error {
	if len(s.Entities) == 0 {
		return nil
	}
	for i, ev := range s.Events {
		if ev.Target >= len(s.Entities) {
			return fmt.Errorf("events[%d]: target %d out of range (%d entities)", i, ev.Target, len(s.Entities))
		}
	}
	return nil
}
