package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted unit of work: a model, a sequence of session
// operations and flushes, and assertions over the resulting plans and the
// stored rows.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the directory holding the CUE model. Relative paths are
	// resolved against the scenario file.
	Model string `yaml:"model"`

	// KeyMode is "durable" (default) or "temporary".
	KeyMode string `yaml:"key_mode,omitempty"`

	// Sorted selects the dependency-sorting generator. Defaults to true.
	Sorted *bool `yaml:"sorted,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one session operation. Entities are referred to by the alias
// given in As when they were created or loaded.
type Step struct {
	// Do names the operation; see the Op constants.
	Do string `yaml:"do"`

	// As names the entity a create or get step produces.
	As string `yaml:"as,omitempty"`

	// Type is the entity type for create and get.
	Type string `yaml:"type,omitempty"`

	// Key gives explicit key values for create and get.
	Key []any `yaml:"key,omitempty"`

	// Values sets value fields after a create.
	Values map[string]any `yaml:"values,omitempty"`

	// Entity is the alias the operation applies to.
	Entity string `yaml:"entity,omitempty"`

	// Field is the field set, referenced or collection touched.
	Field string `yaml:"field,omitempty"`

	// Value is the new value of a set step.
	Value any `yaml:"value,omitempty"`

	// Target is the referenced alias of a ref step. Empty clears it.
	Target string `yaml:"target,omitempty"`

	// Item is the member alias of add and drop.
	Item string `yaml:"item,omitempty"`

	// ExpectError marks a step that must fail. The value is matched as a
	// substring of the error text; "any" accepts every error.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpCreate   = "create"
	OpGet      = "get"
	OpSet      = "set"
	OpRef      = "ref"
	OpRemove   = "remove"
	OpAdd      = "add"
	OpDrop     = "drop"
	OpPin      = "pin"
	OpUnpin    = "unpin"
	OpFlush    = "flush"
	OpRollback = "rollback"
)

// Assertion validates the flush trace or the stored rows.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Flush selects a flush by 1-based position among executed flushes.
	// Zero means the last one.
	Flush int `yaml:"flush,omitempty"`

	// First and Then are action prefixes; used by action_order.
	First string `yaml:"first,omitempty"`
	Then  string `yaml:"then,omitempty"`

	// Kind is insert, update or remove; used by action_count.
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number for the counting assertions.
	Count int `yaml:"count"`

	// Entity is a type name for row_count and stored, and an alias for
	// entity_state.
	Entity string `yaml:"entity,omitempty"`
	Key    []any  `yaml:"key,omitempty"`

	// Expect holds expected field values of a stored row. A reference is
	// written as the list of the target's key values.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Missing asserts that the stored row does not exist.
	Missing bool `yaml:"missing,omitempty"`

	// State is the expected persistence state of a session entity alias.
	State string `yaml:"state,omitempty"`
}

// Assertion types.
const (
	AssertActionOrder   = "action_order"
	AssertActionCount   = "action_count"
	AssertCompensations = "compensations"
	AssertRowCount      = "row_count"
	AssertStored        = "stored"
	AssertEntityState   = "entity_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and the model path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) {
		scenario.Model = filepath.Join(filepath.Dir(path), scenario.Model)
	}
	if _, err := os.Stat(scenario.Model); err != nil {
		return nil, fmt.Errorf("invalid scenario: model directory: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes a scenario without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	switch s.KeyMode {
	case "", "durable", "temporary":
	default:
		return fmt.Errorf("key_mode must be durable or temporary, got %q", s.KeyMode)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, st *Step) error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("steps[%d]: %s requires %s", i, st.Do, field)
		}
		return nil
	}

	switch st.Do {
	case OpCreate, OpGet:
		if err := need("as", st.As); err != nil {
			return err
		}
		if st.Do == OpGet && len(st.Key) == 0 {
			return fmt.Errorf("steps[%d]: get requires key", i)
		}
		return need("type", st.Type)
	case OpSet, OpRef:
		if err := need("entity", st.Entity); err != nil {
			return err
		}
		return need("field", st.Field)
	case OpAdd, OpDrop:
		if err := need("entity", st.Entity); err != nil {
			return err
		}
		if err := need("field", st.Field); err != nil {
			return err
		}
		return need("item", st.Item)
	case OpRemove, OpPin, OpUnpin:
		return need("entity", st.Entity)
	case OpFlush, OpRollback:
		return nil
	case "":
		return fmt.Errorf("steps[%d]: do is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown operation %q", i, st.Do)
	}
}

func validateAssertion(i int, a *Assertion) error {
	switch a.Type {
	case AssertActionOrder:
		if a.First == "" || a.Then == "" {
			return fmt.Errorf("assertions[%d]: action_order requires first and then", i)
		}
	case AssertActionCount:
		switch a.Kind {
		case "insert", "update", "remove":
		default:
			return fmt.Errorf("assertions[%d]: action_count kind must be insert, update or remove, got %q", i, a.Kind)
		}
	case AssertCompensations:
	case AssertRowCount:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: row_count requires entity", i)
		}
	case AssertStored:
		if a.Entity == "" || len(a.Key) == 0 {
			return fmt.Errorf("assertions[%d]: stored requires entity and key", i)
		}
		if !a.Missing && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: stored requires expect or missing", i)
		}
	case AssertEntityState:
		if a.Entity == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: entity_state requires entity and state", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	if a.Flush < 0 {
		return fmt.Errorf("assertions[%d]: flush must be positive", i)
	}
	return nil
}
