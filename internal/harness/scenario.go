package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/source"
)

// Scenario defines a conformance test scenario: contract terms, an ordered
// event delivery, the rejections the delivery must produce, and assertions
// over the final state.
//
// The contracts and events sections use the same format as standalone
// contract and event files and are validated by the source package.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Duplicates selects the aggregator's duplicate policy: "reject"
	// (default) or "apply".
	Duplicates string `yaml:"duplicates,omitempty"`

	// BatchToken is recorded on every logged event. Defaults to
	// "test-batch-default" so golden files are stable.
	BatchToken string `yaml:"batch_token,omitempty"`

	// Contracts and Events are decoded by the source package; the raw nodes
	// are kept only so strict YAML decoding accepts the keys.
	Contracts yaml.Node `yaml:"contracts"`
	Events    yaml.Node `yaml:"events"`

	// Rejections lists the events that must be refused, by index into Events.
	// Any other refused event fails the scenario.
	Rejections []Rejection `yaml:"rejections,omitempty"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`

	contracts aggregate.StaticContracts
	events    []ir.LedgerEvent
	policy    aggregate.DuplicatePolicy
	path      string
}

// Rejection expects event Event (0-based) to fail with Code.
type Rejection struct {
	Event int    `yaml:"event"`
	Code  string `yaml:"code"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "project", "donor": entity at Address
	// - "contribution": contribution EventKey, or the key derived from
	//   TxHash and LogIndex
	// - "milestone": milestone Index of project Address
	// - "event_count": number of logged events equals Count
	// - "invariants": the derived-state invariants hold
	// - "replay": re-folding the event log reproduces the stored state
	Type string `yaml:"type"`

	Address  string  `yaml:"address,omitempty"`
	Index    *uint32 `yaml:"index,omitempty"`
	EventKey string  `yaml:"event_key,omitempty"`
	TxHash   string  `yaml:"tx_hash,omitempty"`
	LogIndex *uint32 `yaml:"log_index,omitempty"`

	// Absent asserts that the entity does not exist.
	Absent bool `yaml:"absent,omitempty"`

	// Expect contains expected field values. Subset match: only the listed
	// fields are compared. Field names are the snake_case JSON names.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is used by event_count.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertProject      = "project"
	AssertDonor        = "donor"
	AssertContribution = "contribution"
	AssertMilestone    = "milestone"
	AssertEventCount   = "event_count"
	AssertInvariants   = "invariants"
	AssertReplay       = "replay"
)

// Path returns the file the scenario was parsed from.
func (s *Scenario) Path() string {
	return s.path
}

// LedgerEvents returns the decoded scenario events in delivery order.
func (s *Scenario) LedgerEvents() []ir.LedgerEvent {
	return s.events
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(path, data)
}

// ParseScenario parses scenario YAML. path is used in error messages.
func ParseScenario(path string, data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos)
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err := decoder.Decode(&scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.path = path

	scenario.contracts, err = source.ParseContractsSection(path, data)
	if err != nil {
		return nil, fmt.Errorf("invalid contracts: %w", err)
	}
	scenario.events, err = source.ParseEventsSection(path, data)
	if err != nil {
		return nil, fmt.Errorf("invalid events: %w", err)
	}
	scenario.policy, err = aggregate.ParseDuplicatePolicy(scenario.Duplicates)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", p, s.Name, prev)
		}
		seen[s.Name] = p
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[int]bool, len(s.Rejections))
	for i, r := range s.Rejections {
		if r.Event < 0 || r.Event >= len(s.events) {
			return fmt.Errorf("rejections[%d]: event %d out of range (have %d events)", i, r.Event, len(s.events))
		}
		if r.Code == "" {
			return fmt.Errorf("rejections[%d]: code is required", i)
		}
		if seen[r.Event] {
			return fmt.Errorf("rejections[%d]: event %d listed twice", i, r.Event)
		}
		seen[r.Event] = true
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needsExpect := func() error {
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for %s", index, a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertProject, AssertDonor:
		if _, err := ir.ParseAddress(a.Address); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		return needsExpect()
	case AssertMilestone:
		if _, err := ir.ParseAddress(a.Address); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Index == nil {
			return fmt.Errorf("assertions[%d]: index is required for milestone", index)
		}
		return needsExpect()
	case AssertContribution:
		if a.EventKey == "" && (a.TxHash == "" || a.LogIndex == nil) {
			return fmt.Errorf("assertions[%d]: event_key or tx_hash and log_index required for contribution", index)
		}
		return needsExpect()
	case AssertEventCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for event_count", index)
		}
	case AssertInvariants, AssertReplay:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
