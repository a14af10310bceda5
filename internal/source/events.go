package source

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/ir"
)

// rawEvent is one element of an event batch as written in YAML.
// Amounts and times stay strings until conversion so large integers survive.
type rawEvent struct {
	Kind           string  `yaml:"kind"`
	EventKey       string  `yaml:"event_key"`
	TxHash         string  `yaml:"tx_hash"`
	LogIndex       *uint32 `yaml:"log_index"`
	Source         string  `yaml:"source"`
	Donor          string  `yaml:"donor"`
	Amount         string  `yaml:"amount"`
	Timestamp      string  `yaml:"timestamp"`
	MilestoneIndex uint32  `yaml:"milestone_index"`
	Description    string  `yaml:"description"`
}

// LoadEvents reads and validates an event batch file.
func LoadEvents(path string) ([]ir.LedgerEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return ParseEvents(path, data)
}

// ParseEvents validates an event batch and converts it to ledger events in
// file order. filename is used for error positions only.
//
// Schema violations return a *SchemaError. Semantic problems are collected
// and returned together, joined with errors.Join.
func ParseEvents(filename string, data []byte) ([]ir.LedgerEvent, error) {
	return parseEvents(filename, data, "#Events")
}

// ParseEventsSection is like ParseEvents but tolerates other top-level keys,
// for documents such as scenarios that embed an event batch.
func ParseEventsSection(filename string, data []byte) ([]ir.LedgerEvent, error) {
	return parseEvents(filename, data, "#EventsSection")
}

func parseEvents(filename string, data []byte, envelope string) ([]ir.LedgerEvent, error) {
	s, err := compileSchema()
	if err != nil {
		return nil, err
	}
	v, err := s.extract(filename, data)
	if err != nil {
		return nil, err
	}
	if err := s.checkEvents(envelope, v); err != nil {
		return nil, err
	}

	nodes, err := sequenceNodes(data, "events")
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}

	events := make([]ir.LedgerEvent, 0, len(nodes))
	var errs []error
	for i, node := range nodes {
		var raw rawEvent
		if err := node.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s: events[%d]: %w", filename, i, err)
		}
		ev, verrs := raw.toEvent()
		for _, ve := range verrs {
			ve.File = filename
			ve.Line = node.Line
			ve.Field = fmt.Sprintf("events[%d].%s", i, ve.Field)
			errs = append(errs, ve)
		}
		if len(verrs) == 0 {
			events = append(events, ev)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return events, nil
}

// sequenceNodes returns the elements of the top-level sequence under key.
func sequenceNodes(data []byte, key string) ([]*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != key {
			continue
		}
		seq := root.Content[i+1]
		if seq.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("line %d: %s must be a list", seq.Line, key)
		}
		return seq.Content, nil
	}
	return nil, nil
}

func (r rawEvent) toEvent() (ir.LedgerEvent, []ValidationError) {
	var errs []ValidationError
	fail := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	key, err := r.key()
	if err != nil {
		var ve ValidationError
		if !errors.As(err, &ve) {
			ve = ValidationError{Code: ErrLocatorMissing, Field: "tx_hash", Message: err.Error()}
		}
		errs = append(errs, ve)
	}

	source, err := ir.ParseAddress(r.Source)
	if err != nil {
		fail(ErrBadAddress, "source", "%v", err)
	}

	ev := ir.LedgerEvent{Key: key, Kind: ir.EventKind(r.Kind)}
	switch ev.Kind {
	case ir.KindDonation:
		donor, err := ir.ParseAddress(r.Donor)
		if err != nil {
			fail(ErrBadAddress, "donor", "%v", err)
		}
		amount, err := ir.ParseAmount(r.Amount)
		if err != nil {
			fail(ErrBadAmount, "amount", "%v", err)
		}
		ts, err := parseTime(r.Timestamp)
		if err != nil {
			fail(ErrBadTime, "timestamp", "%v", err)
		}
		ev.Donation = &ir.Donation{
			Source:    source,
			Donor:     donor,
			Amount:    amount,
			EventKey:  key,
			Timestamp: ts,
		}

	case ir.KindMilestoneProvisioned:
		var amount ir.Amount
		if r.Amount != "" {
			amount, err = ir.ParseAmount(r.Amount)
			if err != nil {
				fail(ErrBadAmount, "amount", "%v", err)
			}
		}
		ev.Provision = &ir.MilestoneProvision{
			Source:      source,
			Index:       r.MilestoneIndex,
			Description: r.Description,
			Amount:      amount,
		}

	case ir.KindMilestoneSettled:
		ev.Settlement = &ir.MilestoneSettlement{Source: source, Index: r.MilestoneIndex}

	case ir.KindFundingClosed:
		at, err := parseTime(r.Timestamp)
		if err != nil {
			fail(ErrBadTime, "timestamp", "%v", err)
		}
		ev.Closure = &ir.FundingClosure{Source: source, At: at}

	default:
		fail(ErrUnknownKind, "kind", "unknown event kind %q", r.Kind)
	}
	return ev, errs
}

// key returns the explicit event key or derives one from the log locator.
func (r rawEvent) key() (string, error) {
	switch {
	case r.EventKey != "" && r.TxHash != "":
		return "", ValidationError{Code: ErrLocatorConflict, Field: "event_key",
			Message: "event_key and tx_hash are mutually exclusive"}
	case r.EventKey != "":
		return r.EventKey, nil
	case r.TxHash != "":
		if r.LogIndex == nil {
			return "", ValidationError{Code: ErrLogIndexMissing, Field: "log_index",
				Message: "tx_hash requires log_index"}
		}
		return ir.EventKey(r.TxHash, *r.LogIndex)
	default:
		return "", ValidationError{Code: ErrLocatorMissing, Field: "event_key",
			Message: "event needs event_key or tx_hash and log_index"}
	}
}

// parseTime accepts unix seconds, RFC 3339, or a bare date. Empty is the
// zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return ir.NormalizeTime(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not unix seconds or RFC 3339", s)
}
