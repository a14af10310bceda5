package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/tally/internal/ir"
)

// Event payloads are stored as RFC 8785 canonical JSON so that the same
// event always produces byte-identical rows. Times are unix seconds.

type donationRecord struct {
	Source    ir.Address `json:"source"`
	Donor     ir.Address `json:"donor"`
	Amount    ir.Amount  `json:"amount"`
	EventKey  string     `json:"event_key"`
	Timestamp int64      `json:"timestamp"`
}

type settlementRecord struct {
	Source ir.Address `json:"source"`
	Index  uint32     `json:"index"`
}

type provisionRecord struct {
	Source      ir.Address `json:"source"`
	Index       uint32     `json:"index"`
	Description string     `json:"description"`
	Amount      ir.Amount  `json:"amount"`
}

type closureRecord struct {
	Source ir.Address `json:"source"`
	At     int64      `json:"at"`
}

// marshalPayload converts the event's payload to canonical JSON TEXT.
func marshalPayload(ev ir.LedgerEvent) (string, error) {
	var m map[string]any
	switch ev.Kind {
	case ir.KindDonation:
		d := ev.Donation
		m = map[string]any{
			"source":    d.Source,
			"donor":     d.Donor,
			"amount":    d.Amount,
			"event_key": d.EventKey,
			"timestamp": d.Timestamp.Unix(),
		}
	case ir.KindMilestoneSettled:
		m = map[string]any{
			"source": ev.Settlement.Source,
			"index":  ev.Settlement.Index,
		}
	case ir.KindMilestoneProvisioned:
		p := ev.Provision
		m = map[string]any{
			"source":      p.Source,
			"index":       p.Index,
			"description": p.Description,
			"amount":      p.Amount,
		}
	case ir.KindFundingClosed:
		m = map[string]any{
			"source": ev.Closure.Source,
			"at":     ev.Closure.At.Unix(),
		}
	default:
		return "", fmt.Errorf("marshal payload: unknown kind %q", ev.Kind)
	}

	data, err := ir.MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload fills the payload field of ev matching ev.Kind.
func unmarshalPayload(ev *ir.LedgerEvent, data string) error {
	switch ev.Kind {
	case ir.KindDonation:
		var r donationRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return fmt.Errorf("unmarshal donation: %w", err)
		}
		ev.Donation = &ir.Donation{
			Source:    r.Source,
			Donor:     r.Donor,
			Amount:    r.Amount,
			EventKey:  r.EventKey,
			Timestamp: fromUnix(r.Timestamp),
		}
	case ir.KindMilestoneSettled:
		var r settlementRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return fmt.Errorf("unmarshal settlement: %w", err)
		}
		ev.Settlement = &ir.MilestoneSettlement{Source: r.Source, Index: r.Index}
	case ir.KindMilestoneProvisioned:
		var r provisionRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return fmt.Errorf("unmarshal provision: %w", err)
		}
		ev.Provision = &ir.MilestoneProvision{
			Source:      r.Source,
			Index:       r.Index,
			Description: r.Description,
			Amount:      r.Amount,
		}
	case ir.KindFundingClosed:
		var r closureRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return fmt.Errorf("unmarshal closure: %w", err)
		}
		ev.Closure = &ir.FundingClosure{Source: r.Source, At: fromUnix(r.At)}
	default:
		return fmt.Errorf("unmarshal payload: unknown kind %q", ev.Kind)
	}
	return nil
}

// fromUnix is the inverse of time.Time.Unix at second resolution.
// The zero time round-trips to the zero time.
func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
