package ir

import (
	"errors"
	"fmt"
	"time"
)

// EventKind discriminates ledger event payloads.
type EventKind string

const (
	// KindDonation is a donation received by a project contract.
	KindDonation EventKind = "donation"
	// KindMilestoneProvisioned creates a milestone on a project.
	KindMilestoneProvisioned EventKind = "milestone_provisioned"
	// KindMilestoneSettled marks a milestone as paid out.
	KindMilestoneSettled EventKind = "milestone_settled"
	// KindFundingClosed ends a project's funding window.
	KindFundingClosed EventKind = "funding_closed"
)

// Donation is the payload of a donation event.
type Donation struct {
	Source    Address   `json:"source"`
	Donor     Address   `json:"donor"`
	Amount    Amount    `json:"amount"`
	EventKey  string    `json:"event_key"`
	Timestamp time.Time `json:"timestamp"`
}

// MilestoneSettlement is the payload of a milestone settlement event.
type MilestoneSettlement struct {
	Source Address `json:"source"`
	Index  uint32  `json:"index"`
}

// MilestoneProvision is the payload of a milestone provisioning event.
type MilestoneProvision struct {
	Source      Address `json:"source"`
	Index       uint32  `json:"index"`
	Description string  `json:"description,omitempty"`
	Amount      Amount  `json:"amount"`
}

// FundingClosure is the payload of a funding-closed event.
type FundingClosure struct {
	Source Address   `json:"source"`
	At     time.Time `json:"at"`
}

// LedgerEvent is the envelope for every event delivered by the upstream ledger.
// Exactly one payload field matching Kind is set.
type LedgerEvent struct {
	Seq        int64                `json:"seq"`
	Key        string               `json:"key"`
	Kind       EventKind            `json:"kind"`
	Batch      string               `json:"batch,omitempty"`
	Donation   *Donation            `json:"donation,omitempty"`
	Settlement *MilestoneSettlement `json:"settlement,omitempty"`
	Provision  *MilestoneProvision  `json:"provision,omitempty"`
	Closure    *FundingClosure      `json:"closure,omitempty"`
}

// ErrMalformedEvent is returned by Validate for envelopes whose payload does
// not match their kind.
var ErrMalformedEvent = errors.New("malformed ledger event")

// Validate checks the envelope shape. Payload semantics (positive amounts,
// known contracts) are checked by the aggregator.
func (e LedgerEvent) Validate() error {
	if e.Key == "" {
		return fmt.Errorf("%w: missing key", ErrMalformedEvent)
	}
	set := 0
	for _, present := range []bool{e.Donation != nil, e.Settlement != nil, e.Provision != nil, e.Closure != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: %s carries %d payloads", ErrMalformedEvent, e.Key, set)
	}
	var ok bool
	switch e.Kind {
	case KindDonation:
		ok = e.Donation != nil
	case KindMilestoneSettled:
		ok = e.Settlement != nil
	case KindMilestoneProvisioned:
		ok = e.Provision != nil
	case KindFundingClosed:
		ok = e.Closure != nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, e.Kind)
	}
	if !ok {
		return fmt.Errorf("%w: %s payload does not match kind %q", ErrMalformedEvent, e.Key, e.Kind)
	}
	return nil
}

// Source returns the project contract the event was emitted by.
func (e LedgerEvent) Source() Address {
	switch {
	case e.Donation != nil:
		return e.Donation.Source
	case e.Settlement != nil:
		return e.Settlement.Source
	case e.Provision != nil:
		return e.Provision.Source
	case e.Closure != nil:
		return e.Closure.Source
	}
	return ""
}
