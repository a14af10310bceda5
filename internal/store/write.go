package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/ir"
)

// Tx is a write transaction opened by Store.Update.
// It implements aggregate.State, so the aggregator writes derived state
// through it, and appends the event that caused those writes.
type Tx struct {
	tx *sql.Tx
}

var _ aggregate.State = (*Tx)(nil)

// AppendEvent appends ev to the event log. The event's Seq must be set and
// strictly greater than every seq already logged; the primary key rejects
// reuse.
func (t *Tx) AppendEvent(ctx context.Context, ev ir.LedgerEvent) error {
	if ev.Seq <= 0 {
		return fmt.Errorf("append event %s: seq must be positive, got %d", ev.Key, ev.Seq)
	}
	payload, err := marshalPayload(ev)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.Key, err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO events (seq, event_key, kind, source, payload, batch)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		ev.Seq,
		ev.Key,
		string(ev.Kind),
		ev.Source(),
		payload,
		ev.Batch,
	)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.Key, err)
	}
	return nil
}

func (t *Tx) Project(ctx context.Context, address ir.Address) (ir.Project, bool, error) {
	return getProject(ctx, t.tx, address)
}

// PutProject upserts p.
func (t *Tx) PutProject(ctx context.Context, p ir.Project) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO projects (address, beneficiary, goal_amount, deadline, raised_amount, state)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			beneficiary = excluded.beneficiary,
			goal_amount = excluded.goal_amount,
			deadline = excluded.deadline,
			raised_amount = excluded.raised_amount,
			state = excluded.state
	`,
		p.Address,
		p.Beneficiary,
		p.GoalAmount,
		p.Deadline.Unix(),
		p.RaisedAmount,
		string(p.State),
	)
	if err != nil {
		return fmt.Errorf("put project %s: %w", p.Address, err)
	}
	return nil
}

func (t *Tx) Donor(ctx context.Context, address ir.Address) (ir.Donor, bool, error) {
	return getDonor(ctx, t.tx, address)
}

// PutDonor upserts d and adds its project references. Project references
// are never removed.
func (t *Tx) PutDonor(ctx context.Context, d ir.Donor) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO donors (address, total_donated, contributions_count)
		VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			total_donated = excluded.total_donated,
			contributions_count = excluded.contributions_count
	`,
		d.Address,
		d.TotalDonated,
		int64(d.ContributionsCount),
	)
	if err != nil {
		return fmt.Errorf("put donor %s: %w", d.Address, err)
	}

	for _, project := range d.Projects {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO donor_projects (donor, project)
			VALUES (?, ?)
			ON CONFLICT(donor, project) DO NOTHING
		`, d.Address, project)
		if err != nil {
			return fmt.Errorf("put donor %s project %s: %w", d.Address, project, err)
		}
	}
	return nil
}

func (t *Tx) Contribution(ctx context.Context, eventKey string) (ir.Contribution, bool, error) {
	return getContribution(ctx, t.tx, eventKey)
}

// PutContribution inserts c, replacing any contribution with the same key.
// The aggregator only replaces under the apply-duplicates policy.
func (t *Tx) PutContribution(ctx context.Context, c ir.Contribution) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO contributions (event_key, project, donor, amount, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_key) DO UPDATE SET
			project = excluded.project,
			donor = excluded.donor,
			amount = excluded.amount,
			timestamp = excluded.timestamp
	`,
		c.EventKey,
		c.Project,
		c.Donor,
		c.Amount,
		c.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("put contribution %s: %w", c.EventKey, err)
	}
	return nil
}

func (t *Tx) Milestone(ctx context.Context, key ir.MilestoneKey) (ir.Milestone, bool, error) {
	return getMilestone(ctx, t.tx, key)
}

// PutMilestone upserts m.
func (t *Tx) PutMilestone(ctx context.Context, m ir.Milestone) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO milestones (project, idx, description, amount, is_paid)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project, idx) DO UPDATE SET
			description = excluded.description,
			amount = excluded.amount,
			is_paid = excluded.is_paid
	`,
		m.Project,
		int64(m.Index),
		m.Description,
		m.Amount,
		m.IsPaid,
	)
	if err != nil {
		return fmt.Errorf("put milestone %s: %w", m.Key(), err)
	}
	return nil
}

func (t *Tx) Milestones(ctx context.Context, project ir.Address) ([]ir.Milestone, error) {
	return listMilestones(ctx, t.tx, project)
}
