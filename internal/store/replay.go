package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tally/internal/ir"
)

// ReadEvents returns the full event log ordered by seq.
// Used by replay verification.
func (s *Store) ReadEvents(ctx context.Context) ([]ir.LedgerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, event_key, kind, payload, batch
		FROM events
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.LedgerEvent{}
	for rows.Next() {
		var ev ir.LedgerEvent
		var kind, payload string
		if err := rows.Scan(&ev.Seq, &ev.Key, &kind, &payload, &ev.Batch); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = ir.EventKind(kind)
		if err := unmarshalPayload(&ev, payload); err != nil {
			return nil, fmt.Errorf("event seq=%d: %w", ev.Seq, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest logged seq, or 0 for an empty log.
// The engine seeds its clock from this on startup.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// EventCount returns the number of logged events.
func (s *Store) EventCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Snapshot reads the complete derived state, sorted.
func (s *Store) Snapshot(ctx context.Context) (ir.Snapshot, error) {
	var snap ir.Snapshot

	rows, err := s.db.QueryContext(ctx, `
		SELECT address, beneficiary, goal_amount, deadline, raised_amount, state
		FROM projects
		ORDER BY address COLLATE BINARY ASC
	`)
	if err != nil {
		return snap, fmt.Errorf("query projects: %w", err)
	}
	snap.Projects = []ir.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan project: %w", err)
		}
		snap.Projects = append(snap.Projects, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return snap, fmt.Errorf("iterate projects: %w", err)
	}
	rows.Close()

	snap.Donors, err = s.allDonors(ctx)
	if err != nil {
		return snap, err
	}

	snap.Contributions, err = queryContributions(ctx, s.db, `
		SELECT event_key, project, donor, amount, timestamp
		FROM contributions
		ORDER BY event_key COLLATE BINARY ASC
	`)
	if err != nil {
		return snap, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT project, idx, description, amount, is_paid
		FROM milestones
		ORDER BY project COLLATE BINARY ASC, idx ASC
	`)
	if err != nil {
		return snap, fmt.Errorf("query milestones: %w", err)
	}
	snap.Milestones = []ir.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan milestone: %w", err)
		}
		snap.Milestones = append(snap.Milestones, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return snap, fmt.Errorf("iterate milestones: %w", err)
	}
	rows.Close()

	snap.Sort()
	return snap, nil
}

// allDonors reads donors and their project sets with two scans rather than
// one query per donor.
func (s *Store) allDonors(ctx context.Context) ([]ir.Donor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, total_donated, contributions_count
		FROM donors
		ORDER BY address COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query donors: %w", err)
	}
	donors := []ir.Donor{}
	index := make(map[ir.Address]int)
	for rows.Next() {
		var d ir.Donor
		var count int64
		if err := rows.Scan(&d.Address, &d.TotalDonated, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		d.ContributionsCount = uint64(count)
		d.Projects = []ir.Address{}
		index[d.Address] = len(donors)
		donors = append(donors, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate donors: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT donor, project FROM donor_projects
		ORDER BY donor COLLATE BINARY ASC, project COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query donor projects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var donor, project ir.Address
		if err := rows.Scan(&donor, &project); err != nil {
			return nil, fmt.Errorf("scan donor project: %w", err)
		}
		if i, ok := index[donor]; ok {
			donors[i].Projects = append(donors[i].Projects, project)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donor projects: %w", err)
	}
	return donors, nil
}
