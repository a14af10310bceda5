package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/ir"
)

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Project returns the project at address, or an aggregate NOT_FOUND error.
func (s *Store) Project(ctx context.Context, address ir.Address) (ir.Project, error) {
	p, found, err := getProject(ctx, s.db, address)
	if err != nil {
		return ir.Project{}, err
	}
	if !found {
		return ir.Project{}, aggregate.NewNotFoundError("project", address)
	}
	return p, nil
}

// Donor returns the donor at address, or an aggregate NOT_FOUND error.
func (s *Store) Donor(ctx context.Context, address ir.Address) (ir.Donor, error) {
	d, found, err := getDonor(ctx, s.db, address)
	if err != nil {
		return ir.Donor{}, err
	}
	if !found {
		return ir.Donor{}, aggregate.NewNotFoundError("donor", address)
	}
	return d, nil
}

// Contribution returns the contribution with eventKey, or an aggregate
// NOT_FOUND error.
func (s *Store) Contribution(ctx context.Context, eventKey string) (ir.Contribution, error) {
	c, found, err := getContribution(ctx, s.db, eventKey)
	if err != nil {
		return ir.Contribution{}, err
	}
	if !found {
		return ir.Contribution{}, aggregate.NewContributionNotFoundError(eventKey)
	}
	return c, nil
}

// ProjectContributions returns a project's contributions ordered by
// timestamp, then event key.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ProjectContributions(ctx context.Context, project ir.Address) ([]ir.Contribution, error) {
	return queryContributions(ctx, s.db, `
		SELECT event_key, project, donor, amount, timestamp
		FROM contributions
		WHERE project = ?
		ORDER BY timestamp ASC, event_key COLLATE BINARY ASC
	`, project)
}

// DonorContributions returns a donor's contributions ordered by timestamp,
// then event key.
func (s *Store) DonorContributions(ctx context.Context, donor ir.Address) ([]ir.Contribution, error) {
	return queryContributions(ctx, s.db, `
		SELECT event_key, project, donor, amount, timestamp
		FROM contributions
		WHERE donor = ?
		ORDER BY timestamp ASC, event_key COLLATE BINARY ASC
	`, donor)
}

// ProjectDonors returns every donor that contributed to project, ordered by
// address.
func (s *Store) ProjectDonors(ctx context.Context, project ir.Address) ([]ir.Donor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT donor FROM donor_projects
		WHERE project = ?
		ORDER BY donor COLLATE BINARY ASC
	`, project)
	if err != nil {
		return nil, fmt.Errorf("query project donors: %w", err)
	}
	var addresses []ir.Address
	for rows.Next() {
		var a ir.Address
		if err := rows.Scan(&a); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan project donor: %w", err)
		}
		addresses = append(addresses, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate project donors: %w", err)
	}
	// Release the single connection before the per-donor lookups.
	rows.Close()

	donors := make([]ir.Donor, 0, len(addresses))
	for _, a := range addresses {
		d, found, err := getDonor(ctx, s.db, a)
		if err != nil {
			return nil, err
		}
		if found {
			donors = append(donors, d)
		}
	}
	return donors, nil
}

// Milestones returns a project's milestones ordered by index.
func (s *Store) Milestones(ctx context.Context, project ir.Address) ([]ir.Milestone, error) {
	return listMilestones(ctx, s.db, project)
}

func getProject(ctx context.Context, q querier, address ir.Address) (ir.Project, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT address, beneficiary, goal_amount, deadline, raised_amount, state
		FROM projects
		WHERE address = ?
	`, address)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Project{}, false, nil
	}
	if err != nil {
		return ir.Project{}, false, fmt.Errorf("read project %s: %w", address, err)
	}
	return p, true, nil
}

func scanProject(sc scanner) (ir.Project, error) {
	var p ir.Project
	var deadline int64
	var state string
	if err := sc.Scan(&p.Address, &p.Beneficiary, &p.GoalAmount, &deadline, &p.RaisedAmount, &state); err != nil {
		return ir.Project{}, err
	}
	p.Deadline = fromUnix(deadline)
	ps, err := ir.ParseProjectState(state)
	if err != nil {
		return ir.Project{}, err
	}
	p.State = ps
	return p, nil
}

func getDonor(ctx context.Context, q querier, address ir.Address) (ir.Donor, bool, error) {
	var d ir.Donor
	var count int64
	err := q.QueryRowContext(ctx, `
		SELECT address, total_donated, contributions_count
		FROM donors
		WHERE address = ?
	`, address).Scan(&d.Address, &d.TotalDonated, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Donor{}, false, nil
	}
	if err != nil {
		return ir.Donor{}, false, fmt.Errorf("read donor %s: %w", address, err)
	}
	d.ContributionsCount = uint64(count)

	projects, err := donorProjects(ctx, q, address)
	if err != nil {
		return ir.Donor{}, false, err
	}
	d.Projects = projects
	return d, true, nil
}

func donorProjects(ctx context.Context, q querier, donor ir.Address) ([]ir.Address, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT project FROM donor_projects
		WHERE donor = ?
		ORDER BY project COLLATE BINARY ASC
	`, donor)
	if err != nil {
		return nil, fmt.Errorf("query donor projects: %w", err)
	}
	defer rows.Close()

	projects := []ir.Address{}
	for rows.Next() {
		var p ir.Address
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan donor project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donor projects: %w", err)
	}
	return projects, nil
}

func getContribution(ctx context.Context, q querier, eventKey string) (ir.Contribution, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT event_key, project, donor, amount, timestamp
		FROM contributions
		WHERE event_key = ?
	`, eventKey)
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Contribution{}, false, nil
	}
	if err != nil {
		return ir.Contribution{}, false, fmt.Errorf("read contribution %s: %w", eventKey, err)
	}
	return c, true, nil
}

func scanContribution(sc scanner) (ir.Contribution, error) {
	var c ir.Contribution
	var ts int64
	if err := sc.Scan(&c.EventKey, &c.Project, &c.Donor, &c.Amount, &ts); err != nil {
		return ir.Contribution{}, err
	}
	c.Timestamp = fromUnix(ts)
	return c, nil
}

func queryContributions(ctx context.Context, q querier, query string, args ...any) ([]ir.Contribution, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contributions: %w", err)
	}
	defer rows.Close()

	contributions := []ir.Contribution{}
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}
	return contributions, nil
}

func getMilestone(ctx context.Context, q querier, key ir.MilestoneKey) (ir.Milestone, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT project, idx, description, amount, is_paid
		FROM milestones
		WHERE project = ? AND idx = ?
	`, key.Project, int64(key.Index))
	m, err := scanMilestone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Milestone{}, false, nil
	}
	if err != nil {
		return ir.Milestone{}, false, fmt.Errorf("read milestone %s: %w", key, err)
	}
	return m, true, nil
}

func scanMilestone(sc scanner) (ir.Milestone, error) {
	var m ir.Milestone
	var idx int64
	if err := sc.Scan(&m.Project, &idx, &m.Description, &m.Amount, &m.IsPaid); err != nil {
		return ir.Milestone{}, err
	}
	m.Index = uint32(idx)
	return m, nil
}

func listMilestones(ctx context.Context, q querier, project ir.Address) ([]ir.Milestone, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT project, idx, description, amount, is_paid
		FROM milestones
		WHERE project = ?
		ORDER BY idx ASC
	`, project)
	if err != nil {
		return nil, fmt.Errorf("query milestones: %w", err)
	}
	defer rows.Close()

	milestones := []ir.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milestones: %w", err)
	}
	return milestones, nil
}
