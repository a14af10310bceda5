package aggregate

import (
	"context"

	"github.com/roach88/tally/internal/ir"
)

// State is the key-value view of derived entities the aggregator reads and
// writes. Getters return copies; mutations are only visible after the
// corresponding Put.
//
// Implemented by MemState (replay, tests) and store.Tx (SQLite).
type State interface {
	Project(ctx context.Context, address ir.Address) (ir.Project, bool, error)
	PutProject(ctx context.Context, p ir.Project) error

	Donor(ctx context.Context, address ir.Address) (ir.Donor, bool, error)
	PutDonor(ctx context.Context, d ir.Donor) error

	Contribution(ctx context.Context, eventKey string) (ir.Contribution, bool, error)
	PutContribution(ctx context.Context, c ir.Contribution) error

	Milestone(ctx context.Context, key ir.MilestoneKey) (ir.Milestone, bool, error)
	PutMilestone(ctx context.Context, m ir.Milestone) error
	// Milestones returns a project's milestones ordered by index.
	Milestones(ctx context.Context, project ir.Address) ([]ir.Milestone, error)
}
