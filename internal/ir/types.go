package ir

import (
	"fmt"
	"slices"
	"time"
)

// ProjectState is the lifecycle state of a fundraising project.
type ProjectState string

const (
	// ProjectFundraising accepts donations. Every project starts here.
	ProjectFundraising ProjectState = "fundraising"
	// ProjectSettled has had every provisioned milestone paid out.
	ProjectSettled ProjectState = "settled"
	// ProjectExpired closed its funding window below the goal.
	ProjectExpired ProjectState = "expired"
)

// ParseProjectState parses a lifecycle state name.
func ParseProjectState(s string) (ProjectState, error) {
	switch ProjectState(s) {
	case ProjectFundraising, ProjectSettled, ProjectExpired:
		return ProjectState(s), nil
	}
	return "", fmt.Errorf("unknown project state %q", s)
}

// Project is the derived state of a fundraising contract.
type Project struct {
	Address      Address      `json:"address"`
	Beneficiary  Address      `json:"beneficiary"`
	GoalAmount   Amount       `json:"goal_amount"`
	Deadline     time.Time    `json:"deadline"`
	RaisedAmount Amount       `json:"raised_amount"`
	State        ProjectState `json:"state"`
}

// ProjectTerms are the immutable parameters a project contract was deployed
// with, as reported by the contract-state reader.
type ProjectTerms struct {
	Beneficiary Address   `json:"beneficiary"`
	GoalAmount  Amount    `json:"goal_amount"`
	Deadline    time.Time `json:"deadline"`
}

// Donor is the derived state of a donating account.
type Donor struct {
	Address            Address   `json:"address"`
	TotalDonated       Amount    `json:"total_donated"`
	ContributionsCount uint64    `json:"contributions_count"`
	Projects           []Address `json:"projects"` // sorted, no duplicates
}

// HasProject reports whether the donor has contributed to project.
func (d Donor) HasProject(project Address) bool {
	_, found := slices.BinarySearch(d.Projects, project)
	return found
}

// AddProject inserts project into the donor's project set.
// Returns false if it was already present.
func (d *Donor) AddProject(project Address) bool {
	i, found := slices.BinarySearch(d.Projects, project)
	if found {
		return false
	}
	d.Projects = slices.Insert(d.Projects, i, project)
	return true
}

// Contribution records a single donation. Write-once.
type Contribution struct {
	EventKey  string    `json:"event_key"`
	Project   Address   `json:"project"`
	Donor     Address   `json:"donor"`
	Amount    Amount    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Milestone is a payout checkpoint of a project.
// IsPaid only ever transitions from false to true.
type Milestone struct {
	Project     Address `json:"project"`
	Index       uint32  `json:"index"`
	Description string  `json:"description,omitempty"`
	Amount      Amount  `json:"amount"`
	IsPaid      bool    `json:"is_paid"`
}

// Key returns the milestone's composite identity.
func (m Milestone) Key() MilestoneKey {
	return MilestoneKey{Project: m.Project, Index: m.Index}
}

// NormalizeTime truncates to whole seconds in UTC, the resolution ledgers report.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Second)
}
