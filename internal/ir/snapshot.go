package ir

import (
	"cmp"
	"slices"
)

// Snapshot is the complete derived state at a point in the event log.
// Used for replay verification, invariant checks and golden comparison.
type Snapshot struct {
	Projects      []Project      `json:"projects"`
	Donors        []Donor        `json:"donors"`
	Contributions []Contribution `json:"contributions"`
	Milestones    []Milestone    `json:"milestones"`
}

// Sort orders every collection by identity so that two snapshots of the same
// state compare equal regardless of how they were read.
func (s *Snapshot) Sort() {
	slices.SortFunc(s.Projects, func(a, b Project) int { return cmp.Compare(a.Address, b.Address) })
	slices.SortFunc(s.Donors, func(a, b Donor) int { return cmp.Compare(a.Address, b.Address) })
	slices.SortFunc(s.Contributions, func(a, b Contribution) int { return cmp.Compare(a.EventKey, b.EventKey) })
	slices.SortFunc(s.Milestones, func(a, b Milestone) int {
		if c := cmp.Compare(a.Project, b.Project); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
}

// CanonicalMap converts the snapshot into plain values accepted by MarshalCanonical.
func (s Snapshot) CanonicalMap() map[string]any {
	projects := make([]any, len(s.Projects))
	for i, p := range s.Projects {
		projects[i] = map[string]any{
			"address":       string(p.Address),
			"beneficiary":   string(p.Beneficiary),
			"goal_amount":   p.GoalAmount.String(),
			"deadline":      p.Deadline.Unix(),
			"raised_amount": p.RaisedAmount.String(),
			"state":         string(p.State),
		}
	}
	donors := make([]any, len(s.Donors))
	for i, d := range s.Donors {
		refs := make([]any, len(d.Projects))
		for j, p := range d.Projects {
			refs[j] = string(p)
		}
		donors[i] = map[string]any{
			"address":             string(d.Address),
			"total_donated":       d.TotalDonated.String(),
			"contributions_count": int64(d.ContributionsCount),
			"projects":            refs,
		}
	}
	contributions := make([]any, len(s.Contributions))
	for i, c := range s.Contributions {
		contributions[i] = map[string]any{
			"event_key": c.EventKey,
			"project":   string(c.Project),
			"donor":     string(c.Donor),
			"amount":    c.Amount.String(),
			"timestamp": c.Timestamp.Unix(),
		}
	}
	milestones := make([]any, len(s.Milestones))
	for i, m := range s.Milestones {
		milestones[i] = map[string]any{
			"project":     string(m.Project),
			"index":       int64(m.Index),
			"description": m.Description,
			"amount":      m.Amount.String(),
			"is_paid":     m.IsPaid,
		}
	}
	return map[string]any{
		"projects":      projects,
		"donors":        donors,
		"contributions": contributions,
		"milestones":    milestones,
	}
}

// CanonicalJSON returns the RFC 8785 encoding of the sorted snapshot.
func (s Snapshot) CanonicalJSON() ([]byte, error) {
	s.Projects = slices.Clone(s.Projects)
	s.Donors = slices.Clone(s.Donors)
	s.Contributions = slices.Clone(s.Contributions)
	s.Milestones = slices.Clone(s.Milestones)
	s.Sort()
	return MarshalCanonical(s.CanonicalMap())
}
