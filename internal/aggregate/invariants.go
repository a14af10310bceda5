package aggregate

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/tally/internal/ir"
)

// CheckInvariants verifies that the derived totals in s agree with its
// contributions:
//
//	Project.RaisedAmount       = sum of the project's contribution amounts
//	Donor.TotalDonated         = sum of the donor's contribution amounts
//	Donor.ContributionsCount   = number of the donor's contributions
//	Donor.Projects             = distinct projects among the donor's contributions
//
// Every contribution must also reference a stored project and donor.
// All violations are reported, joined with errors.Join.
func CheckInvariants(s ir.Snapshot) error {
	type donorTally struct {
		total    ir.Amount
		count    uint64
		projects []ir.Address
	}
	raised := make(map[ir.Address]ir.Amount)
	donors := make(map[ir.Address]*donorTally)
	projectSet := make(map[ir.Address]bool, len(s.Projects))
	for _, p := range s.Projects {
		projectSet[p.Address] = true
	}
	donorSet := make(map[ir.Address]bool, len(s.Donors))
	for _, d := range s.Donors {
		donorSet[d.Address] = true
	}

	var errs []error
	violation := func(address ir.Address, format string, args ...any) {
		errs = append(errs, &Error{
			Code:    ErrCodeInvariant,
			Message: fmt.Sprintf(format, args...),
			Address: address,
		})
	}

	for _, c := range s.Contributions {
		if c.Amount.Sign() <= 0 {
			violation(c.Project, "contribution %s has non-positive amount %s", c.EventKey, c.Amount.String())
		}
		if !projectSet[c.Project] {
			violation(c.Project, "contribution %s references unknown project", c.EventKey)
		}
		if !donorSet[c.Donor] {
			violation(c.Donor, "contribution %s references unknown donor", c.EventKey)
		}
		raised[c.Project] = raised[c.Project].Add(c.Amount)

		t, ok := donors[c.Donor]
		if !ok {
			t = &donorTally{}
			donors[c.Donor] = t
		}
		t.total = t.total.Add(c.Amount)
		t.count++
		if i, found := slices.BinarySearch(t.projects, c.Project); !found {
			t.projects = slices.Insert(t.projects, i, c.Project)
		}
	}

	for _, p := range s.Projects {
		if want := raised[p.Address]; !p.RaisedAmount.Equal(want) {
			violation(p.Address, "raised_amount %s != sum of contributions %s", p.RaisedAmount.String(), want.String())
		}
	}
	for _, d := range s.Donors {
		t := donors[d.Address]
		if t == nil {
			t = &donorTally{}
		}
		if !d.TotalDonated.Equal(t.total) {
			violation(d.Address, "total_donated %s != sum of contributions %s", d.TotalDonated.String(), t.total.String())
		}
		if d.ContributionsCount != t.count {
			violation(d.Address, "contributions_count %d != %d contributions", d.ContributionsCount, t.count)
		}
		if !slices.Equal(d.Projects, t.projects) {
			violation(d.Address, "projects %v != contributed projects %v", d.Projects, t.projects)
		}
	}

	return errors.Join(errs...)
}

// CheckTransition verifies that after is a valid successor of before:
// nothing is deleted, totals never decrease, contributions never change,
// and paid milestones stay paid.
func CheckTransition(before, after ir.Snapshot) error {
	var errs []error
	violation := func(address ir.Address, format string, args ...any) {
		errs = append(errs, &Error{
			Code:    ErrCodeInvariant,
			Message: fmt.Sprintf(format, args...),
			Address: address,
		})
	}

	projects := make(map[ir.Address]ir.Project, len(after.Projects))
	for _, p := range after.Projects {
		projects[p.Address] = p
	}
	for _, old := range before.Projects {
		p, ok := projects[old.Address]
		switch {
		case !ok:
			violation(old.Address, "project removed")
		case p.RaisedAmount.Cmp(old.RaisedAmount) < 0:
			violation(old.Address, "raised_amount decreased from %s to %s", old.RaisedAmount.String(), p.RaisedAmount.String())
		}
	}

	donors := make(map[ir.Address]ir.Donor, len(after.Donors))
	for _, d := range after.Donors {
		donors[d.Address] = d
	}
	for _, old := range before.Donors {
		d, ok := donors[old.Address]
		switch {
		case !ok:
			violation(old.Address, "donor removed")
		case d.TotalDonated.Cmp(old.TotalDonated) < 0:
			violation(old.Address, "total_donated decreased from %s to %s", old.TotalDonated.String(), d.TotalDonated.String())
		case d.ContributionsCount < old.ContributionsCount:
			violation(old.Address, "contributions_count decreased from %d to %d", old.ContributionsCount, d.ContributionsCount)
		}
	}

	contributions := make(map[string]ir.Contribution, len(after.Contributions))
	for _, c := range after.Contributions {
		contributions[c.EventKey] = c
	}
	for _, old := range before.Contributions {
		c, ok := contributions[old.EventKey]
		switch {
		case !ok:
			violation(old.Project, "contribution %s removed", old.EventKey)
		case c.Project != old.Project || c.Donor != old.Donor || !c.Amount.Equal(old.Amount) || !c.Timestamp.Equal(old.Timestamp):
			violation(old.Project, "contribution %s changed", old.EventKey)
		}
	}

	milestones := make(map[ir.MilestoneKey]ir.Milestone, len(after.Milestones))
	for _, m := range after.Milestones {
		milestones[m.Key()] = m
	}
	for _, old := range before.Milestones {
		m, ok := milestones[old.Key()]
		switch {
		case !ok:
			violation(old.Project, "milestone %d removed", old.Index)
		case old.IsPaid && !m.IsPaid:
			violation(old.Project, "milestone %d went from paid to unpaid", old.Index)
		}
	}

	return errors.Join(errs...)
}
