package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/tally/internal/ir"
)

// DuplicatePolicy selects how ApplyDonation treats an event key it has
// already applied.
type DuplicatePolicy int

const (
	// PolicyRejectDuplicates returns DUPLICATE_EVENT before any write.
	PolicyRejectDuplicates DuplicatePolicy = iota

	// PolicyApplyDuplicates re-applies the donation: totals are incremented
	// again and the contribution record is replaced. Not replay-safe.
	PolicyApplyDuplicates
)

// String returns the policy's configuration name.
func (p DuplicatePolicy) String() string {
	switch p {
	case PolicyRejectDuplicates:
		return "reject"
	case PolicyApplyDuplicates:
		return "apply"
	}
	return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
}

// ParseDuplicatePolicy parses "reject" or "apply". Empty means reject.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "reject":
		return PolicyRejectDuplicates, nil
	case "apply":
		return PolicyApplyDuplicates, nil
	}
	return 0, fmt.Errorf("unknown duplicate policy %q (want reject or apply)", s)
}

// Aggregator applies ledger events to a State.
//
// An Aggregator holds no entity state of its own; the same instance can fold
// events into any number of independent State values.
type Aggregator struct {
	contracts ContractReader
	policy    DuplicatePolicy
	logger    *slog.Logger
	metrics   *aggregateMetrics
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithDuplicatePolicy sets the duplicate-delivery policy.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(a *Aggregator) {
		a.policy = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithPromRegistry registers aggregator metrics with reg.
func WithPromRegistry(reg prometheus.Registerer) Option {
	return func(a *Aggregator) {
		if reg == nil {
			return
		}
		a.metrics = &aggregateMetrics{}
		a.metrics.init(reg)
	}
}

// New creates an Aggregator reading project terms from contracts.
func New(contracts ContractReader, opts ...Option) *Aggregator {
	a := &Aggregator{
		contracts: contracts,
		policy:    PolicyRejectDuplicates,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the configured duplicate policy.
func (a *Aggregator) Policy() DuplicatePolicy {
	return a.policy
}

// EnsureProject returns the stored project at address, or a fresh one built
// from the contract's terms with nothing raised. It does not store the
// project; the caller does once it has been updated.
func (a *Aggregator) EnsureProject(ctx context.Context, st State, address ir.Address) (ir.Project, error) {
	p, found, err := st.Project(ctx, address)
	if err != nil {
		return ir.Project{}, fmt.Errorf("load project %s: %w", address, err)
	}
	if found {
		return p, nil
	}

	terms, err := a.contracts.ProjectTerms(ctx, address)
	if err != nil {
		return ir.Project{}, fmt.Errorf("read terms of %s: %w", address, err)
	}
	return ir.Project{
		Address:      address,
		Beneficiary:  terms.Beneficiary,
		GoalAmount:   terms.GoalAmount,
		Deadline:     ir.NormalizeTime(terms.Deadline),
		RaisedAmount: ir.NewAmount(0),
		State:        ir.ProjectFundraising,
	}, nil
}

// EnsureDonor returns the stored donor at address, or a zeroed one.
// Like EnsureProject it does not store.
func (a *Aggregator) EnsureDonor(ctx context.Context, st State, address ir.Address) (ir.Donor, error) {
	d, found, err := st.Donor(ctx, address)
	if err != nil {
		return ir.Donor{}, fmt.Errorf("load donor %s: %w", address, err)
	}
	if found {
		return d, nil
	}
	return ir.Donor{
		Address:      address,
		TotalDonated: ir.NewAmount(0),
	}, nil
}

// ApplyDonation folds a donation into the project, donor, and contribution
// records.
//
// With PolicyRejectDuplicates an already-applied event key returns a
// DUPLICATE_EVENT error and leaves state untouched.
func (a *Aggregator) ApplyDonation(ctx context.Context, st State, d ir.Donation) error {
	d, err := normalizeDonation(d)
	if err != nil {
		return err
	}

	_, seen, err := st.Contribution(ctx, d.EventKey)
	if err != nil {
		return fmt.Errorf("load contribution %s: %w", d.EventKey, err)
	}
	if seen {
		if a.policy == PolicyRejectDuplicates {
			a.metrics.duplicate()
			a.logger.Warn("duplicate donation rejected",
				"event_key", d.EventKey,
				"project", d.Source,
				"donor", d.Donor)
			return NewDuplicateEventError(d.EventKey)
		}
		a.logger.Warn("duplicate donation re-applied",
			"event_key", d.EventKey,
			"policy", a.policy.String())
	}

	project, err := a.EnsureProject(ctx, st, d.Source)
	if err != nil {
		return err
	}
	donor, err := a.EnsureDonor(ctx, st, d.Donor)
	if err != nil {
		return err
	}

	project.RaisedAmount = project.RaisedAmount.Add(d.Amount)
	if err := st.PutProject(ctx, project); err != nil {
		return fmt.Errorf("store project %s: %w", project.Address, err)
	}

	donor.TotalDonated = donor.TotalDonated.Add(d.Amount)
	donor.ContributionsCount++
	donor.AddProject(d.Source)
	if err := st.PutDonor(ctx, donor); err != nil {
		return fmt.Errorf("store donor %s: %w", donor.Address, err)
	}

	c := ir.Contribution{
		EventKey:  d.EventKey,
		Project:   d.Source,
		Donor:     d.Donor,
		Amount:    d.Amount,
		Timestamp: ir.NormalizeTime(d.Timestamp),
	}
	if err := st.PutContribution(ctx, c); err != nil {
		return fmt.Errorf("store contribution %s: %w", c.EventKey, err)
	}

	a.metrics.applied(ir.KindDonation)
	a.logger.Debug("donation applied",
		"event_key", d.EventKey,
		"project", d.Source,
		"donor", d.Donor,
		"amount", d.Amount.String(),
		"raised", project.RaisedAmount.String())
	return nil
}

// normalizeDonation validates d and lower-cases its addresses.
func normalizeDonation(d ir.Donation) (ir.Donation, error) {
	if d.EventKey == "" {
		return d, invalidEvent("", "donation has no event key")
	}
	source, err := ir.ParseAddress(string(d.Source))
	if err != nil {
		return d, invalidEvent(d.EventKey, "source: %v", err)
	}
	donor, err := ir.ParseAddress(string(d.Donor))
	if err != nil {
		return d, invalidEvent(d.EventKey, "donor: %v", err)
	}
	if d.Amount.Sign() <= 0 {
		return d, invalidEvent(d.EventKey, "donation amount must be positive, got %s", d.Amount.String())
	}
	d.Source = source
	d.Donor = donor
	return d, nil
}

// ApplyMilestoneSettlement marks milestone index of project as paid.
//
// A milestone that was never provisioned is a silent no-op: the return value
// is false and the error is nil. Settling an already-paid milestone returns
// true without writing.
//
// When the settlement leaves every provisioned milestone of a fundraising
// project paid, the project becomes Settled.
func (a *Aggregator) ApplyMilestoneSettlement(ctx context.Context, st State, project ir.Address, index uint32) (bool, error) {
	project, err := ir.ParseAddress(string(project))
	if err != nil {
		return false, invalidEvent("", "settlement project: %v", err)
	}
	key := ir.MilestoneKey{Project: project, Index: index}
	m, found, err := st.Milestone(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load milestone %s: %w", key, err)
	}
	if !found {
		a.metrics.settlementNoop()
		a.logger.Debug("settlement for unknown milestone ignored", "milestone", key.String())
		return false, nil
	}

	if !m.IsPaid {
		m.IsPaid = true
		if err := st.PutMilestone(ctx, m); err != nil {
			return false, fmt.Errorf("store milestone %s: %w", key, err)
		}
		if err := a.settleIfComplete(ctx, st, project); err != nil {
			return false, err
		}
	}

	a.metrics.applied(ir.KindMilestoneSettled)
	a.logger.Debug("milestone settled", "milestone", key.String())
	return true, nil
}

func (a *Aggregator) settleIfComplete(ctx context.Context, st State, address ir.Address) error {
	p, found, err := st.Project(ctx, address)
	if err != nil {
		return fmt.Errorf("load project %s: %w", address, err)
	}
	if !found || p.State != ir.ProjectFundraising {
		return nil
	}

	milestones, err := st.Milestones(ctx, address)
	if err != nil {
		return fmt.Errorf("list milestones of %s: %w", address, err)
	}
	if len(milestones) == 0 {
		return nil
	}
	for _, m := range milestones {
		if !m.IsPaid {
			return nil
		}
	}

	p.State = ir.ProjectSettled
	if err := st.PutProject(ctx, p); err != nil {
		return fmt.Errorf("store project %s: %w", address, err)
	}
	a.logger.Info("project settled", "project", address, "milestones", len(milestones))
	return nil
}

// ProvisionMilestone creates milestone m, or updates the description and
// amount of an existing one. IsPaid is never reset.
func (a *Aggregator) ProvisionMilestone(ctx context.Context, st State, m ir.Milestone) error {
	project, err := ir.ParseAddress(string(m.Project))
	if err != nil {
		return invalidEvent("", "milestone project: %v", err)
	}
	m.Project = project

	existing, found, err := st.Milestone(ctx, m.Key())
	if err != nil {
		return fmt.Errorf("load milestone %s: %w", m.Key(), err)
	}
	m.IsPaid = found && existing.IsPaid
	if err := st.PutMilestone(ctx, m); err != nil {
		return fmt.Errorf("store milestone %s: %w", m.Key(), err)
	}

	a.metrics.applied(ir.KindMilestoneProvisioned)
	a.logger.Debug("milestone provisioned",
		"milestone", m.Key().String(),
		"amount", m.Amount.String(),
		"existing", found)
	return nil
}

// CloseFunding ends the funding window of project at time at. A fundraising
// project whose deadline has passed without reaching its goal becomes
// Expired; any other project is unchanged. Unknown projects are a no-op.
//
// Returns the project's state after the closure.
func (a *Aggregator) CloseFunding(ctx context.Context, st State, project ir.Address, at time.Time) (ir.ProjectState, error) {
	project, err := ir.ParseAddress(string(project))
	if err != nil {
		return "", invalidEvent("", "closure project: %v", err)
	}
	p, found, err := st.Project(ctx, project)
	if err != nil {
		return "", fmt.Errorf("load project %s: %w", project, err)
	}
	if !found {
		a.logger.Debug("funding closure for unknown project ignored", "project", project)
		return "", nil
	}

	at = ir.NormalizeTime(at)
	if p.State == ir.ProjectFundraising &&
		!at.Before(p.Deadline) &&
		p.RaisedAmount.Cmp(p.GoalAmount) < 0 {
		p.State = ir.ProjectExpired
		if err := st.PutProject(ctx, p); err != nil {
			return "", fmt.Errorf("store project %s: %w", project, err)
		}
		a.logger.Info("project expired",
			"project", project,
			"raised", p.RaisedAmount.String(),
			"goal", p.GoalAmount.String())
	}

	a.metrics.applied(ir.KindFundingClosed)
	return p.State, nil
}

// Apply dispatches a ledger event to the matching operation.
func (a *Aggregator) Apply(ctx context.Context, st State, ev ir.LedgerEvent) error {
	if err := ev.Validate(); err != nil {
		return &Error{
			Code:     ErrCodeInvalidEvent,
			Message:  "malformed envelope",
			EventKey: ev.Key,
			Err:      err,
		}
	}

	switch ev.Kind {
	case ir.KindDonation:
		d := *ev.Donation
		if d.EventKey == "" {
			d.EventKey = ev.Key
		}
		return a.ApplyDonation(ctx, st, d)

	case ir.KindMilestoneSettled:
		_, err := a.ApplyMilestoneSettlement(ctx, st, ev.Settlement.Source, ev.Settlement.Index)
		return err

	case ir.KindMilestoneProvisioned:
		p := ev.Provision
		return a.ProvisionMilestone(ctx, st, ir.Milestone{
			Project:     p.Source,
			Index:       p.Index,
			Description: p.Description,
			Amount:      p.Amount,
		})

	case ir.KindFundingClosed:
		_, err := a.CloseFunding(ctx, st, ev.Closure.Source, ev.Closure.At)
		return err
	}
	// Unreachable after Validate.
	return invalidEvent(ev.Key, "unknown kind %q", ev.Kind)
}
