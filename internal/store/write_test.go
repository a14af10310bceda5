package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/ir"
)

func testAggregator(opts ...aggregate.Option) *aggregate.Aggregator {
	return aggregate.New(aggregate.StaticContracts{
		testProject: {
			Beneficiary: testOwner,
			GoalAmount:  ir.MustAmount("1000000000000000000000"),
			Deadline:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}, opts...)
}

// applyEvent mirrors what the engine does per event: apply then append, in
// one transaction.
func applyEvent(ctx context.Context, s *Store, agg *aggregate.Aggregator, ev ir.LedgerEvent) error {
	return s.Update(ctx, func(tx *Tx) error {
		if err := agg.Apply(ctx, tx, ev); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, ev)
	})
}

func TestTx_DonationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	agg := testAggregator()

	require.NoError(t, applyEvent(ctx, s, agg, createTestDonationEvent(1, "k1", testDonor, 100)))
	require.NoError(t, applyEvent(ctx, s, agg, createTestDonationEvent(2, "k2", testDonor, 50)))

	p, err := s.Project(ctx, testProject)
	require.NoError(t, err)
	assert.Equal(t, "150", p.RaisedAmount.String())
	assert.Equal(t, "1000000000000000000000", p.GoalAmount.String())
	assert.Equal(t, ir.ProjectFundraising, p.State)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), p.Deadline)

	d, err := s.Donor(ctx, testDonor)
	require.NoError(t, err)
	assert.Equal(t, "150", d.TotalDonated.String())
	assert.Equal(t, uint64(2), d.ContributionsCount)
	assert.Equal(t, []ir.Address{testProject}, d.Projects)

	contributions, err := s.ProjectContributions(ctx, testProject)
	require.NoError(t, err)
	require.Len(t, contributions, 2)
	assert.Equal(t, "k1", contributions[0].EventKey)
	assert.Equal(t, "k2", contributions[1].EventKey)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.NoError(t, aggregate.CheckInvariants(snap))
}

func TestTx_DuplicateRollsBackWholeEvent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	agg := testAggregator()

	require.NoError(t, applyEvent(ctx, s, agg, createTestDonationEvent(1, "k1", testDonor, 100)))
	err := applyEvent(ctx, s, agg, createTestDonationEvent(2, "k1", testDonor, 100))
	require.Error(t, err)
	assert.True(t, aggregate.IsDuplicateEvent(err))

	n, err := s.EventCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "rejected event must not be logged")

	p, err := s.Project(ctx, testProject)
	require.NoError(t, err)
	assert.Equal(t, "100", p.RaisedAmount.String())
}

func TestTx_ApplyDuplicatesReplacesContribution(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	agg := testAggregator(aggregate.WithDuplicatePolicy(aggregate.PolicyApplyDuplicates))

	require.NoError(t, applyEvent(ctx, s, agg, createTestDonationEvent(1, "k1", testDonor, 100)))
	require.NoError(t, applyEvent(ctx, s, agg, createTestDonationEvent(2, "k1", testDonor, 100)))

	p, err := s.Project(ctx, testProject)
	require.NoError(t, err)
	assert.Equal(t, "200", p.RaisedAmount.String())

	contributions, err := s.ProjectContributions(ctx, testProject)
	require.NoError(t, err)
	assert.Len(t, contributions, 1)

	n, err := s.EventCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestTx_StorageErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	agg := testAggregator()

	boom := errors.New("boom")
	err := s.Update(ctx, func(tx *Tx) error {
		if err := agg.Apply(ctx, tx, createTestDonationEvent(1, "k1", testDonor, 100)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Project(ctx, testProject)
	assert.True(t, aggregate.IsNotFound(err), "got %v", err)
	_, err = s.Donor(ctx, testDonor)
	assert.True(t, aggregate.IsNotFound(err), "got %v", err)
}

func TestTx_MilestonesAndSettlement(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	agg := testAggregator()

	events := []ir.LedgerEvent{
		createTestDonationEvent(1, "k1", testDonor, 100),
		{Seq: 2, Key: "p0", Kind: ir.KindMilestoneProvisioned, Provision: &ir.MilestoneProvision{Source: testProject, Index: 0, Description: "design", Amount: ir.NewAmount(40)}},
		{Seq: 3, Key: "p1", Kind: ir.KindMilestoneProvisioned, Provision: &ir.MilestoneProvision{Source: testProject, Index: 1, Description: "build", Amount: ir.NewAmount(60)}},
		{Seq: 4, Key: "s0", Kind: ir.KindMilestoneSettled, Settlement: &ir.MilestoneSettlement{Source: testProject, Index: 0}},
		{Seq: 5, Key: "s9", Kind: ir.KindMilestoneSettled, Settlement: &ir.MilestoneSettlement{Source: testProject, Index: 9}},
	}
	for _, ev := range events {
		require.NoError(t, applyEvent(ctx, s, agg, ev), ev.Key)
	}

	milestones, err := s.Milestones(ctx, testProject)
	require.NoError(t, err)
	require.Len(t, milestones, 2)
	assert.True(t, milestones[0].IsPaid)
	assert.Equal(t, "design", milestones[0].Description)
	assert.False(t, milestones[1].IsPaid)
	assert.Equal(t, "60", milestones[1].Amount.String())

	require.NoError(t, applyEvent(ctx, s, agg, ir.LedgerEvent{
		Seq: 6, Key: "s1", Kind: ir.KindMilestoneSettled,
		Settlement: &ir.MilestoneSettlement{Source: testProject, Index: 1},
	}))
	p, err := s.Project(ctx, testProject)
	require.NoError(t, err)
	assert.Equal(t, ir.ProjectSettled, p.State)
}

func TestTx_AppendEventRequiresIncreasingSeq(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	err := s.Update(ctx, func(tx *Tx) error {
		return tx.AppendEvent(ctx, createTestDonationEvent(0, "k0", testDonor, 1))
	})
	assert.Error(t, err, "seq 0 is reserved for 'no events'")

	mustUpdate(t, s, func(tx *Tx) error {
		return tx.AppendEvent(ctx, createTestDonationEvent(1, "k1", testDonor, 1))
	})
	err = s.Update(ctx, func(tx *Tx) error {
		return tx.AppendEvent(ctx, createTestDonationEvent(1, "k2", testDonor, 1))
	})
	assert.Error(t, err, "reused seq must be rejected")
}

func TestProjectDonors(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	agg := testAggregator()

	require.NoError(t, applyEvent(ctx, s, agg, createTestDonationEvent(1, "k1", testDonor2, 5)))
	require.NoError(t, applyEvent(ctx, s, agg, createTestDonationEvent(2, "k2", testDonor, 7)))
	require.NoError(t, applyEvent(ctx, s, agg, createTestDonationEvent(3, "k3", testDonor, 1)))

	donors, err := s.ProjectDonors(ctx, testProject)
	require.NoError(t, err)
	require.Len(t, donors, 2)
	assert.Equal(t, testDonor, donors[0].Address)
	assert.Equal(t, "8", donors[0].TotalDonated.String())
	assert.Equal(t, testDonor2, donors[1].Address)

	contributions, err := s.DonorContributions(ctx, testDonor)
	require.NoError(t, err)
	assert.Len(t, contributions, 2)

	empty, err := s.ProjectDonors(ctx, testOwner)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReads_MissingEntitiesAreNotFound(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.Project(ctx, testProject)
	require.Error(t, err)
	assert.Equal(t, aggregate.ErrCodeNotFound, aggregate.CodeOf(err))

	_, err = s.Donor(ctx, testDonor)
	assert.True(t, aggregate.IsNotFound(err), "got %v", err)

	_, err = s.Contribution(ctx, "missing-key")
	assert.True(t, aggregate.IsNotFound(err), "got %v", err)
	assert.Contains(t, err.Error(), "missing-key")
}
