package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/ir"
)

func TestReadEvents_PayloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	closedAt := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	want := []ir.LedgerEvent{
		createTestDonationEvent(1, "k1", testDonor, 100),
		{Seq: 2, Key: "p0", Kind: ir.KindMilestoneProvisioned, Batch: "b1", Provision: &ir.MilestoneProvision{Source: testProject, Index: 3, Description: "launch é", Amount: ir.MustAmount("123456789012345678901234567890")}},
		{Seq: 5, Key: "s0", Kind: ir.KindMilestoneSettled, Settlement: &ir.MilestoneSettlement{Source: testProject, Index: 3}},
		{Seq: 7, Key: "c0", Kind: ir.KindFundingClosed, Closure: &ir.FundingClosure{Source: testProject, At: closedAt}},
	}
	mustUpdate(t, s, func(tx *Tx) error {
		for _, ev := range want {
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := s.ReadEvents(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Seq, got[i].Seq)
		assert.Equal(t, want[i].Key, got[i].Key)
		assert.Equal(t, want[i].Kind, got[i].Kind)
		assert.Equal(t, want[i].Batch, got[i].Batch)
		require.NoError(t, got[i].Validate())
	}
	assert.Equal(t, "100", got[0].Donation.Amount.String())
	assert.True(t, want[0].Donation.Timestamp.Equal(got[0].Donation.Timestamp))
	assert.Equal(t, "123456789012345678901234567890", got[1].Provision.Amount.String())
	assert.Equal(t, "launch é", got[1].Provision.Description)
	assert.Equal(t, uint32(3), got[2].Settlement.Index)
	assert.True(t, closedAt.Equal(got[3].Closure.At))

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), last)
}

func TestLastSeq_EmptyLog(t *testing.T) {
	s := createTestStore(t)
	last, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Zero(t, last)
}

// Folding the stored log into memory must reproduce the stored state.
func TestSnapshot_MatchesInMemoryFold(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	agg := testAggregator()

	events := []ir.LedgerEvent{
		createTestDonationEvent(1, "k1", testDonor, 10),
		createTestDonationEvent(2, "k2", testDonor2, 20),
		createTestDonationEvent(3, "k3", testDonor, 30),
		{Seq: 4, Key: "p0", Kind: ir.KindMilestoneProvisioned, Provision: &ir.MilestoneProvision{Source: testProject, Index: 0, Amount: ir.NewAmount(60)}},
		{Seq: 5, Key: "s0", Kind: ir.KindMilestoneSettled, Settlement: &ir.MilestoneSettlement{Source: testProject, Index: 0}},
	}
	for _, ev := range events {
		require.NoError(t, applyEvent(ctx, s, agg, ev))
	}

	stored, err := s.Snapshot(ctx)
	require.NoError(t, err)

	logged, err := s.ReadEvents(ctx)
	require.NoError(t, err)
	mem := aggregate.NewMemState()
	for _, ev := range logged {
		require.NoError(t, agg.Apply(ctx, mem, ev))
	}

	want, err := mem.Snapshot().CanonicalJSON()
	require.NoError(t, err)
	got, err := stored.CanonicalJSON()
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	wantDigest, err := ir.StateDigest(mem.Snapshot())
	require.NoError(t, err)
	gotDigest, err := ir.StateDigest(stored)
	require.NoError(t, err)
	assert.Equal(t, wantDigest, gotDigest)
}
