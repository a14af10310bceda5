package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/tally/internal/ir"
)

var (
	testProject = ir.MustAddress("0x1111111111111111111111111111111111111111")
	testOwner   = ir.MustAddress("0x9999999999999999999999999999999999999999")
	testDonor   = ir.MustAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	testDonor2  = ir.MustAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestDonationEvent creates a donation envelope with minimal required fields.
func createTestDonationEvent(seq int64, key string, donor ir.Address, amount uint64) ir.LedgerEvent {
	return ir.LedgerEvent{
		Seq:  seq,
		Key:  key,
		Kind: ir.KindDonation,
		Donation: &ir.Donation{
			Source:    testProject,
			Donor:     donor,
			Amount:    ir.NewAmount(amount),
			EventKey:  key,
			Timestamp: time.Date(2026, 3, 1, 12, 0, int(seq), 0, time.UTC),
		},
	}
}

// mustUpdate runs fn in a transaction and fails the test on error.
func mustUpdate(t *testing.T, s *Store, fn func(*Tx) error) {
	t.Helper()
	if err := s.Update(context.Background(), fn); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
}
