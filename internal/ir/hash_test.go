package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKeyDeterminism(t *testing.T) {
	k1, err := EventKey("0xABC", 3)
	require.NoError(t, err)
	k2, err := EventKey("0xabc", 3)
	require.NoError(t, err)

	assert.Equal(t, k1, k2, "tx hash case must not change the key")
	assert.Len(t, k1, 64, "SHA-256 hex is 64 characters")
}

func TestEventKeyChangesWithInput(t *testing.T) {
	base := MustEventKey("0xabc", 0)

	assert.NotEqual(t, base, MustEventKey("0xabc", 1), "different log index")
	assert.NotEqual(t, base, MustEventKey("0xabd", 0), "different transaction")
}

func TestEventKeyRejectsEmptyHash(t *testing.T) {
	_, err := EventKey("  ", 0)
	assert.Error(t, err)
	assert.Panics(t, func() { MustEventKey("", 0) })
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain(DomainEvent, data), hashWithDomain(DomainState, data))
}

func TestStateDigestIgnoresOrder(t *testing.T) {
	p1 := MustAddress("0x1000000000000000000000000000000000000001")
	p2 := MustAddress("0x1000000000000000000000000000000000000002")
	ts := time.Unix(1_700_000_000, 0).UTC()

	a := Snapshot{
		Projects: []Project{
			{Address: p1, RaisedAmount: NewAmount(5), State: ProjectFundraising, Deadline: ts},
			{Address: p2, RaisedAmount: NewAmount(7), State: ProjectFundraising, Deadline: ts},
		},
	}
	b := Snapshot{
		Projects: []Project{a.Projects[1], a.Projects[0]},
	}

	da, err := StateDigest(a)
	require.NoError(t, err)
	db, err := StateDigest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)

	// The caller's slices are left untouched.
	assert.Equal(t, p2, b.Projects[0].Address)

	b.Projects[0].RaisedAmount = NewAmount(8)
	dc, err := StateDigest(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, dc)
}
