package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/tally/internal/ir"
)

var (
	addrA = ir.MustAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	addrB = ir.MustAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	fixedNow = time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
)

func openTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	r, err := Open(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSetThenGet(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	require.NoError(t, r.SetDocument(ctx, addrA, addrA, "ipfs://x"))

	uri, err := r.GetDocumentURI(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://x", uri)

	_, err = r.GetDocumentURI(ctx, addrB)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	ok, err := r.Exists(ctx, addrA)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetDocument(ctx, addrA, addrA, "ipfs://x"))

	ok, err = r.Exists(ctx, addrA)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetDocument_UpdateBumpsRevision(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	require.NoError(t, r.SetDocument(ctx, addrA, addrA, "ipfs://v1"))
	require.NoError(t, r.SetDocument(ctx, addrA, addrA, "ipfs://v2"))

	doc, err := r.Document(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://v2", doc.URI)
	assert.Equal(t, uint64(2), doc.Revision)
	assert.Equal(t, fixedNow, doc.UpdatedAt)
}

func TestUpdateDocument_ReturnsCommittedRevision(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)
	const writers = 8

	updates := make(chan DocumentUpdated, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := r.UpdateDocument(ctx, addrA, addrA, fmt.Sprintf("ipfs://v%d", i))
			assert.NoError(t, err)
			updates <- u
		}(i)
	}
	wg.Wait()
	close(updates)

	revisions := make(map[uint64]bool, writers)
	created := 0
	for u := range updates {
		assert.False(t, revisions[u.Revision], "revision %d returned twice", u.Revision)
		revisions[u.Revision] = true
		if u.Created {
			created++
			assert.Equal(t, uint64(1), u.Revision)
		}
		assert.Equal(t, addrA, u.Document().Address)
	}
	assert.Len(t, revisions, writers)
	assert.Equal(t, 1, created)

	doc, err := r.Document(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, uint64(writers), doc.Revision)
}

func TestSetDocument_OnlyOwner(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	err := r.SetDocument(ctx, addrB, addrA, "ipfs://mine-now")
	assert.ErrorIs(t, err, ErrUnauthorized)

	ok, err := r.Exists(ctx, addrA)
	require.NoError(t, err)
	assert.False(t, ok, "rejected write must not create a document")
}

func TestSetDocument_CaseInsensitiveOwner(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	upper := ir.Address("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	require.NoError(t, r.SetDocument(ctx, upper, addrA, "ipfs://x"))

	uri, err := r.GetDocumentURI(ctx, upper)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://x", uri)
}

func TestSetDocument_InvalidURI(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	assert.ErrorIs(t, r.SetDocument(ctx, addrA, addrA, ""), ErrInvalidDocument)
	assert.ErrorIs(t, r.SetDocument(ctx, addrA, addrA, "   "), ErrInvalidDocument)

	long := make([]byte, MaxURILength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, r.SetDocument(ctx, addrA, addrA, string(long)), ErrInvalidDocument)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	require.NoError(t, r.SetDocument(ctx, addrB, addrB, "ipfs://b"))
	require.NoError(t, r.SetDocument(ctx, addrA, addrA, "ipfs://a"))

	docs, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, addrA, docs[0].Address)
	assert.Equal(t, addrB, docs[1].Address)
}

func TestPersistsOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	r1, err := Open(WithDataDir(dir))
	require.NoError(t, err)
	require.NoError(t, r1.SetDocument(ctx, addrA, addrA, "ipfs://kept"))
	require.NoError(t, r1.Close())

	r2, err := Open(WithDataDir(dir))
	require.NoError(t, err)
	defer r2.Close()

	uri, err := r2.GetDocumentURI(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://kept", uri)
}

func TestClosedRegistry(t *testing.T) {
	r, err := Open()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "second close is a no-op")

	_, err = r.GetDocumentURI(context.Background(), addrA)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscribe_ReceivesUpdatesInOrder(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	id, updates := r.Subscribe()
	defer r.Unsubscribe(id)

	require.NoError(t, r.SetDocument(ctx, addrA, addrA, "ipfs://v1"))
	require.NoError(t, r.SetDocument(ctx, addrA, addrA, "ipfs://v2"))
	require.Error(t, r.SetDocument(ctx, addrB, addrA, "ipfs://nope"))

	first := <-updates
	assert.Equal(t, DocumentUpdated{Address: addrA, URI: "ipfs://v1", Revision: 1, Created: true, UpdatedAt: fixedNow}, first)
	second := <-updates
	assert.Equal(t, uint64(2), second.Revision)
	assert.False(t, second.Created)

	select {
	case u := <-updates:
		t.Fatalf("unexpected update for failed write: %+v", u)
	default:
	}
}

func TestSubscribe_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t, WithSubscriptionBuffer(1))

	id, updates := r.Subscribe()
	defer r.Unsubscribe(id)

	for range 3 {
		require.NoError(t, r.SetDocument(ctx, addrA, addrA, "ipfs://x"))
	}

	u := <-updates
	assert.Equal(t, uint64(1), u.Revision)
	select {
	case u := <-updates:
		t.Fatalf("buffer of 1 should have dropped later updates, got %+v", u)
	default:
	}
}

func TestUnsubscribe_ClosesChannelAndStopsConsumer(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	id, updates := r.Subscribe()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen []string
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for u := range updates {
			mu.Lock()
			seen = append(seen, u.URI)
			mu.Unlock()
		}
	}()

	require.NoError(t, r.SetDocument(ctx, addrA, addrA, "ipfs://x"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, time.Millisecond)

	r.Unsubscribe(id)
	r.Unsubscribe(id)
	wg.Wait()

	require.NoError(t, r.SetDocument(ctx, addrA, addrA, "ipfs://y"))
	mu.Lock()
	assert.Equal(t, []string{"ipfs://x"}, seen)
	mu.Unlock()
}

func TestClose_ClosesSubscriptions(t *testing.T) {
	r, err := Open()
	require.NoError(t, err)

	_, updates := r.Subscribe()
	require.NoError(t, r.Close())

	_, ok := <-updates
	assert.False(t, ok)

	_, late := r.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing to a closed registry returns a closed channel")
}
