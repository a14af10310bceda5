package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/roach88/tally/internal/ir"
)

// MaxURILength bounds a document URI.
const MaxURILength = 2048

const keyPrefix = "did/"

// Document is a stored registry entry.
type Document struct {
	Address   ir.Address `json:"address"`
	URI       string     `json:"uri"`
	Revision  uint64     `json:"revision"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Registry is the address to document URI mapping.
type Registry struct {
	db        *badger.DB
	logger    *slog.Logger
	dataDir   string
	now       func() time.Time
	subBuffer int
	closed    atomic.Bool

	// writeMu orders read-modify-write of a revision with its notification.
	writeMu sync.Mutex

	subMu       sync.RWMutex
	subscribers map[SubscriptionID]*subscriber
	lastSubID   SubscriptionID
}

// Option configures a Registry.
type Option func(*Registry)

// WithDataDir stores documents on disk under dir. Without it the registry
// is in-memory and empty on every Open.
func WithDataDir(dir string) Option {
	return func(r *Registry) {
		r.dataDir = dir
	}
}

// WithLogger sets the logger. Badger's own log output is routed to it too.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithSubscriptionBuffer sets each subscriber's channel capacity.
func WithSubscriptionBuffer(n int) Option {
	return func(r *Registry) {
		r.subBuffer = n
	}
}

// WithClock sets the time source for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Open opens the registry store.
func Open(opts ...Option) (*Registry, error) {
	r := &Registry{
		now:         time.Now,
		subBuffer:   DefaultSubscriptionBuffer,
		subscribers: make(map[SubscriptionID]*subscriber),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var badgerOpts badger.Options
	if r.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create registry dir: %w", err)
		}
		badgerOpts = badger.DefaultOptions(r.dataDir)
	}
	badgerOpts = badgerOpts.
		WithLogger(newBadgerLogger(r.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	r.db = db
	return r, nil
}

// Close closes all subscriptions and the underlying store.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.closeSubscribers()
	return r.db.Close()
}

func documentKey(address ir.Address) []byte {
	return []byte(keyPrefix + string(address))
}

// storedDocument is the value encoding. Address is implied by the key.
type storedDocument struct {
	URI       string `json:"uri"`
	Revision  uint64 `json:"revision"`
	UpdatedAt int64  `json:"updated_at"`
}

func (r *Registry) check(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Document returns the full entry for address, or ErrNotFound.
func (r *Registry) Document(ctx context.Context, address ir.Address) (Document, error) {
	if err := r.check(ctx); err != nil {
		return Document{}, err
	}
	address, err := ir.ParseAddress(string(address))
	if err != nil {
		return Document{}, err
	}

	var doc Document
	err = r.db.View(func(txn *badger.Txn) error {
		var lookupErr error
		doc, lookupErr = readDocument(txn, address)
		return lookupErr
	})
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func readDocument(txn *badger.Txn, address ir.Address) (Document, error) {
	item, err := txn.Get(documentKey(address))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	if err != nil {
		return Document{}, fmt.Errorf("read document %s: %w", address, err)
	}
	var stored storedDocument
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &stored)
	})
	if err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", address, err)
	}
	return Document{
		Address:   address,
		URI:       stored.URI,
		Revision:  stored.Revision,
		UpdatedAt: time.Unix(stored.UpdatedAt, 0).UTC(),
	}, nil
}

// GetDocumentURI returns the document URI registered for address.
// Returns ErrNotFound if address never registered one.
func (r *Registry) GetDocumentURI(ctx context.Context, address ir.Address) (string, error) {
	doc, err := r.Document(ctx, address)
	if err != nil {
		return "", err
	}
	return doc.URI, nil
}

// Exists reports whether address has a registered document.
func (r *Registry) Exists(ctx context.Context, address ir.Address) (bool, error) {
	_, err := r.Document(ctx, address)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetDocument creates or replaces the document URI of address.
//
// Only the owner may write: caller must equal address, otherwise
// ErrUnauthorized. An empty URI returns ErrInvalidDocument. On success every
// subscriber receives a DocumentUpdated with the new revision.
func (r *Registry) SetDocument(ctx context.Context, caller, address ir.Address, uri string) error {
	_, err := r.UpdateDocument(ctx, caller, address, uri)
	return err
}

// UpdateDocument is SetDocument returning the committed update, so callers
// learn the revision they wrote even when other writers follow.
func (r *Registry) UpdateDocument(ctx context.Context, caller, address ir.Address, uri string) (DocumentUpdated, error) {
	if err := r.check(ctx); err != nil {
		return DocumentUpdated{}, err
	}
	caller, err := ir.ParseAddress(string(caller))
	if err != nil {
		return DocumentUpdated{}, fmt.Errorf("%w: caller: %v", ErrUnauthorized, err)
	}
	address, err = ir.ParseAddress(string(address))
	if err != nil {
		return DocumentUpdated{}, err
	}
	if caller != address {
		return DocumentUpdated{}, fmt.Errorf("%w: %s cannot set document of %s", ErrUnauthorized, caller, address)
	}
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return DocumentUpdated{}, fmt.Errorf("%w: empty", ErrInvalidDocument)
	}
	if len(uri) > MaxURILength {
		return DocumentUpdated{}, fmt.Errorf("%w: longer than %d bytes", ErrInvalidDocument, MaxURILength)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	update := DocumentUpdated{
		Address:   address,
		URI:       uri,
		UpdatedAt: r.now().UTC().Truncate(time.Second),
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		prev, err := readDocument(txn, address)
		switch {
		case errors.Is(err, ErrNotFound):
			update.Created = true
			update.Revision = 1
		case err != nil:
			return err
		default:
			update.Revision = prev.Revision + 1
		}

		val, err := json.Marshal(storedDocument{
			URI:       uri,
			Revision:  update.Revision,
			UpdatedAt: update.UpdatedAt.Unix(),
		})
		if err != nil {
			return err
		}
		return txn.Set(documentKey(address), val)
	})
	if err != nil {
		return DocumentUpdated{}, fmt.Errorf("set document %s: %w", address, err)
	}

	r.logger.Info("document updated",
		"address", address,
		"revision", update.Revision,
		"created", update.Created)
	r.publish(update)
	return update, nil
}

// List returns every registered document ordered by address.
func (r *Registry) List(ctx context.Context) ([]Document, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	docs := []Document{}
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			address := ir.Address(strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
			doc, err := readDocument(txn, address)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}
