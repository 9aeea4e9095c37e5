// Package claims caches which node names have already been claimed on the
// ledger. The cache is rebuilt from scratch on every refresh.
package claims

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/portfolio-globe/backend/pkg/ledger"
	"github.com/portfolio-globe/backend/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// Entry is one claimed name.
type Entry struct {
	Name           string `json:"name"`
	LedgerObjectID string `json:"ledgerObjectId"`
	TransactionID  string `json:"transactionId"`
	ImageReference string `json:"imageReference,omitempty"`
}

// Source is the part of the ledger client the cache needs.
type Source interface {
	QueryClaimTransactions(ctx context.Context, cursor string) (ledger.Page, error)
	GetObjects(ctx context.Context, ids []string) ([]ledger.Object, error)
}

// Cache holds the last refreshed set of claims.
type Cache struct {
	source    Source
	group     singleflight.Group
	entries   atomic.Pointer[map[string]Entry]
	mu        sync.Mutex
	refreshed time.Time

	// MaxPages bounds a single scan. Zero means no bound.
	MaxPages int
}

// New returns an empty cache backed by source. A nil source keeps the
// cache empty forever.
func New(source Source) *Cache {
	c := &Cache{source: source}
	empty := map[string]Entry{}
	c.entries.Store(&empty)
	return c
}

// Refresh rescans the ledger and swaps in the result. Failures are logged
// and leave the cache empty; Refresh only returns an error when ctx is done.
// Concurrent calls share one scan.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		entries, err := c.scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("[Claims] refresh failed, treating as no claims", "err", err)
			entries = map[string]Entry{}
		}
		c.entries.Store(&entries)
		c.mu.Lock()
		c.refreshed = time.Now()
		c.mu.Unlock()
		logger.Debug("[Claims] refreshed", "count", len(entries))
		return nil, nil
	})
	return err
}

func (c *Cache) scan(ctx context.Context) (map[string]Entry, error) {
	out := map[string]Entry{}
	if c.source == nil {
		return out, nil
	}

	var (
		ids    []string
		digest = map[string]string{}
		cursor string
	)
	for page := 0; c.MaxPages == 0 || page < c.MaxPages; page++ {
		p, err := c.source.QueryClaimTransactions(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, tx := range p.Transactions {
			for _, obj := range tx.Created {
				if _, seen := digest[obj.ID]; seen {
					continue
				}
				digest[obj.ID] = tx.Digest
				ids = append(ids, obj.ID)
			}
		}
		if !p.HasNextPage || p.NextCursor == "" || p.NextCursor == cursor {
			break
		}
		cursor = p.NextCursor
	}

	if len(ids) == 0 {
		return out, nil
	}
	objects, err := c.source.GetObjects(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, obj := range objects {
		if obj.Name == "" {
			continue
		}
		out[obj.Name] = Entry{
			Name:           obj.Name,
			LedgerObjectID: obj.ID,
			TransactionID:  digest[obj.ID],
			ImageReference: obj.URL,
		}
	}
	return out, nil
}

func (c *Cache) load() map[string]Entry {
	return *c.entries.Load()
}

// IsClaimed reports whether name was claimed at the last refresh. Names are
// compared exactly.
func (c *Cache) IsClaimed(name string) bool {
	_, ok := c.load()[name]
	return ok
}

// Lookup returns the claim for name.
func (c *Cache) Lookup(name string) (Entry, bool) {
	e, ok := c.load()[name]
	return e, ok
}

// Snapshot returns a copy of every claim.
func (c *Cache) Snapshot() map[string]Entry {
	cur := c.load()
	out := make(map[string]Entry, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// Len returns the number of claims.
func (c *Cache) Len() int {
	return len(c.load())
}

// RefreshedAt returns when the last refresh finished.
func (c *Cache) RefreshedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshed
}
