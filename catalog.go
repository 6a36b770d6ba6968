package bucketstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// catalogRow is the raw shape of one buckets_config row, before the
// index/pre/post/options/reindex_active JSON blobs are decoded and the
// trigger names resolved against the registry.
type catalogRow struct {
	Name          string `db:"name"`
	IndexMap      []byte `db:"index_map"`
	Pre           []byte `db:"pre"`
	Post          []byte `db:"post"`
	Options       []byte `db:"options"`
	ReindexActive []byte `db:"reindex_active"`
	RVer          int64  `db:"rver"`
}

// catalog fronts the buckets_config relation with an LRU cache keyed by
// bucket name. Entries are dropped on every write to buckets_config
// (invalidate) and whenever a write path notices an object row stamped
// with a schema version newer than the descriptor it is holding
// (Request.checkRowVersionGuard), so concurrent schema evolution on
// another connection is picked up without polling.
type catalog struct {
	db       *DB
	cache    *lru.Cache[string, *cacheEntry]
	triggers *TriggerRegistry
}

type cacheEntry struct {
	desc *BucketDescriptor
}

func newCatalogCache(size int) (*lru.Cache[string, *cacheEntry], error) {
	return lru.New[string, *cacheEntry](size)
}

// get returns the cached descriptor for name if present, else loads and
// caches it from buckets_config. Returns BucketNotFound if the bucket has
// never been created.
func (c *catalog) get(ctx context.Context, q sqlxQueryer, name string) (*BucketDescriptor, error) {
	if e, ok := c.cache.Get(name); ok {
		return e.desc, nil
	}
	return c.load(ctx, q, name)
}

// load bypasses the cache and reads buckets_config directly, populating
// the cache with what it finds. Used by get on a miss and by
// Request.descriptorFresh (GetOptions.NoCache).
func (c *catalog) load(ctx context.Context, q sqlxQueryer, name string) (*BucketDescriptor, error) {
	var row catalogRow
	err := q.GetContext(ctx, &row, `
SELECT name, index_map, pre, post, options, reindex_active, rver
FROM buckets_config WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errBucketNotFound(name)
	}
	if err != nil {
		return nil, classifyDBError(name, err)
	}
	desc, err := c.decode(&row)
	if err != nil {
		return nil, err
	}
	c.cache.Add(name, &cacheEntry{desc: desc})
	return desc, nil
}

// invalidate drops name from the cache; called after any write to
// buckets_config, or when a request notices its cached descriptor is
// stale, so the next get re-reads the authoritative row.
func (c *catalog) invalidate(name string) {
	c.cache.Remove(name)
}

func (c *catalog) decode(row *catalogRow) (*BucketDescriptor, error) {
	desc := &BucketDescriptor{Name: row.Name}

	if len(row.IndexMap) > 0 {
		if err := json.Unmarshal(row.IndexMap, &desc.Index); err != nil {
			return nil, errInternal(row.Name, fmt.Errorf("decoding index_map: %w", err))
		}
	}
	if len(row.Pre) > 0 {
		if err := json.Unmarshal(row.Pre, &desc.Pre); err != nil {
			return nil, errInternal(row.Name, fmt.Errorf("decoding pre: %w", err))
		}
	}
	if len(row.Post) > 0 {
		if err := json.Unmarshal(row.Post, &desc.Post); err != nil {
			return nil, errInternal(row.Name, fmt.Errorf("decoding post: %w", err))
		}
	}
	if len(row.Options) > 0 {
		if err := json.Unmarshal(row.Options, &desc.Options); err != nil {
			return nil, errInternal(row.Name, fmt.Errorf("decoding options: %w", err))
		}
	}
	if len(row.ReindexActive) > 0 {
		if err := json.Unmarshal(row.ReindexActive, &desc.ReindexActive); err != nil {
			return nil, errInternal(row.Name, fmt.Errorf("decoding reindex_active: %w", err))
		}
	}

	preFns, err := c.triggers.resolve(row.Name, desc.Pre)
	if err != nil {
		return nil, err
	}
	postFns, err := c.triggers.resolve(row.Name, desc.Post)
	if err != nil {
		return nil, err
	}
	desc.PreFuncs = preFns
	desc.PostFuncs = postFns
	return desc, nil
}

// sqlxQueryer is satisfied by both *sqlx.DB and *sqlx.Tx, letting catalog
// methods run either outside or inside a request's transaction.
type sqlxQueryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
