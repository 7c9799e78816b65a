// Package cache is the in-process metadata cache: it answers whether a
// table is distributed and how, which shards it has, and which workers
// make up the cluster, without touching the catalog on every call.
//
// Invalidation is push-based (from the binlog watcher or from catalog
// writes) and cheap: it only marks entries stale. The actual rebuild is
// deferred to the next lookup of the affected table.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pingcap/errors"
	"github.com/stridedb/stride/pkg/catalog"
	"github.com/stridedb/stride/pkg/table"
)

var (
	// ErrNotDistributed is returned by TableEntry for tables that exist
	// but are not distributed.
	ErrNotDistributed = errors.New("relation is not distributed")

	// ErrNotLoaded is returned by operations that require the metadata
	// layer when it is absent or still mid-creation.
	ErrNotLoaded = errors.New("metadata layer is not loaded")
)

// MetadataCache caches per-table distribution metadata keyed by table
// id. All methods are safe for concurrent use; invalidations may arrive
// from the binlog watcher goroutine at any time.
type MetadataCache struct {
	store  catalog.Store
	logger *slog.Logger

	mu          sync.Mutex
	entries     map[int64]*TableEntry
	loaded      bool
	relationIDs map[string]int64
	owner       string
	version     string
}

// NewMetadataCache creates an empty cache over a catalog store.
func NewMetadataCache(store catalog.Store, logger *slog.Logger) *MetadataCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataCache{
		store:       store,
		logger:      logger,
		entries:     make(map[int64]*TableEntry),
		relationIDs: make(map[string]int64),
	}
}

// HasBeenLoaded reports whether the metadata layer is fully present:
// all catalog relations exist and the version row has been written.
// A true answer is memoized until the next global invalidation; a
// false answer is re-checked on every call so a layer that finishes
// its creation is picked up promptly.
func (c *MetadataCache) HasBeenLoaded(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasBeenLoadedLocked(ctx)
}

func (c *MetadataCache) hasBeenLoadedLocked(ctx context.Context) (bool, error) {
	if c.loaded {
		return true, nil
	}
	present, err := c.store.SchemaPresent(ctx)
	if err != nil || !present {
		return false, err
	}
	version, err := c.store.VersionRow(ctx)
	if err != nil {
		return false, err
	}
	if version == nil {
		// Relations exist but the version row does not: the metadata
		// layer is mid-creation and must not be treated as loaded.
		return false, nil
	}
	// Prime the catalog relation ids while we know the relations exist,
	// so the watcher can route invalidations without extra lookups.
	for _, rel := range []string{catalog.DistPartitionTable, catalog.DistShardTable, catalog.DistNodeTable} {
		if _, err := c.relationIDLocked(ctx, rel); err != nil {
			return false, err
		}
	}
	c.owner = version.Owner
	c.version = version.Version
	c.loaded = true
	c.logger.Info("metadata layer loaded", "version", c.version, "owner", c.owner)
	return true, nil
}

// Owner returns the metadata owner recorded at creation time. The name
// is memoized, but the owner's SUPER privilege is revalidated on every
// call: a cached name must never vouch for privileges that have since
// been revoked.
func (c *MetadataCache) Owner(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loaded, err := c.hasBeenLoadedLocked(ctx)
	if err != nil {
		return "", err
	}
	if !loaded {
		return "", ErrNotLoaded
	}
	super, err := c.store.HasSuperPrivilege(ctx, c.owner)
	if err != nil {
		return "", err
	}
	if !super {
		return "", fmt.Errorf("metadata owner %q is no longer a superuser", c.owner)
	}
	return c.owner, nil
}

// Version returns the metadata layer version from the version row.
func (c *MetadataCache) Version(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loaded, err := c.hasBeenLoadedLocked(ctx)
	if err != nil {
		return "", err
	}
	if !loaded {
		return "", ErrNotLoaded
	}
	return c.version, nil
}

// RelationID resolves a catalog relation name to its table id,
// memoizing the answer. The memo is flushed by global invalidation
// because relation ids change when a relation is dropped and recreated.
func (c *MetadataCache) RelationID(ctx context.Context, relationName string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relationIDLocked(ctx, relationName)
}

func (c *MetadataCache) relationIDLocked(ctx context.Context, relationName string) (int64, error) {
	if id, ok := c.relationIDs[relationName]; ok {
		return id, nil
	}
	id, err := c.store.RelationID(ctx, relationName)
	if err != nil {
		return 0, err
	}
	c.relationIDs[relationName] = id
	return id, nil
}

// IsDistributedTable reports whether tableID is a distributed table.
// It returns false without error for unknown ids, for local tables,
// and whenever the metadata layer is not loaded.
func (c *MetadataCache) IsDistributedTable(ctx context.Context, tableID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loaded, err := c.hasBeenLoadedLocked(ctx)
	if err != nil || !loaded {
		return false, err
	}
	entry, err := c.entryLocked(ctx, tableID)
	if err != nil {
		return false, err
	}
	return entry.IsDistributed, nil
}

// IsOwner reports whether tableID is a distributed table whose shard
// placements this node owns. Non-distributed tables are not owned.
func (c *MetadataCache) IsOwner(ctx context.Context, tableID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loaded, err := c.hasBeenLoadedLocked(ctx)
	if err != nil || !loaded {
		return false, err
	}
	entry, err := c.entryLocked(ctx, tableID)
	if err != nil {
		return false, err
	}
	return entry.IsDistributed && entry.IsOwner, nil
}

// TableEntry returns the full cached metadata for a distributed table.
// It returns ErrNotDistributed (possibly wrapped) when the table is not
// distributed and ErrNotLoaded when the metadata layer is absent.
func (c *MetadataCache) TableEntry(ctx context.Context, tableID int64) (*TableEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loaded, err := c.hasBeenLoadedLocked(ctx)
	if err != nil {
		return nil, err
	}
	if !loaded {
		return nil, ErrNotLoaded
	}
	entry, err := c.entryLocked(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if !entry.IsDistributed {
		return nil, errors.Annotatef(ErrNotDistributed, "relation %d", tableID)
	}
	return entry, nil
}

// LoadShardInterval returns a copy of the interval for shardID, going
// through the owning table's cache entry. An unknown shard id is a
// hard error: shard ids come from metadata the caller already holds,
// so a miss means the metadata changed under it.
func (c *MetadataCache) LoadShardInterval(ctx context.Context, shardID int64) (*table.ShardInterval, error) {
	row, err := c.store.ShardRow(ctx, shardID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("could not find valid entry for shard %d", shardID)
	}
	entry, err := c.TableEntry(ctx, row.TableID)
	if err != nil {
		return nil, err
	}
	for _, interval := range entry.ShardIntervals {
		if interval.ShardID == shardID {
			copied := *interval
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("could not find valid entry for shard %d", shardID)
}

// entryLocked returns the valid cache entry for tableID, rebuilding on
// a miss or after invalidation. A rebuild assembles a fresh entry and
// only then swaps it into the slot: the previously returned entry is
// never written again, so readers that still hold it see a complete
// snapshot rather than a rebuild in progress. Build failures leave no
// entry behind, so a later lookup retries from scratch.
func (c *MetadataCache) entryLocked(ctx context.Context, tableID int64) (*TableEntry, error) {
	entry, ok := c.entries[tableID]
	if ok && entry.valid {
		return entry, nil
	}
	fresh := &TableEntry{TableID: tableID}
	if err := c.buildLocked(ctx, fresh); err != nil {
		delete(c.entries, tableID)
		return nil, err
	}
	fresh.valid = true
	c.entries[tableID] = fresh
	return fresh, nil
}

func (c *MetadataCache) buildLocked(ctx context.Context, entry *TableEntry) error {
	row, err := c.store.PartitionRow(ctx, entry.TableID)
	if err != nil {
		return err
	}
	if row == nil {
		// Not distributed. Cache the negative answer.
		return nil
	}
	method, err := table.ParsePartitionMethod(row.PartitionMethod)
	if err != nil {
		return errors.Annotatef(err, "relation %d", entry.TableID)
	}
	keyColumn, err := catalog.KeyColumn(row.PartitionKey)
	if err != nil {
		return errors.Annotatef(err, "relation %d", entry.TableID)
	}
	columnType, err := c.store.KeyColumnType(ctx, entry.TableID, keyColumn)
	if err != nil {
		return err
	}
	boundType, err := table.BoundTypeFor(method, columnType)
	if err != nil {
		return errors.Annotatef(err, "relation %d", entry.TableID)
	}

	shardRows, err := c.store.ShardRows(ctx, entry.TableID)
	if err != nil {
		return err
	}
	intervals := make([]*table.ShardInterval, 0, len(shardRows))
	for _, shardRow := range shardRows {
		storage, err := table.ParseStorageType(shardRow.StorageType)
		if err != nil {
			return errors.Annotatef(err, "shard %d", shardRow.ShardID)
		}
		interval, normalized, err := table.NewShardInterval(
			shardRow.TableID, shardRow.ShardID, storage,
			shardRow.MinValue, shardRow.MaxValue, boundType)
		if err != nil {
			return err
		}
		if normalized {
			c.logger.Warn("shard has only one bound set, treating it as unassigned",
				"shard", shardRow.ShardID,
				"table", entry.TableID,
			)
		}
		intervals = append(intervals, interval)
	}
	var cmp table.CompareFunc
	if len(intervals) > 0 {
		// A table with zero shards needs no ordering, and may not have
		// one (e.g. a range table on a type with no usable ordering).
		cmp, err = table.CompareFuncFor(method, boundType)
		if err != nil {
			return errors.Annotatef(err, "relation %d", entry.TableID)
		}
		table.SortShardIntervals(intervals, cmp)
	}

	entry.IsDistributed = true
	entry.PartitionMethod = method
	entry.PartitionKey = row.PartitionKey
	entry.KeyColumn = keyColumn
	entry.IsOwner = row.IsOwner
	entry.IsCluster = row.IsCluster
	entry.BoundType = boundType
	entry.ShardIntervals = intervals
	entry.CompareFunc = cmp
	entry.HasUninitializedShard = table.HasUninitializedShardInterval(intervals)
	if method == table.PartitionHash {
		hashFn, err := table.HashFuncFor(columnType)
		if err != nil {
			return errors.Annotatef(err, "relation %d", entry.TableID)
		}
		entry.HashFunc = hashFn
		entry.HasUniformHashDistribution = table.HasUniformHashDistribution(intervals)
	}
	return nil
}

// InvalidateTable marks the entry for tableID stale. The slot stays
// keyed by table id; the next lookup swaps in a freshly built entry.
// Ids with no entry are ignored: nothing cached means nothing stale.
func (c *MetadataCache) InvalidateTable(tableID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[tableID]; ok {
		entry.valid = false
	}
}

// InvalidateAll marks every entry stale and forgets the loaded state,
// the memoized relation ids and the owner. It is the response to
// catalog DDL, where ids and even the layer's presence may change.
func (c *MetadataCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		entry.valid = false
	}
	c.loaded = false
	c.relationIDs = make(map[string]int64)
	c.owner = ""
	c.version = ""
}
