package cache

import (
	"github.com/stridedb/stride/pkg/table"
)

// TableEntry is the cached metadata for one table id. For tables that
// are not distributed only IsDistributed is meaningful; the negative
// answer is cached so repeated lookups of local tables stay cheap.
//
// Entries are immutable once returned: a rebuild after invalidation
// installs a fresh entry in the cache rather than mutating the old
// one, so a caller holding an entry across an invalidation keeps a
// complete (if stale) snapshot. Callers must not mutate an entry.
type TableEntry struct {
	TableID       int64
	IsDistributed bool

	PartitionMethod table.PartitionMethod
	// PartitionKey is the serialized key expression as stored in the
	// catalog; KeyColumn is the column it resolves to.
	PartitionKey string
	KeyColumn    string
	IsOwner      bool
	IsCluster    bool

	// BoundType decodes shard bounds from their catalog text encoding,
	// e.g. to place a key value against ShardIntervals.
	BoundType table.BoundType

	// ShardIntervals is sorted by min value, with unassigned shards last.
	ShardIntervals             []*table.ShardInterval
	CompareFunc                table.CompareFunc
	HashFunc                   table.HashFunc
	HasUninitializedShard      bool
	HasUniformHashDistribution bool

	// valid is only read and written by the cache under its mutex.
	valid bool
}
