// Package catalog reads and writes the stride metadata catalog: the
// MySQL tables that record which tables are distributed, how they are
// partitioned into shards, and which worker nodes make up the cluster.
//
// The store deliberately performs no caching of its own; every call is
// a fresh read under the current snapshot. Caching is entirely the
// responsibility of pkg/cache.
package catalog

import (
	"context"

	"github.com/pingcap/errors"
)

// SchemaName is the database that holds the metadata catalog.
const SchemaName = "stride_metadata"

// Catalog relation names within SchemaName.
const (
	DistPartitionTable = "dist_partition"
	DistShardTable     = "dist_shard"
	DistNodeTable      = "dist_node"
	DistVersionTable   = "dist_version"
)

var (
	// ErrCatalogMissing is returned when a required catalog relation does
	// not exist. Callers treat this as a fatal configuration error.
	ErrCatalogMissing = errors.New("stride metadata catalog relation is missing")

	// ErrNodeNotFound is returned by node updates that match no row.
	ErrNodeNotFound = errors.New("could not find valid entry for node")
)

// PartitionRow is one raw dist_partition row: the record that a table
// is distributed, and how.
type PartitionRow struct {
	TableID         int64
	PartitionMethod string // single character encoding, see table.ParsePartitionMethod
	PartitionKey    string // serialized expression identifying the distribution column
	IsOwner         bool
	IsCluster       bool
}

// ShardRow is one raw dist_shard row. Bounds are text-encoded and may
// be NULL for shards that have not been assigned a range yet.
type ShardRow struct {
	ShardID     int64
	TableID     int64
	StorageType string
	MinValue    *string
	MaxValue    *string
}

// WorkerRow is one raw dist_node row.
type WorkerRow struct {
	NodeID  int64
	Name    string
	Port    int
	Role    string
	Active  bool
	GroupID int64
}

// VersionRow is the single dist_version row, written last during
// bootstrap. Its presence is what distinguishes a fully initialized
// metadata layer from one that is mid-creation.
type VersionRow struct {
	Version string
	Owner   string
}

// Store is the read interface the caches consume. Implementations must
// use indexed lookups (never scans) and must not cache results.
type Store interface {
	// PartitionRow returns the partition descriptor for a table id, or
	// nil when the table is not distributed.
	PartitionRow(ctx context.Context, tableID int64) (*PartitionRow, error)

	// ShardRows returns every shard descriptor for a table id.
	ShardRows(ctx context.Context, tableID int64) ([]*ShardRow, error)

	// ShardRow returns one shard descriptor by shard id, or nil when no
	// such shard exists.
	ShardRow(ctx context.Context, shardID int64) (*ShardRow, error)

	// WorkerRows returns every worker descriptor.
	WorkerRows(ctx context.Context) ([]*WorkerRow, error)

	// RelationID returns the stable identifier of a catalog relation.
	// It returns ErrCatalogMissing when the relation does not exist.
	RelationID(ctx context.Context, relationName string) (int64, error)

	// KeyColumnType resolves the MySQL column type of a distributed
	// table's partition column.
	KeyColumnType(ctx context.Context, tableID int64, column string) (string, error)

	// SchemaPresent reports whether all catalog relations exist.
	SchemaPresent(ctx context.Context) (bool, error)

	// VersionRow returns the dist_version row, or nil when it has not
	// been written yet (metadata layer absent or mid-creation).
	VersionRow(ctx context.Context) (*VersionRow, error)

	// HasSuperPrivilege reports whether user still holds SUPER. The
	// owner's privilege must be revalidated at read time, not only when
	// its name was first cached.
	HasSuperPrivilege(ctx context.Context, user string) (bool, error)
}

// Notifier receives invalidations triggered by catalog writes. It is a
// subset of what pkg/cache.Registry implements.
type Notifier interface {
	InvalidateTable(tableID int64)
	InvalidateNodes()
	InvalidateAll()
}
