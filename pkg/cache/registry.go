package cache

import (
	"log/slog"

	"github.com/stridedb/stride/pkg/catalog"
)

// Registry bundles the table and node caches behind the invalidation
// interface that catalog writers and the binlog watcher dispatch to.
type Registry struct {
	Tables *MetadataCache
	Nodes  *NodeCache
}

// NewRegistry creates both caches over the same catalog store.
func NewRegistry(store catalog.Store, logger *slog.Logger) *Registry {
	return &Registry{
		Tables: NewMetadataCache(store, logger),
		Nodes:  NewNodeCache(store, logger),
	}
}

var _ catalog.Notifier = (*Registry)(nil)

// InvalidateTable marks one distributed table's metadata stale.
func (r *Registry) InvalidateTable(tableID int64) {
	r.Tables.InvalidateTable(tableID)
}

// InvalidateNodes drops the cached worker node set.
func (r *Registry) InvalidateNodes() {
	r.Nodes.Invalidate()
}

// InvalidateAll flushes everything: all table entries, the loaded
// state, and the node set.
func (r *Registry) InvalidateAll() {
	r.Tables.InvalidateAll()
	r.Nodes.Invalidate()
}
