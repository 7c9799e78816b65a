package cache

// Invalidation is one push notification from the catalog: either a
// single table id or a wildcard flush. It exists so transports that
// carry invalidations as values (queues, channels, batch replays) have
// a single dispatch point instead of choosing a method per kind.
type Invalidation struct {
	tableID int64
	all     bool
}

// TableInvalidation names one distributed table.
func TableInvalidation(tableID int64) Invalidation {
	return Invalidation{tableID: tableID}
}

// WildcardInvalidation flushes everything.
func WildcardInvalidation() Invalidation {
	return Invalidation{all: true}
}

// Invalidate dispatches a single invalidation value.
func (c *MetadataCache) Invalidate(inv Invalidation) {
	if inv.all {
		c.InvalidateAll()
		return
	}
	c.InvalidateTable(inv.tableID)
}

// Invalidate dispatches a single invalidation value to both caches.
// A wildcard also drops the node set; a keyed invalidation does not
// touch it.
func (r *Registry) Invalidate(inv Invalidation) {
	if inv.all {
		r.InvalidateAll()
		return
	}
	r.InvalidateTable(inv.tableID)
}
