package cache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pingcap/errors"
	"github.com/stridedb/stride/pkg/catalog"
	"github.com/stridedb/stride/pkg/table"
)

// NodeCache caches the cluster's worker nodes, keyed by host:port.
// Unlike the per-table cache it is rebuilt wholesale: node changes are
// rare and the full set is small, so there is no per-node staleness.
type NodeCache struct {
	store  catalog.Store
	logger *slog.Logger

	mu    sync.Mutex
	nodes map[string]*table.WorkerNode
	valid bool
}

// NewNodeCache creates an empty node cache over a catalog store.
func NewNodeCache(store catalog.Store, logger *slog.Logger) *NodeCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &NodeCache{
		store:  store,
		logger: logger,
	}
}

// WorkerNodes returns all worker nodes keyed by host:port. The returned
// map is shared: callers must treat it as read-only and must not retain
// it across invalidations.
func (c *NodeCache) WorkerNodes(ctx context.Context) (map[string]*table.WorkerNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLocked(ctx); err != nil {
		return nil, err
	}
	return c.nodes, nil
}

// WorkerNode returns the node at name:port, or nil when no such node
// is registered.
func (c *NodeCache) WorkerNode(ctx context.Context, name string, port int) (*table.WorkerNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLocked(ctx); err != nil {
		return nil, err
	}
	node := &table.WorkerNode{Name: name, Port: port}
	return c.nodes[node.Addr()], nil
}

// ActivePrimaryNodes returns the active primary nodes, the set that can
// accept new shard placements.
func (c *NodeCache) ActivePrimaryNodes(ctx context.Context) ([]*table.WorkerNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLocked(ctx); err != nil {
		return nil, err
	}
	var active []*table.WorkerNode
	for _, node := range c.nodes {
		if node.Active && node.Role == table.NodePrimary {
			active = append(active, node)
		}
	}
	return active, nil
}

func (c *NodeCache) ensureLocked(ctx context.Context) error {
	if c.valid {
		return nil
	}
	rows, err := c.store.WorkerRows(ctx)
	if err != nil {
		return err
	}
	nodes := make(map[string]*table.WorkerNode, len(rows))
	for _, row := range rows {
		role, err := table.ParseNodeRole(row.Role)
		if err != nil {
			return errors.Annotatef(err, "node %d", row.NodeID)
		}
		node := &table.WorkerNode{
			NodeID:  row.NodeID,
			Name:    row.Name,
			Port:    row.Port,
			Role:    role,
			Active:  row.Active,
			GroupID: row.GroupID,
		}
		addr := node.Addr()
		if prev, ok := nodes[addr]; ok {
			c.logger.Warn("duplicate worker address in catalog, keeping the newest row",
				"addr", addr,
				"dropped-node-id", prev.NodeID,
				"kept-node-id", node.NodeID,
			)
		}
		nodes[addr] = node
	}
	c.nodes = nodes
	c.valid = true
	return nil
}

// Invalidate drops the cached node set. The next read rebuilds it from
// the catalog.
func (c *NodeCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = nil
	c.valid = false
}
