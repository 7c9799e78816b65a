// Package inspect implements the stride CLI commands: inspecting the
// metadata cache's view of a cluster, bootstrapping the catalog, and
// managing worker nodes.
package inspect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/stridedb/stride/pkg/cache"
	"github.com/stridedb/stride/pkg/catalog"
	"github.com/stridedb/stride/pkg/table"
	"github.com/stridedb/stride/pkg/watch"
)

// StatusCmd reports whether the metadata layer is loaded, and by whom.
type StatusCmd struct {
	ConnectionParams
}

func (c *StatusCmd) Run() error {
	ctx := context.TODO()
	db, err := c.connect()
	if err != nil {
		return err
	}
	defer db.Close()
	store := catalog.NewSQLStore(db, nil)
	tables := cache.NewMetadataCache(store, slog.Default())

	loaded, err := tables.HasBeenLoaded(ctx)
	if err != nil {
		return err
	}
	if !loaded {
		fmt.Println("metadata layer: not loaded")
		return nil
	}
	version, err := tables.Version(ctx)
	if err != nil {
		return err
	}
	owner, err := tables.Owner(ctx)
	if err != nil {
		return err
	}
	fmt.Println("metadata layer: loaded")
	fmt.Printf("version: %s\n", version)
	fmt.Printf("owner: %s\n", owner)
	return nil
}

// NodesCmd lists the worker nodes.
type NodesCmd struct {
	ConnectionParams
	ActiveOnly bool `name:"active-only" help:"Only list active primary nodes" optional:"" default:"false"`
}

func (c *NodesCmd) Run() error {
	ctx := context.TODO()
	db, err := c.connect()
	if err != nil {
		return err
	}
	defer db.Close()
	store := catalog.NewSQLStore(db, nil)
	nodes := cache.NewNodeCache(store, slog.Default())

	var list []*table.WorkerNode
	if c.ActiveOnly {
		list, err = nodes.ActivePrimaryNodes(ctx)
		if err != nil {
			return err
		}
	} else {
		all, err := nodes.WorkerNodes(ctx)
		if err != nil {
			return err
		}
		for _, node := range all {
			list = append(list, node)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].NodeID < list[j].NodeID })
	for _, node := range list {
		fmt.Printf("node %d: %s role=%s active=%v group=%d\n",
			node.NodeID, node.Addr(), node.Role, node.Active, node.GroupID)
	}
	return nil
}

// TableCmd shows the cached metadata for one distributed table.
type TableCmd struct {
	ConnectionParams
	TableID int64 `arg:"" help:"InnoDB table id of the distributed table"`
}

func (c *TableCmd) Run() error {
	ctx := context.TODO()
	db, err := c.connect()
	if err != nil {
		return err
	}
	defer db.Close()
	store := catalog.NewSQLStore(db, nil)
	tables := cache.NewMetadataCache(store, slog.Default())

	entry, err := tables.TableEntry(ctx, c.TableID)
	if err != nil {
		return err
	}
	fmt.Printf("table %d: method=%s key=%s owner=%v cluster=%v\n",
		entry.TableID, entry.PartitionMethod, entry.KeyColumn, entry.IsOwner, entry.IsCluster)
	fmt.Printf("shards: %d (uninitialized=%v uniform-hash=%v)\n",
		len(entry.ShardIntervals), entry.HasUninitializedShard, entry.HasUniformHashDistribution)
	for _, interval := range entry.ShardIntervals {
		if !interval.Initialized() {
			fmt.Printf("  shard %d: unassigned\n", interval.ShardID)
			continue
		}
		fmt.Printf("  shard %d: [%s, %s]\n",
			interval.ShardID, interval.MinValue.String(), interval.MaxValue.String())
	}
	return nil
}

// ShardCmd shows one shard interval by id.
type ShardCmd struct {
	ConnectionParams
	ShardID int64 `arg:"" help:"Shard id"`
}

func (c *ShardCmd) Run() error {
	ctx := context.TODO()
	db, err := c.connect()
	if err != nil {
		return err
	}
	defer db.Close()
	store := catalog.NewSQLStore(db, nil)
	tables := cache.NewMetadataCache(store, slog.Default())

	interval, err := tables.LoadShardInterval(ctx, c.ShardID)
	if err != nil {
		return err
	}
	if !interval.Initialized() {
		fmt.Printf("shard %d: table=%d unassigned\n", interval.ShardID, interval.TableID)
		return nil
	}
	fmt.Printf("shard %d: table=%d range=[%s, %s]\n",
		interval.ShardID, interval.TableID,
		interval.MinValue.String(), interval.MaxValue.String())
	return nil
}

// CreateCmd bootstraps the metadata catalog. The version row is written
// last: until it exists, caches on other processes keep reporting the
// layer as not loaded.
type CreateCmd struct {
	ConnectionParams
	Version string `name:"metadata-version" help:"Version string to record" optional:"" default:"1.0"`
	Owner   string `name:"owner" help:"Owner to record, defaults to the connecting user" optional:""`
}

func (c *CreateCmd) Run() error {
	ctx := context.TODO()
	db, err := c.connect()
	if err != nil {
		return err
	}
	defer db.Close()
	store := catalog.NewSQLStore(db, nil)
	if err := store.CreateSchema(ctx); err != nil {
		return err
	}
	owner := c.Owner
	if owner == "" {
		owner = c.Username
	}
	if err := store.WriteVersionRow(ctx, c.Version, owner); err != nil {
		return err
	}
	fmt.Printf("metadata catalog created (version=%s owner=%s)\n", c.Version, owner)
	return nil
}

// AddNodeCmd registers a worker node.
type AddNodeCmd struct {
	ConnectionParams
	NodeID   int64  `arg:"" help:"Node id"`
	NodeName string `name:"node-name" help:"Worker hostname" required:""`
	NodePort int    `name:"node-port" help:"Worker port" optional:"" default:"3306"`
	Role     string `name:"role" help:"Node role: p (primary) or s (secondary)" optional:"" default:"p"`
	GroupID  int64  `name:"group-id" help:"Replica group id" optional:"" default:"0"`
}

func (c *AddNodeCmd) Run() error {
	ctx := context.TODO()
	db, err := c.connect()
	if err != nil {
		return err
	}
	defer db.Close()
	role, err := table.ParseNodeRole(c.Role)
	if err != nil {
		return err
	}
	store := catalog.NewSQLStore(db, nil)
	node := &table.WorkerNode{
		NodeID:  c.NodeID,
		Name:    c.NodeName,
		Port:    c.NodePort,
		Role:    role,
		Active:  true,
		GroupID: c.GroupID,
	}
	if err := store.InsertNode(ctx, node); err != nil {
		return err
	}
	fmt.Printf("node %d added at %s\n", node.NodeID, node.Addr())
	return nil
}

// SetNodeActiveCmd flips a worker node's active flag.
type SetNodeActiveCmd struct {
	ConnectionParams
	NodeID int64 `arg:"" help:"Node id"`
	Active bool  `name:"active" help:"Whether the node should be active" optional:"" default:"true" negatable:""`
}

func (c *SetNodeActiveCmd) Run() error {
	ctx := context.TODO()
	db, err := c.connect()
	if err != nil {
		return err
	}
	defer db.Close()
	store := catalog.NewSQLStore(db, nil)
	if err := store.UpdateNodeActive(ctx, c.NodeID, c.Active); err != nil {
		return err
	}
	fmt.Printf("node %d active=%v\n", c.NodeID, c.Active)
	return nil
}

// WatchCmd follows the binary log and logs every invalidation the
// catalog changes would push into a cache. It runs until interrupted.
type WatchCmd struct {
	ConnectionParams
}

func (c *WatchCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := c.connect()
	if err != nil {
		return err
	}
	defer db.Close()
	sink := &loggingSink{logger: slog.Default()}
	watcher := watch.NewWatcher(db, c.Host, c.Username, c.Password, sink, nil)
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return watcher.Close()
}

// loggingSink logs invalidations instead of applying them to a cache.
type loggingSink struct {
	logger *slog.Logger
}

func (s *loggingSink) InvalidateTable(tableID int64) {
	s.logger.Info("invalidate table", "table", tableID)
}

func (s *loggingSink) InvalidateNodes() {
	s.logger.Info("invalidate nodes")
}

func (s *loggingSink) InvalidateAll() {
	s.logger.Info("invalidate all")
}
