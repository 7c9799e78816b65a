package cache

import (
	"context"
	"sync"

	"github.com/stridedb/stride/pkg/catalog"
)

// fakeStore is an in-memory catalog.Store. Tests mutate it directly and
// then send the invalidation a real deployment would get from the
// binlog watcher or the catalog writer.
type fakeStore struct {
	mu sync.Mutex

	schemaPresent bool
	version       *catalog.VersionRow
	partitions    map[int64]*catalog.PartitionRow
	shards        map[int64]*catalog.ShardRow
	workers       []*catalog.WorkerRow
	relationIDs   map[string]int64
	columnTypes   map[int64]string
	superUsers    map[string]bool

	partitionCalls  int
	relationIDCalls int
	workerCalls     int
}

var _ catalog.Store = (*fakeStore)(nil)

// newFakeStore returns a store modeling a fully created metadata layer
// with no distributed tables yet.
func newFakeStore() *fakeStore {
	return &fakeStore{
		schemaPresent: true,
		version:       &catalog.VersionRow{Version: "1.0", Owner: "stride"},
		partitions:    make(map[int64]*catalog.PartitionRow),
		shards:        make(map[int64]*catalog.ShardRow),
		columnTypes:   make(map[int64]string),
		superUsers:    map[string]bool{"stride": true},
		relationIDs: map[string]int64{
			catalog.DistPartitionTable: 9001,
			catalog.DistShardTable:     9002,
			catalog.DistNodeTable:      9003,
		},
	}
}

func (f *fakeStore) PartitionRow(_ context.Context, tableID int64) (*catalog.PartitionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partitionCalls++
	return f.partitions[tableID], nil
}

func (f *fakeStore) ShardRows(_ context.Context, tableID int64) ([]*catalog.ShardRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []*catalog.ShardRow
	for _, row := range f.shards {
		if row.TableID == tableID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeStore) ShardRow(_ context.Context, shardID int64) (*catalog.ShardRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shards[shardID], nil
}

func (f *fakeStore) WorkerRows(_ context.Context) ([]*catalog.WorkerRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workerCalls++
	return append([]*catalog.WorkerRow(nil), f.workers...), nil
}

func (f *fakeStore) RelationID(_ context.Context, relationName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relationIDCalls++
	id, ok := f.relationIDs[relationName]
	if !ok {
		return 0, catalog.ErrCatalogMissing
	}
	return id, nil
}

func (f *fakeStore) KeyColumnType(_ context.Context, tableID int64, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.columnTypes[tableID], nil
}

func (f *fakeStore) SchemaPresent(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schemaPresent, nil
}

func (f *fakeStore) VersionRow(_ context.Context) (*catalog.VersionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version, nil
}

func (f *fakeStore) HasSuperPrivilege(_ context.Context, user string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.superUsers[user], nil
}

// addTable registers a distributed table descriptor.
func (f *fakeStore) addTable(tableID int64, method, keyExpr, columnType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partitions[tableID] = &catalog.PartitionRow{
		TableID:         tableID,
		PartitionMethod: method,
		PartitionKey:    keyExpr,
		IsOwner:         true,
	}
	f.columnTypes[tableID] = columnType
}

// addShard registers a shard row. Nil bounds model unassigned ranges.
func (f *fakeStore) addShard(shardID, tableID int64, minValue, maxValue *string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shards[shardID] = &catalog.ShardRow{
		ShardID:     shardID,
		TableID:     tableID,
		StorageType: "t",
		MinValue:    minValue,
		MaxValue:    maxValue,
	}
}

func (f *fakeStore) addWorker(nodeID int64, name string, port int, role string, active bool, groupID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workers = append(f.workers, &catalog.WorkerRow{
		NodeID:  nodeID,
		Name:    name,
		Port:    port,
		Role:    role,
		Active:  active,
		GroupID: groupID,
	})
}

func (f *fakeStore) setWorkerActive(nodeID int64, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.workers {
		if w.NodeID == nodeID {
			w.Active = active
		}
	}
}

func (f *fakeStore) calls() (partition, relationID, worker int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.partitionCalls, f.relationIDCalls, f.workerCalls
}
