// Package watch follows the MySQL binary log and turns catalog changes
// into cache invalidations. It is the push half of the metadata cache:
// writes to the stride_metadata relations, whoever makes them, reach
// every process that runs a watcher.
package watch

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/stridedb/stride/pkg/catalog"
	"golang.org/x/sync/errgroup"
)

// Sink receives the invalidations the watcher derives from the binlog.
// cache.Registry implements it.
type Sink interface {
	InvalidateTable(tableID int64)
	InvalidateNodes()
	InvalidateAll()
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	ServerID uint32
	Logger   *slog.Logger
}

// NewServerID randomizes the server ID to avoid conflicts with other
// binlog readers on the same source.
func NewServerID() uint32 {
	return uint32(rand.New(rand.NewSource(time.Now().Unix())).Intn(1000)) + 1001
}

// NewWatcherDefaultConfig returns a default config for the watcher.
func NewWatcherDefaultConfig() *WatcherConfig {
	return &WatcherConfig{
		ServerID: NewServerID(),
		Logger:   slog.Default(),
	}
}

// Watcher streams the binary log and dispatches invalidations to a
// Sink. It requires row-based replication on the source; the catalog
// writes it cares about are tiny, so the stream stays cheap to follow.
type Watcher struct {
	host     string
	username string
	password string

	cfg      replication.BinlogSyncerConfig
	syncer   *replication.BinlogSyncer
	streamer *replication.BinlogStreamer

	// The DB connection is used for queries like SHOW MASTER STATUS.
	db *sql.DB

	sink      Sink
	serverID  uint32
	isMySQL84 bool

	cancelFunc func()
	errGroup   *errgroup.Group
	started    atomic.Bool
	logger     *slog.Logger
}

// NewWatcher creates a watcher over host's binary log. The db handle
// must point at the same server.
func NewWatcher(db *sql.DB, host, username, password string, sink Sink, config *WatcherConfig) *Watcher {
	if config == nil {
		config = NewWatcherDefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ServerID == 0 {
		config.ServerID = NewServerID()
	}
	return &Watcher{
		db:       db,
		host:     host,
		username: username,
		password: password,
		sink:     sink,
		serverID: config.ServerID,
		logger:   config.Logger,
	}
}

// Start begins streaming from the current binlog position. At most one
// stream is ever installed per watcher: a second call on a running
// watcher is an error, never a second stream. A failed install
// releases the guard so the caller can retry.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watcher already started")
	}
	if err := w.start(ctx); err != nil {
		w.started.Store(false)
		return err
	}
	return nil
}

func (w *Watcher) start(ctx context.Context) error {
	host, portStr, err := net.SplitHostPort(w.host)
	if err != nil {
		return fmt.Errorf("failed to parse host: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return fmt.Errorf("failed to parse port: %w", err)
	}
	w.isMySQL84 = isMySQL84(w.db)
	pos, err := w.currentBinlogPosition(ctx)
	if err != nil {
		return errors.Annotate(err, "failed to get binlog position, check binary logging is enabled")
	}
	w.cfg = replication.BinlogSyncerConfig{
		ServerID: w.serverID,
		Flavor:   "mysql",
		Host:     host,
		Port:     uint16(port),
		User:     w.username,
		Password: w.password,
		Logger:   w.logger,
	}
	w.syncer = replication.NewBinlogSyncer(w.cfg)
	w.streamer, err = w.syncer.StartSync(pos)
	if err != nil {
		w.syncer.Close()
		w.syncer = nil
		return fmt.Errorf("failed to start binlog streamer: %w", err)
	}
	ctx, w.cancelFunc = context.WithCancel(ctx)
	w.errGroup, ctx = errgroup.WithContext(ctx)
	w.errGroup.Go(func() error {
		return w.readStream(ctx)
	})
	w.logger.Info("watching binary log for catalog changes",
		"position", pos,
		"server-id", w.serverID,
	)
	return nil
}

// Close stops the stream and waits for the reader goroutine to exit.
func (w *Watcher) Close() error {
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.syncer != nil {
		w.syncer.Close()
	}
	if w.errGroup != nil {
		return w.errGroup.Wait()
	}
	return nil
}

func isMySQL84(db *sql.DB) bool {
	var version string
	if err := db.QueryRow("select substr(version(), 1, 3)").Scan(&version); err != nil {
		return false // can't tell
	}
	return version == "8.4"
}

func (w *Watcher) currentBinlogPosition(ctx context.Context) (mysql.Position, error) {
	var binlogFile, fake string
	var binlogPos uint32
	binlogPosStmt := "SHOW MASTER STATUS"
	if w.isMySQL84 {
		binlogPosStmt = "SHOW BINARY LOG STATUS"
	}
	err := w.db.QueryRowContext(ctx, binlogPosStmt).Scan(&binlogFile, &binlogPos, &fake, &fake, &fake)
	if err != nil {
		return mysql.Position{}, err
	}
	return mysql.Position{
		Name: binlogFile,
		Pos:  binlogPos,
	}, nil
}

func (w *Watcher) readStream(ctx context.Context) error {
	for {
		ev, err := w.streamer.GetEvent(ctx)
		if err != nil {
			if stderrors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return errors.Annotate(err, "reading binlog stream")
		}
		switch event := ev.Event.(type) {
		case *replication.RotateEvent:
			w.logger.Debug("binlog rotated to", "log_name", string(event.NextLogName))
		case *replication.RowsEvent:
			w.handleRows(event)
		case *replication.QueryEvent:
			w.handleQuery(string(event.Schema), string(event.Query))
		}
	}
}

// handleRows routes DML on the catalog relations. Writes anywhere else
// are ignored; this watcher only follows metadata.
func (w *Watcher) handleRows(e *replication.RowsEvent) {
	if string(e.Table.Schema) != catalog.SchemaName {
		return
	}
	switch string(e.Table.Table) {
	case catalog.DistNodeTable:
		w.sink.InvalidateNodes()
	case catalog.DistPartitionTable:
		// table_id is the first column.
		w.invalidateRowTables(e, 0)
	case catalog.DistShardTable:
		// table_id is the second column, after shard_id.
		w.invalidateRowTables(e, 1)
	case catalog.DistVersionTable:
		// The version row appearing (or changing) can flip the loaded
		// state of every cache.
		w.sink.InvalidateAll()
	}
}

// invalidateRowTables invalidates the table id found at column col of
// each row image. Update events carry before and after images, and both
// matter: an update that moves a shard between tables must invalidate
// the old owner as well as the new one.
func (w *Watcher) invalidateRowTables(e *replication.RowsEvent, col int) {
	seen := make(map[int64]struct{}, 2)
	for _, row := range e.Rows {
		tableID, ok := toTableID(row, col)
		if !ok {
			w.logger.Warn("catalog row image without a readable table id, flushing everything",
				"table", string(e.Table.Table),
			)
			w.sink.InvalidateAll()
			return
		}
		if _, dup := seen[tableID]; dup {
			continue
		}
		seen[tableID] = struct{}{}
		w.sink.InvalidateTable(tableID)
	}
}

func toTableID(row []any, col int) (int64, bool) {
	if col >= len(row) {
		return 0, false
	}
	switch v := row[col].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case uint64:
		return int64(v), true
	case uint32:
		return int64(v), true
	}
	return 0, false
}

// handleQuery routes DDL. Any schema change to a catalog relation, or
// to the catalog database itself, flushes everything: relation ids and
// even the layer's presence may have changed.
func (w *Watcher) handleQuery(defaultSchema, query string) {
	relations, err := catalogRelationsInDDL(defaultSchema, query)
	if err != nil {
		// The parser does not understand all syntax, e.g.
		// [CREATE|DROP] TRIGGER. We can't log the statement because it
		// could contain user data, so fall back to a substring check
		// and over-invalidate when in doubt.
		if strings.Contains(strings.ToLower(query), catalog.SchemaName) {
			w.logger.Warn("unparseable statement touches the metadata schema, flushing everything")
			w.sink.InvalidateAll()
		}
		return
	}
	for _, relation := range relations {
		switch relation {
		case catalog.DistNodeTable:
			w.sink.InvalidateNodes()
		default:
			w.sink.InvalidateAll()
			return
		}
	}
}

// catalogRelationsInDDL returns the catalog relations a DDL statement
// touches. Statements against the whole catalog database report the
// database name itself.
func catalogRelationsInDDL(defaultSchema, query string) ([]string, error) {
	p := parser.New()
	stmts, _, err := p.Parse(query, "", "")
	if err != nil {
		return nil, err
	}
	var relations []string
	add := func(tn *ast.TableName) {
		schema := tn.Schema.L
		if schema == "" {
			schema = defaultSchema
		}
		if schema == catalog.SchemaName {
			relations = append(relations, tn.Name.L)
		}
	}
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.CreateTableStmt:
			add(s.Table)
		case *ast.DropTableStmt:
			for _, tn := range s.Tables {
				add(tn)
			}
		case *ast.AlterTableStmt:
			add(s.Table)
		case *ast.TruncateTableStmt:
			add(s.Table)
		case *ast.RenameTableStmt:
			for _, tt := range s.TableToTables {
				add(tt.OldTable)
				add(tt.NewTable)
			}
		case *ast.CreateDatabaseStmt:
			if s.Name.L == catalog.SchemaName {
				relations = append(relations, catalog.SchemaName)
			}
		case *ast.DropDatabaseStmt:
			if s.Name.L == catalog.SchemaName {
				relations = append(relations, catalog.SchemaName)
			}
		}
	}
	return relations, nil
}
