package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
	"github.com/stridedb/stride/pkg/table"
)

const (
	errNoSuchTable = 1146
	errBadDatabase = 1049
)

//go:embed schema.sql
var schemaDDL string

// SQLStore implements Store over a MySQL connection. All point lookups
// ride the catalog primary and secondary keys declared in schema.sql.
type SQLStore struct {
	db       *sql.DB
	notifier Notifier
	logger   *slog.Logger
}

var _ Store = (*SQLStore)(nil)

// SQLStoreConfig configures a SQLStore.
type SQLStoreConfig struct {
	// Notifier, if set, receives invalidations after catalog writes.
	// Hosts that run the binlog watcher can leave it nil.
	Notifier Notifier
	Logger   *slog.Logger
}

// NewSQLStoreDefaultConfig returns a default config for the store.
func NewSQLStoreDefaultConfig() *SQLStoreConfig {
	return &SQLStoreConfig{
		Logger: slog.Default(),
	}
}

// NewSQLStore creates a catalog store over an existing connection pool.
func NewSQLStore(db *sql.DB, config *SQLStoreConfig) *SQLStore {
	if config == nil {
		config = NewSQLStoreDefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &SQLStore{
		db:       db,
		notifier: config.Notifier,
		logger:   config.Logger,
	}
}

// classify wraps a query error, converting missing-relation errors into
// ErrCatalogMissing so callers can treat them as configuration errors.
func classify(err error, op string) error {
	if val, ok := err.(*mysql.MySQLError); ok {
		switch val.Number {
		case errNoSuchTable, errBadDatabase:
			return errors.Annotatef(ErrCatalogMissing, "%s: %s", op, val.Message)
		}
	}
	return errors.Annotate(err, op)
}

// isMissingRelation reports whether err means a catalog relation does
// not exist at all.
func isMissingRelation(err error) bool {
	if val, ok := err.(*mysql.MySQLError); ok {
		return val.Number == errNoSuchTable || val.Number == errBadDatabase
	}
	return false
}

func (s *SQLStore) PartitionRow(ctx context.Context, tableID int64) (*PartitionRow, error) {
	stmt := fmt.Sprintf(`SELECT table_id, partition_method, partition_key, is_owner, is_cluster
		FROM %s.%s WHERE table_id = ?`, SchemaName, DistPartitionTable)
	var row PartitionRow
	err := s.db.QueryRowContext(ctx, stmt, tableID).Scan(
		&row.TableID, &row.PartitionMethod, &row.PartitionKey, &row.IsOwner, &row.IsCluster)
	if err == sql.ErrNoRows {
		return nil, nil // not distributed
	}
	if err != nil {
		return nil, classify(err, "reading partition descriptor")
	}
	return &row, nil
}

func (s *SQLStore) ShardRows(ctx context.Context, tableID int64) ([]*ShardRow, error) {
	stmt := fmt.Sprintf(`SELECT shard_id, table_id, storage_type, min_value, max_value
		FROM %s.%s WHERE table_id = ?`, SchemaName, DistShardTable)
	rows, err := s.db.QueryContext(ctx, stmt, tableID)
	if err != nil {
		return nil, classify(err, "reading shard descriptors")
	}
	defer rows.Close()
	var shardRows []*ShardRow
	for rows.Next() {
		row, err := scanShardRow(rows)
		if err != nil {
			return nil, classify(err, "decoding shard descriptor")
		}
		shardRows = append(shardRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "reading shard descriptors")
	}
	return shardRows, nil
}

func (s *SQLStore) ShardRow(ctx context.Context, shardID int64) (*ShardRow, error) {
	stmt := fmt.Sprintf(`SELECT shard_id, table_id, storage_type, min_value, max_value
		FROM %s.%s WHERE shard_id = ?`, SchemaName, DistShardTable)
	row, err := scanShardRow(s.db.QueryRowContext(ctx, stmt, shardID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "reading shard descriptor")
	}
	return row, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShardRow(sc rowScanner) (*ShardRow, error) {
	var row ShardRow
	var minValue, maxValue sql.NullString
	if err := sc.Scan(&row.ShardID, &row.TableID, &row.StorageType, &minValue, &maxValue); err != nil {
		return nil, err
	}
	if minValue.Valid {
		row.MinValue = &minValue.String
	}
	if maxValue.Valid {
		row.MaxValue = &maxValue.String
	}
	return &row, nil
}

func (s *SQLStore) WorkerRows(ctx context.Context) ([]*WorkerRow, error) {
	stmt := fmt.Sprintf(`SELECT node_id, node_name, node_port, node_role, node_active, group_id
		FROM %s.%s`, SchemaName, DistNodeTable)
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, classify(err, "reading worker descriptors")
	}
	defer rows.Close()
	var workerRows []*WorkerRow
	for rows.Next() {
		var row WorkerRow
		if err := rows.Scan(&row.NodeID, &row.Name, &row.Port, &row.Role, &row.Active, &row.GroupID); err != nil {
			return nil, classify(err, "decoding worker descriptor")
		}
		workerRows = append(workerRows, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "reading worker descriptors")
	}
	return workerRows, nil
}

// RelationID resolves a catalog relation name to its InnoDB table id,
// the stable identifier used to key invalidations.
func (s *SQLStore) RelationID(ctx context.Context, relationName string) (int64, error) {
	var relationID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT TABLE_ID FROM information_schema.INNODB_TABLES WHERE NAME = ?",
		SchemaName+"/"+relationName).Scan(&relationID)
	if err == sql.ErrNoRows {
		return 0, errors.Annotatef(ErrCatalogMissing, "cache lookup failed for %s, called too early?", relationName)
	}
	if err != nil {
		return 0, classify(err, "resolving relation id")
	}
	return relationID, nil
}

// KeyColumnType resolves the MySQL column type of tableID's partition
// column by mapping the table id back to its schema-qualified name.
func (s *SQLStore) KeyColumnType(ctx context.Context, tableID int64, column string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT NAME FROM information_schema.INNODB_TABLES WHERE TABLE_ID = ?",
		tableID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no relation with table id %d", tableID)
	}
	if err != nil {
		return "", classify(err, "resolving relation name")
	}
	schemaName, tableName, ok := strings.Cut(name, "/")
	if !ok {
		return "", fmt.Errorf("unexpected relation name %q for table id %d", name, tableID)
	}
	var columnType string
	err = s.db.QueryRowContext(ctx,
		`SELECT COLUMN_TYPE FROM information_schema.COLUMNS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
		schemaName, tableName, column).Scan(&columnType)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("partition column %q does not exist on %s.%s", column, schemaName, tableName)
	}
	if err != nil {
		return "", classify(err, "resolving partition column type")
	}
	return columnType, nil
}

func (s *SQLStore) SchemaPresent(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.TABLES
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME IN (?, ?, ?)`,
		SchemaName, DistPartitionTable, DistShardTable, DistNodeTable).Scan(&count)
	if err != nil {
		return false, classify(err, "checking catalog presence")
	}
	return count == 3, nil
}

func (s *SQLStore) VersionRow(ctx context.Context) (*VersionRow, error) {
	stmt := fmt.Sprintf("SELECT version, owner_user FROM %s.%s", SchemaName, DistVersionTable)
	var row VersionRow
	err := s.db.QueryRowContext(ctx, stmt).Scan(&row.Version, &row.Owner)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		// A missing dist_version relation means the metadata layer is
		// still mid-creation, which is the same answer as an empty one.
		if isMissingRelation(err) {
			return nil, nil
		}
		return nil, classify(err, "reading version row")
	}
	return &row, nil
}

// HasSuperPrivilege reports whether user holds SUPER. Requires read
// access to mysql.user, which the metadata owner has by definition.
func (s *SQLStore) HasSuperPrivilege(ctx context.Context, user string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM mysql.user WHERE user = ? AND super_priv = 'Y'",
		user).Scan(&count)
	if err != nil {
		return false, classify(err, "checking owner privilege")
	}
	return count > 0, nil
}

// InsertNode adds a worker row and triggers node cache invalidation.
func (s *SQLStore) InsertNode(ctx context.Context, node *table.WorkerNode) error {
	stmt := fmt.Sprintf(`INSERT INTO %s.%s (node_id, node_name, node_port, node_role, node_active, group_id)
		VALUES (?, ?, ?, ?, ?, ?)`, SchemaName, DistNodeTable)
	_, err := s.db.ExecContext(ctx, stmt,
		node.NodeID, node.Name, node.Port, string(rune(node.Role)), node.Active, node.GroupID)
	if err != nil {
		return classify(err, "inserting worker node")
	}
	if s.notifier != nil {
		s.notifier.InvalidateNodes()
	}
	return nil
}

// UpdateNodeActive flips a worker's active flag and triggers node cache
// invalidation, so that subsequent reads see the updated value.
func (s *SQLStore) UpdateNodeActive(ctx context.Context, nodeID int64, active bool) error {
	stmt := fmt.Sprintf("UPDATE %s.%s SET node_active = ? WHERE node_id = ?", SchemaName, DistNodeTable)
	res, err := s.db.ExecContext(ctx, stmt, active, nodeID)
	if err != nil {
		return classify(err, "updating worker node")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Annotate(err, "updating worker node")
	}
	if affected == 0 {
		// The row may exist with node_active already equal to active;
		// MySQL reports 0 affected rows for no-op updates too.
		var count int
		checkStmt := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s WHERE node_id = ?", SchemaName, DistNodeTable)
		if err := s.db.QueryRowContext(ctx, checkStmt, nodeID).Scan(&count); err != nil {
			return classify(err, "updating worker node")
		}
		if count == 0 {
			return errors.Annotatef(ErrNodeNotFound, "node %d", nodeID)
		}
	}
	if s.notifier != nil {
		s.notifier.InvalidateNodes()
	}
	return nil
}

// CreateSchema creates the catalog database and relations. The version
// row is written separately (see WriteVersionRow); until it exists the
// metadata layer reports as not loaded.
func (s *SQLStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+SchemaName); err != nil {
		return classify(err, "creating catalog schema")
	}
	for _, stmt := range strings.Split(schemaDDL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify(err, "creating catalog relation")
		}
	}
	return nil
}

// WriteVersionRow marks the metadata layer as fully initialized.
func (s *SQLStore) WriteVersionRow(ctx context.Context, version, owner string) error {
	stmt := fmt.Sprintf("INSERT INTO %s.%s (version, owner_user) VALUES (?, ?)", SchemaName, DistVersionTable)
	if _, err := s.db.ExecContext(ctx, stmt, version, owner); err != nil {
		return classify(err, "writing version row")
	}
	return nil
}

// DropSchema removes the catalog database entirely.
func (s *SQLStore) DropSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+SchemaName); err != nil {
		return classify(err, "dropping catalog schema")
	}
	if s.notifier != nil {
		s.notifier.InvalidateAll()
	}
	return nil
}
