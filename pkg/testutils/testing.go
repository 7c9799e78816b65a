// Package testutils contains some common utilities used exclusively
// by the test suite.
package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DSN returns the test server DSN, overridable via MYSQL_DSN.
func DSN() string {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		return "stride:stride@tcp(127.0.0.1:3306)/test"
	}
	return dsn
}

// OpenDB opens a connection pool to the test server and closes it when
// the test finishes.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("mysql", DSN())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// CreateUniqueTestDatabase creates a database with a unique name and
// drops it when the test finishes. It returns the database name.
func CreateUniqueTestDatabase(t *testing.T) string {
	t.Helper()
	dbName := fmt.Sprintf("t_%s", strings.ReplaceAll(uuid.New().String(), "-", ""))
	db := OpenDB(t)
	_, err := db.ExecContext(t.Context(), "CREATE DATABASE "+dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, err := db.ExecContext(context.Background(), "DROP DATABASE IF EXISTS "+dbName)
		assert.NoError(t, err)
	})
	return dbName
}

// RunSQL executes one statement against the test server.
func RunSQL(t *testing.T, stmt string) {
	t.Helper()
	db, err := sql.Open("mysql", DSN())
	assert.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	_, err = db.ExecContext(t.Context(), stmt)
	assert.NoError(t, err)
}
