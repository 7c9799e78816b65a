// Package table contains the typed metadata for distributed tables:
// partition methods, shard intervals, and the datum values that bound them.
package table

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

type datumTp int

const (
	unknownType datumTp = iota
	signedType
	unsignedType
	binaryType
)

// Datum is a typed shard bound value: an int64, uint64 or string.
// The catalog stores bounds as text; a Datum is the decoded form.
type Datum struct {
	Val any
	Tp  datumTp
}

// CompareFunc orders two datums of the same type.
// It returns -1, 0 or 1 like strings.Compare.
type CompareFunc func(a, b Datum) int

// HashFunc computes the hash-distribution value for a partition column
// value. The result is in the int32 hash token space.
type HashFunc func(value any) (int32, error)

func mySQLTypeToDatumTp(mysqlTp string) datumTp {
	normalized := strings.ToUpper(mysqlTp)

	// Extract base type (remove size specifications like (255))
	baseType := normalized
	if idx := strings.Index(normalized, "("); idx != -1 {
		baseType = normalized[:idx]
	}
	// Re-attach the UNSIGNED attribute if present.
	if strings.Contains(normalized, "UNSIGNED") && !strings.Contains(baseType, "UNSIGNED") {
		baseType += " UNSIGNED"
	}

	switch baseType {
	case "INT", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT":
		return signedType
	case "INT UNSIGNED", "BIGINT UNSIGNED", "SMALLINT UNSIGNED", "TINYINT UNSIGNED", "MEDIUMINT UNSIGNED":
		return unsignedType
	case "VARBINARY", "BLOB", "BINARY", "LONGBLOB", "MEDIUMBLOB", "TINYBLOB":
		return binaryType
	case "VARCHAR", "CHAR", "TEXT", "LONGTEXT", "MEDIUMTEXT", "TINYTEXT":
		// Bounds are stored as text, so byte order is the bound order.
		return binaryType
	case "DATETIME", "TIMESTAMP", "DATE", "TIME":
		// ISO-8601 text sorts correctly bytewise.
		return binaryType
	}
	// FLOAT, DOUBLE, DECIMAL, JSON etc. have no usable bound ordering.
	return unknownType
}

func datumTypeLength(tp datumTp, mysqlTp string) int {
	if tp != signedType && tp != unsignedType {
		return -1 // variable size
	}
	baseType := strings.ToUpper(mysqlTp)
	if idx := strings.Index(baseType, "("); idx != -1 {
		baseType = baseType[:idx]
	}
	baseType = strings.TrimSuffix(baseType, " UNSIGNED")
	switch baseType {
	case "TINYINT":
		return 1
	case "SMALLINT":
		return 2
	case "MEDIUMINT":
		return 3
	case "INT":
		return 4
	}
	return 8 // BIGINT
}

// String returns the datum in the catalog's text encoding.
func (d Datum) String() string {
	if d.Val == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", d.Val)
}

// IsNumeric checks if it's signed or unsigned.
func (d Datum) IsNumeric() bool {
	return d.Tp == signedType || d.Tp == unsignedType
}

func compareSigned(a, b Datum) int {
	av, bv := a.Val.(int64), b.Val.(int64)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	}
	return 0
}

func compareUnsigned(a, b Datum) int {
	av, bv := a.Val.(uint64), b.Val.(uint64)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	}
	return 0
}

func compareBinary(a, b Datum) int {
	return strings.Compare(a.Val.(string), b.Val.(string))
}

// CompareFuncFor returns the bound comparison function for the partition
// method. Hash-partitioned tables always compare as integers; append and
// range tables compare using the partition column's own ordering. It
// errors when the column type has no usable ordering.
func CompareFuncFor(method PartitionMethod, boundType BoundType) (CompareFunc, error) {
	if method == PartitionHash {
		return compareSigned, nil
	}
	switch boundType.tp {
	case signedType:
		return compareSigned, nil
	case unsignedType:
		return compareUnsigned, nil
	case binaryType:
		return compareBinary, nil
	default:
		return nil, fmt.Errorf("no ordering function for partition column type %q", boundType.MySQLType)
	}
}

// HashFuncFor returns the hash function for a hash-distributed table's
// partition column type.
func HashFuncFor(columnType string) (HashFunc, error) {
	switch mySQLTypeToDatumTp(columnType) {
	case signedType:
		return hashSigned, nil
	case unsignedType:
		return hashUnsigned, nil
	case binaryType:
		return hashBinary, nil
	default:
		return nil, fmt.Errorf("no hash function for partition column type %q", columnType)
	}
}

func hashSigned(value any) (int32, error) {
	v, err := toInt64(value)
	if err != nil {
		return 0, err
	}
	return hashUint64(uint64(v)), nil
}

func hashUnsigned(value any) (int32, error) {
	switch v := value.(type) {
	case uint64:
		return hashUint64(v), nil
	case uint:
		return hashUint64(uint64(v)), nil
	case uint32:
		return hashUint64(uint64(v)), nil
	}
	v, err := toInt64(value)
	if err != nil {
		return 0, err
	}
	return hashUint64(uint64(v)), nil
}

func hashBinary(value any) (int32, error) {
	var b []byte
	switch v := value.(type) {
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		b = []byte(fmt.Sprint(v))
	}
	h := fnv.New32a()
	_, _ = h.Write(b)
	return int32(h.Sum32()), nil
}

func hashUint64(v uint64) int32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h := fnv.New32a()
	_, _ = h.Write(buf[:])
	return int32(h.Sum32())
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("cannot hash %T as an integer", value)
	}
}
