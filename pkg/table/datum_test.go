package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLTypeToDatumTp(t *testing.T) {
	assert.Equal(t, signedType, mySQLTypeToDatumTp("int"))
	assert.Equal(t, signedType, mySQLTypeToDatumTp("bigint(20)"))
	assert.Equal(t, signedType, mySQLTypeToDatumTp("TINYINT(1)"))
	assert.Equal(t, unsignedType, mySQLTypeToDatumTp("int unsigned"))
	assert.Equal(t, unsignedType, mySQLTypeToDatumTp("bigint(20) unsigned"))
	assert.Equal(t, binaryType, mySQLTypeToDatumTp("varchar(255)"))
	assert.Equal(t, binaryType, mySQLTypeToDatumTp("varbinary(40)"))
	assert.Equal(t, binaryType, mySQLTypeToDatumTp("datetime"))
	assert.Equal(t, unknownType, mySQLTypeToDatumTp("decimal(10,2)"))
	assert.Equal(t, unknownType, mySQLTypeToDatumTp("json"))
}

func TestBoundTypeParseDatum(t *testing.T) {
	bt, err := BoundTypeFor(PartitionRange, "bigint(20)")
	require.NoError(t, err)
	assert.Equal(t, 8, bt.Length)
	assert.True(t, bt.ByValue)

	d, err := bt.ParseDatum("-42")
	require.NoError(t, err)
	assert.Equal(t, int64(-42), d.Val)
	assert.True(t, d.IsNumeric())
	assert.Equal(t, "-42", d.String())

	// Hash bounds are 4-byte signed integers regardless of column type.
	bt, err = BoundTypeFor(PartitionHash, "varchar(20)")
	require.NoError(t, err)
	assert.Equal(t, 4, bt.Length)
	_, err = bt.ParseDatum("2147483648") // out of int32 range
	assert.Error(t, err)
	d, err = bt.ParseDatum("2147483647")
	require.NoError(t, err)
	assert.Equal(t, int64(2147483647), d.Val)

	bt, err = BoundTypeFor(PartitionRange, "int unsigned")
	require.NoError(t, err)
	d, err = bt.ParseDatum("4294967295")
	require.NoError(t, err)
	assert.Equal(t, uint64(4294967295), d.Val)
	_, err = bt.ParseDatum("-1")
	assert.Error(t, err)

	bt, err = BoundTypeFor(PartitionAppend, "varchar(255)")
	require.NoError(t, err)
	assert.Equal(t, -1, bt.Length)
	assert.False(t, bt.ByValue)
	d, err = bt.ParseDatum("2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", d.Val)
	assert.False(t, d.IsNumeric())

	_, err = BoundTypeFor(PartitionMethod('x'), "int")
	assert.Error(t, err)
}

func TestCompareFuncFor(t *testing.T) {
	// Hash tables always compare as integers, even when the column is text.
	bt, err := BoundTypeFor(PartitionHash, "varchar(20)")
	require.NoError(t, err)
	cmp, err := CompareFuncFor(PartitionHash, bt)
	require.NoError(t, err)
	assert.Equal(t, -1, cmp(Datum{Val: int64(-10), Tp: signedType}, Datum{Val: int64(10), Tp: signedType}))

	bt, err = BoundTypeFor(PartitionRange, "bigint unsigned")
	require.NoError(t, err)
	cmp, err = CompareFuncFor(PartitionRange, bt)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp(Datum{Val: uint64(2), Tp: unsignedType}, Datum{Val: uint64(1), Tp: unsignedType}))
	assert.Equal(t, 0, cmp(Datum{Val: uint64(2), Tp: unsignedType}, Datum{Val: uint64(2), Tp: unsignedType}))

	bt, err = BoundTypeFor(PartitionRange, "varchar(100)")
	require.NoError(t, err)
	cmp, err = CompareFuncFor(PartitionRange, bt)
	require.NoError(t, err)
	assert.Equal(t, -1, cmp(Datum{Val: "abc", Tp: binaryType}, Datum{Val: "abd", Tp: binaryType}))

	// No usable ordering for floats.
	bt, err = BoundTypeFor(PartitionRange, "double")
	require.NoError(t, err)
	_, err = CompareFuncFor(PartitionRange, bt)
	assert.Error(t, err)
}

func TestHashFuncFor(t *testing.T) {
	hashFunc, err := HashFuncFor("bigint(20)")
	require.NoError(t, err)

	// Deterministic, and accepts the integer widths the driver produces.
	h1, err := hashFunc(int64(12345))
	require.NoError(t, err)
	h2, err := hashFunc(int(12345))
	require.NoError(t, err)
	h3, err := hashFunc(int32(12345))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, h1, h3)

	hashFunc, err = HashFuncFor("varchar(64)")
	require.NoError(t, err)
	h4, err := hashFunc("hello")
	require.NoError(t, err)
	h5, err := hashFunc([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, h4, h5)

	_, err = HashFuncFor("json")
	assert.Error(t, err)
}

func TestParsePartitionMethod(t *testing.T) {
	m, err := ParsePartitionMethod("h")
	require.NoError(t, err)
	assert.Equal(t, PartitionHash, m)
	assert.Equal(t, "hash", m.String())

	_, err = ParsePartitionMethod("x")
	assert.Error(t, err)
	_, err = ParsePartitionMethod("")
	assert.Error(t, err)
	_, err = ParsePartitionMethod("hh")
	assert.Error(t, err)
}

func TestWorkerNodeAddr(t *testing.T) {
	node := &WorkerNode{NodeID: 1, Name: "w1", Port: 5432}
	assert.Equal(t, "w1:5432", node.Addr())
}
