package table

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// hashTokenCount is the size of the int32 hash token space that
// hash-distributed shards partition between them.
const hashTokenCount = uint64(1) << 32

// BoundType describes how a shard's min/max bounds are decoded from the
// catalog's text encoding.
type BoundType struct {
	// MySQLType is the column type the bounds are decoded as,
	// e.g. "bigint unsigned" or "varchar(255)".
	MySQLType string
	// Length is the value size in bytes for fixed-size types, -1 otherwise.
	Length int
	// ByValue is true for fixed-size value types, which need no separate
	// release when an entry is torn down.
	ByValue bool

	tp datumTp
}

// BoundTypeFor resolves the bound decoding for a partition method and key
// column type. Hash-partitioned tables always store 4-byte signed integer
// hash tokens; append and range tables store values of the partition
// column's own type.
func BoundTypeFor(method PartitionMethod, keyColumnType string) (BoundType, error) {
	switch method {
	case PartitionAppend, PartitionRange:
		tp := mySQLTypeToDatumTp(keyColumnType)
		return BoundType{
			MySQLType: keyColumnType,
			Length:    datumTypeLength(tp, keyColumnType),
			ByValue:   tp == signedType || tp == unsignedType,
			tp:        tp,
		}, nil
	case PartitionHash:
		return BoundType{
			MySQLType: "int",
			Length:    4,
			ByValue:   true,
			tp:        signedType,
		}, nil
	default:
		return BoundType{}, fmt.Errorf("unsupported table partition type: %q", method.String())
	}
}

// ParseDatum decodes one bound from its catalog text encoding.
func (b BoundType) ParseDatum(val string) (Datum, error) {
	switch b.tp {
	case signedType:
		bits := 64
		if b.Length > 0 && b.Length <= 4 {
			bits = b.Length * 8
		}
		i, err := strconv.ParseInt(val, 10, bits)
		if err != nil {
			return Datum{}, fmt.Errorf("invalid %s bound %q: %w", b.MySQLType, val, err)
		}
		return Datum{Val: i, Tp: signedType}, nil
	case unsignedType:
		bits := 64
		if b.Length > 0 && b.Length <= 4 {
			bits = b.Length * 8
		}
		u, err := strconv.ParseUint(val, 10, bits)
		if err != nil {
			return Datum{}, fmt.Errorf("invalid %s bound %q: %w", b.MySQLType, val, err)
		}
		return Datum{Val: u, Tp: unsignedType}, nil
	default:
		return Datum{Val: val, Tp: b.tp}, nil
	}
}

// ShardInterval is one horizontal partition of a distributed table,
// with an optional value range.
type ShardInterval struct {
	TableID   int64
	ShardID   int64
	Storage   StorageType
	ValueType BoundType

	MinValue       Datum
	MaxValue       Datum
	MinValueExists bool
	MaxValueExists bool
}

// Initialized reports whether the shard has been assigned a value range.
func (s *ShardInterval) Initialized() bool {
	return s.MinValueExists && s.MaxValueExists
}

// NewShardInterval builds a typed shard interval from the catalog's raw,
// text-encoded bounds. A row where only one bound is set is observable
// during a shard's creation sequence; it is normalized to both-absent
// rather than stored as partially bounded. The returned bool reports
// whether that normalization happened, so the caller can log it.
func NewShardInterval(tableID, shardID int64, storage StorageType, minText, maxText *string, boundType BoundType) (*ShardInterval, bool, error) {
	interval := &ShardInterval{
		TableID:   tableID,
		ShardID:   shardID,
		Storage:   storage,
		ValueType: boundType,
	}
	if minText == nil || maxText == nil {
		normalized := minText != nil || maxText != nil
		return interval, normalized, nil
	}
	minValue, err := boundType.ParseDatum(*minText)
	if err != nil {
		return nil, false, fmt.Errorf("shard %d: %w", shardID, err)
	}
	maxValue, err := boundType.ParseDatum(*maxText)
	if err != nil {
		return nil, false, fmt.Errorf("shard %d: %w", shardID, err)
	}
	interval.MinValue = minValue
	interval.MaxValue = maxValue
	interval.MinValueExists = true
	interval.MaxValueExists = true
	return interval, false, nil
}

// CompareShardIntervals orders intervals by MinValue under cmp. Intervals
// with an absent bound sort after every bound-bearing interval, in
// arbitrary relative order among themselves.
func CompareShardIntervals(a, b *ShardInterval, cmp CompareFunc) int {
	switch {
	case a.Initialized() && !b.Initialized():
		return -1
	case !a.Initialized() && b.Initialized():
		return 1
	case !a.Initialized() && !b.Initialized():
		return 0
	}
	return cmp(a.MinValue, b.MinValue)
}

// SortShardIntervals stable-sorts the interval slice in place.
// A zero-length slice is a valid, empty result; otherwise cmp must be
// the comparison function selected for the owning table.
func SortShardIntervals(intervals []*ShardInterval, cmp CompareFunc) {
	if len(intervals) == 0 {
		return
	}
	sort.SliceStable(intervals, func(i, j int) bool {
		return CompareShardIntervals(intervals[i], intervals[j], cmp) < 0
	})
}

// HasUninitializedShardInterval reports whether any shard in the sorted
// slice lacks bounds. The slice must already be sorted with absent-bound
// shards last, so checking the final element is enough.
func HasUninitializedShardInterval(sorted []*ShardInterval) bool {
	if len(sorted) == 0 {
		return false
	}
	return !sorted[len(sorted)-1].Initialized()
}

// HasUniformHashDistribution reports whether the sorted shards of a
// hash-distributed table evenly and contiguously tile the int32 hash
// token space: each of the first n-1 shards covers
// floor(tokenCount/n) tokens and the last shard absorbs the remainder
// up to math.MaxInt32. An empty shard set is not uniform.
func HasUniformHashDistribution(sorted []*ShardInterval) bool {
	shardCount := len(sorted)
	if shardCount == 0 {
		return false
	}
	increment := hashTokenCount / uint64(shardCount)
	for i, interval := range sorted {
		if !interval.Initialized() {
			return false
		}
		expectedMin := int64(math.MinInt32) + int64(uint64(i)*increment)
		expectedMax := expectedMin + int64(increment) - 1
		if i == shardCount-1 {
			expectedMax = math.MaxInt32
		}
		minValue, ok := interval.MinValue.Val.(int64)
		if !ok {
			return false
		}
		maxValue, ok := interval.MaxValue.Val.(int64)
		if !ok {
			return false
		}
		if minValue != expectedMin || maxValue != expectedMax {
			return false
		}
	}
	return true
}
