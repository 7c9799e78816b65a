package table

import (
	"fmt"
	"net"
	"strconv"
)

// PartitionMethod is the distribution strategy for a distributed table.
// The catalog encodes it as a single character.
type PartitionMethod byte

const (
	PartitionAppend PartitionMethod = 'a'
	PartitionHash   PartitionMethod = 'h'
	PartitionRange  PartitionMethod = 'r'
)

// ParsePartitionMethod decodes the catalog's single character encoding.
// Unknown characters are a configuration error, not a cacheable state.
func ParsePartitionMethod(s string) (PartitionMethod, error) {
	if len(s) == 1 {
		switch m := PartitionMethod(s[0]); m {
		case PartitionAppend, PartitionHash, PartitionRange:
			return m, nil
		}
	}
	return 0, fmt.Errorf("unsupported table partition type: %q", s)
}

func (m PartitionMethod) String() string {
	switch m {
	case PartitionAppend:
		return "append"
	case PartitionHash:
		return "hash"
	case PartitionRange:
		return "range"
	}
	return fmt.Sprintf("invalid(%c)", byte(m))
}

// StorageType describes a shard's physical storage kind.
type StorageType byte

const (
	StorageTable    StorageType = 't'
	StorageColumnar StorageType = 'c'
	StorageForeign  StorageType = 'f'
)

// ParseStorageType decodes the catalog's single character encoding.
func ParseStorageType(s string) (StorageType, error) {
	if len(s) == 1 {
		switch t := StorageType(s[0]); t {
		case StorageTable, StorageColumnar, StorageForeign:
			return t, nil
		}
	}
	return 0, fmt.Errorf("unsupported shard storage type: %q", s)
}

// NodeRole is a worker's role within its replica group.
type NodeRole byte

const (
	NodePrimary   NodeRole = 'p'
	NodeSecondary NodeRole = 's'
)

// ParseNodeRole decodes the catalog's single character encoding.
func ParseNodeRole(s string) (NodeRole, error) {
	if len(s) == 1 {
		switch r := NodeRole(s[0]); r {
		case NodePrimary, NodeSecondary:
			return r, nil
		}
	}
	return 0, fmt.Errorf("unsupported node role: %q", s)
}

func (r NodeRole) String() string {
	switch r {
	case NodePrimary:
		return "primary"
	case NodeSecondary:
		return "secondary"
	}
	return fmt.Sprintf("invalid(%c)", byte(r))
}

// WorkerNode is one member of the cluster, capable of storing and
// serving shards.
type WorkerNode struct {
	NodeID  int64
	Name    string
	Port    int
	Role    NodeRole
	Active  bool
	GroupID int64
}

// Addr returns the node's network address as host:port.
func (n *WorkerNode) Addr() string {
	return net.JoinHostPort(n.Name, strconv.Itoa(n.Port))
}
