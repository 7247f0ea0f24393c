package schema

import (
	"fmt"
	"strings"

	"github.com/viant/vec0/distance"
	"github.com/viant/vec0/internal/chunk"
	"github.com/viant/vec0/vector"
)

// Role is the part a column plays in a vec0 table.
type Role uint8

const (
	RoleVector Role = iota + 1
	RolePartition
	RoleMetadata
	RoleAux
	RolePrimaryKey
)

func (r Role) String() string {
	switch r {
	case RoleVector:
		return "vector"
	case RolePartition:
		return "partition"
	case RoleMetadata:
		return "metadata"
	case RoleAux:
		return "auxiliary"
	case RolePrimaryKey:
		return "primary key"
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// ScalarType is the declared type of a non-vector column.
type ScalarType uint8

const (
	TypeAny ScalarType = iota
	TypeInteger
	TypeFloat
	TypeText
	TypeBoolean
	TypeBlob
)

func (t ScalarType) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "FLOAT"
	case TypeText:
		return "TEXT"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeBlob:
		return "BLOB"
	}
	return "ANY"
}

// Limits on declared columns.
const (
	MaxVectorColumns    = 16
	MaxPartitionColumns = 4
	MaxMetadataColumns  = 16
	MaxAuxColumns       = 16
	MaxDimensions       = 8192
)

// Column is one declared column.
type Column struct {
	Name string
	Role Role
	// Index is the position of the column within its role family.
	Index int

	Element vector.ElementType
	Dims    int
	Metric  distance.Metric
	Kernel  distance.Kernel

	Type ScalarType
}

// Schema is a parsed vec0 declaration.
type Schema struct {
	Table   string
	Columns []Column
	// Positions of columns per role, in declaration order.
	Vectors    []int
	Partitions []int
	Metadata   []int
	Aux        []int
	PrimaryKey int
	Options    Options
	// Args are the declaration entries the schema was parsed from.
	Args []string
}

// DistanceColumn returns the host column index of the hidden distance column.
func (s *Schema) DistanceColumn() int { return len(s.Columns) }

// KColumn returns the host column index of the hidden k column.
func (s *Schema) KColumn() int { return len(s.Columns) + 1 }

// Lookup returns the position of the named column.
func (s *Schema) Lookup(name string) (int, bool) {
	for i := range s.Columns {
		if strings.EqualFold(s.Columns[i].Name, name) {
			return i, true
		}
	}
	return -1, false
}

// Layout returns the chunk layout of the schema.
func (s *Schema) Layout() chunk.Layout {
	layout := chunk.Layout{
		Partitions: len(s.Partitions),
		Metadata:   len(s.Metadata),
		Aux:        len(s.Aux),
		Capacity:   s.Options.ChunkSize,
	}
	for _, i := range s.Vectors {
		layout.Vectors = append(layout.Vectors, chunk.VectorLayout{Type: s.Columns[i].Element, Dims: s.Columns[i].Dims})
	}
	return layout
}

// DeclareSQL returns the CREATE TABLE statement declared to the host.
func (s *Schema) DeclareSQL() string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE x(")
	for i := range s.Columns {
		c := &s.Columns[i]
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(c.Name))
		switch c.Role {
		case RoleVector:
			sb.WriteString(" BLOB")
		case RolePrimaryKey:
			sb.WriteString(" INTEGER")
		default:
			if c.Type != TypeAny {
				sb.WriteString(" " + c.Type.String())
			}
		}
	}
	sb.WriteString(", distance REAL HIDDEN, k INTEGER HIDDEN)")
	return sb.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
