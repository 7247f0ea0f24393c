package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/viant/vec0/distance"
	"github.com/viant/vec0/vecerr"
	"github.com/viant/vec0/vector"
)

// Compression names accepted by the compression option.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
)

// Options are table level settings given as key=value declaration entries.
type Options struct {
	ChunkSize        int
	Compression      string
	CompactThreshold float64
	MaxK             int
}

// DefaultOptions returns the options used when none are declared.
func DefaultOptions() Options {
	return Options{ChunkSize: 1024, Compression: CompressionZstd, CompactThreshold: 0.5, MaxK: 4096}
}

var vectorType = regexp.MustCompile(`^(?i)(float|f32|float32|int8|i8|bit)\[\s*(-?\d+)\s*\]$`)

var reserved = map[string]bool{"rowid": true, "distance": true, "k": true, "oid": true, "_rowid_": true}

// Parse parses the declaration entries of a vec0 table. Nothing is created
// here: callers build backing structures only from a successfully parsed
// schema.
func Parse(table string, args []string) (*Schema, error) {
	s := &Schema{Table: table, PrimaryKey: -1, Options: DefaultOptions(), Args: append([]string(nil), args...)}
	seen := map[string]bool{}
	for _, raw := range args {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if key, val, ok := splitOption(entry); ok {
			if err := s.Options.set(key, val); err != nil {
				return nil, err
			}
			continue
		}
		col, err := parseColumn(entry)
		if err != nil {
			return nil, err
		}
		lower := strings.ToLower(col.Name)
		if reserved[lower] {
			return nil, vecerr.Validationf("declare", "column name %q is reserved", col.Name)
		}
		if seen[lower] {
			return nil, vecerr.Validationf("declare", "duplicate column name %q", col.Name)
		}
		seen[lower] = true
		pos := len(s.Columns)
		switch col.Role {
		case RoleVector:
			col.Index = len(s.Vectors)
			s.Vectors = append(s.Vectors, pos)
		case RolePartition:
			col.Index = len(s.Partitions)
			s.Partitions = append(s.Partitions, pos)
		case RoleMetadata:
			col.Index = len(s.Metadata)
			s.Metadata = append(s.Metadata, pos)
		case RoleAux:
			col.Index = len(s.Aux)
			s.Aux = append(s.Aux, pos)
		case RolePrimaryKey:
			if s.PrimaryKey >= 0 {
				return nil, vecerr.Validationf("declare", "more than one primary key column")
			}
			s.PrimaryKey = pos
		}
		s.Columns = append(s.Columns, col)
	}
	switch {
	case len(s.Vectors) == 0:
		return nil, vecerr.Validationf("declare", "at least one vector column is required")
	case len(s.Vectors) > MaxVectorColumns:
		return nil, vecerr.Validationf("declare", "at most %d vector columns are allowed", MaxVectorColumns)
	case len(s.Partitions) > MaxPartitionColumns:
		return nil, vecerr.Validationf("declare", "at most %d partition key columns are allowed", MaxPartitionColumns)
	case len(s.Metadata) > MaxMetadataColumns:
		return nil, vecerr.Validationf("declare", "at most %d metadata columns are allowed", MaxMetadataColumns)
	case len(s.Aux) > MaxAuxColumns:
		return nil, vecerr.Validationf("declare", "at most %d auxiliary columns are allowed", MaxAuxColumns)
	}
	return s, nil
}

func splitOption(entry string) (string, string, bool) {
	key, val, ok := strings.Cut(entry, "=")
	if !ok {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	return key, strings.Trim(strings.TrimSpace(val), `'"`), true
}

func (o *Options) set(key, val string) error {
	switch key {
	case "chunk_size":
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 || n%8 != 0 || n > 65536 {
			return vecerr.Validationf("declare", "chunk_size must be a positive multiple of 8 up to 65536, got %q", val)
		}
		o.ChunkSize = n
	case "compression":
		switch v := strings.ToLower(val); v {
		case CompressionNone, CompressionZstd, CompressionLZ4:
			o.Compression = v
		default:
			return vecerr.Validationf("declare", "unknown compression %q, want none, zstd or lz4", val)
		}
	case "compact_threshold":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 || f > 1 {
			return vecerr.Validationf("declare", "compact_threshold must be within [0, 1], got %q", val)
		}
		o.CompactThreshold = f
	case "max_k":
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return vecerr.Validationf("declare", "max_k must be a positive integer, got %q", val)
		}
		o.MaxK = n
	default:
		return vecerr.Validationf("declare", "unknown table option %q", key)
	}
	return nil
}

func parseColumn(entry string) (Column, error) {
	if strings.HasPrefix(entry, "+") {
		fields := strings.Fields(strings.TrimSpace(entry[1:]))
		if len(fields) == 0 {
			return Column{}, vecerr.Validationf("declare", "auxiliary column %q has no name", entry)
		}
		col := Column{Name: unquote(fields[0]), Role: RoleAux}
		if len(fields) > 1 {
			t, ok := parseScalarType(strings.Join(fields[1:], " "), true)
			if !ok {
				return Column{}, vecerr.Validationf("declare", "unknown type %q for auxiliary column %q", strings.Join(fields[1:], " "), col.Name)
			}
			col.Type = t
		}
		return col, nil
	}
	fields := strings.Fields(entry)
	if len(fields) < 2 {
		return Column{}, vecerr.Validationf("declare", "column %q must declare a type", entry)
	}
	name := unquote(fields[0])
	if name == "" {
		return Column{}, vecerr.Validationf("declare", "empty column name in %q", entry)
	}
	if m := vectorType.FindStringSubmatch(fields[1]); m != nil {
		return parseVectorColumn(name, m[1], m[2], fields[2:])
	}
	rest := strings.ToLower(strings.Join(fields[2:], " "))
	switch rest {
	case "partition key":
		t, ok := parseScalarType(fields[1], false)
		if !ok || (t != TypeText && t != TypeInteger) {
			return Column{}, vecerr.Validationf("declare", "partition key column %q must be text or integer, got %q", name, fields[1])
		}
		return Column{Name: name, Role: RolePartition, Type: t}, nil
	case "primary key":
		if t, ok := parseScalarType(fields[1], false); !ok || t != TypeInteger {
			return Column{}, vecerr.Validationf("declare", "primary key column %q must be integer", name)
		}
		return Column{Name: name, Role: RolePrimaryKey, Type: TypeInteger}, nil
	case "":
		t, ok := parseScalarType(fields[1], false)
		if !ok {
			return Column{}, vecerr.Validationf("declare", "unknown type %q for column %q", fields[1], name)
		}
		return Column{Name: name, Role: RoleMetadata, Type: t}, nil
	}
	return Column{}, vecerr.Validationf("declare", "unrecognized constraint %q on column %q", strings.Join(fields[2:], " "), name)
}

func parseVectorColumn(name, elem, dims string, rest []string) (Column, error) {
	t, err := vector.ParseElementType(elem)
	if err != nil {
		return Column{}, vecerr.Validation("declare", err)
	}
	n, err := strconv.Atoi(dims)
	if err != nil || n <= 0 || n > MaxDimensions {
		return Column{}, vecerr.Validationf("declare", "vector column %q dimension must be within [1, %d], got %s", name, MaxDimensions, dims)
	}
	if t == vector.Bit && n%8 != 0 {
		return Column{}, vecerr.Validationf("declare", "bit vector column %q dimension must be divisible by 8, got %d", name, n)
	}
	col := Column{Name: name, Role: RoleVector, Element: t, Dims: n, Metric: distance.DefaultMetric(t)}
	for _, opt := range rest {
		key, val, ok := splitOption(opt)
		if !ok || key != "distance_metric" {
			return Column{}, vecerr.Validationf("declare", "unrecognized option %q on vector column %q", opt, name)
		}
		if col.Metric, err = distance.ParseMetric(val); err != nil {
			return Column{}, vecerr.Validation("declare", err)
		}
	}
	if col.Kernel, err = distance.Resolve(t, col.Metric); err != nil {
		return Column{}, vecerr.Validation("declare", fmt.Errorf("column %q: %w", name, err))
	}
	return col, nil
}

func parseScalarType(name string, aux bool) (ScalarType, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "integer", "int", "bigint":
		return TypeInteger, true
	case "float", "double", "real", "float64":
		return TypeFloat, true
	case "text", "varchar", "string":
		return TypeText, true
	case "boolean", "bool":
		return TypeBoolean, true
	case "blob":
		if aux {
			return TypeBlob, true
		}
	case "any":
		if aux {
			return TypeAny, true
		}
	}
	return TypeAny, false
}

func unquote(name string) string {
	if len(name) >= 2 {
		switch {
		case name[0] == '"' && name[len(name)-1] == '"',
			name[0] == '`' && name[len(name)-1] == '`',
			name[0] == '[' && name[len(name)-1] == ']':
			return name[1 : len(name)-1]
		}
	}
	return name
}
