package distance

import (
	"fmt"

	"github.com/viant/vec0/vector"
)

// Quant holds the int8 dequantization parameters of a stored row.
type Quant struct {
	Scale  float32
	Offset float32
}

// Kernel is a distance function bound to one element type and metric.
type Kernel struct {
	Type   vector.ElementType
	Metric Metric
	dense  func(a, b []float32) float64
	packed func(a, b []byte) float64
}

// Resolve binds t and m. Hamming is the only metric for bit vectors and is
// not defined for float32 or int8 vectors.
func Resolve(t vector.ElementType, m Metric) (Kernel, error) {
	k := Kernel{Type: t, Metric: m}
	switch t {
	case vector.Float32, vector.Int8:
		switch m {
		case L2:
			k.dense = EuclideanDistance
		case L1:
			k.dense = ManhattanDistance
		case Cosine:
			k.dense = CosineDistance
		default:
			return Kernel{}, fmt.Errorf("distance metric %v is not supported for %v vectors", m, t)
		}
	case vector.Bit:
		if m != Hamming {
			return Kernel{}, fmt.Errorf("distance metric %v is not supported for bit vectors, only hamming", m)
		}
		k.packed = HammingDistance
	default:
		return Kernel{}, fmt.Errorf("unsupported element type %v", t)
	}
	return k, nil
}

// DefaultMetric returns the metric used when a column does not declare one.
func DefaultMetric(t vector.ElementType) Metric {
	if t == vector.Bit {
		return Hamming
	}
	return L2
}

// Between computes the distance between two vectors of the kernel's type.
func (k Kernel) Between(a, b vector.Vector) (float64, error) {
	if a.Type != k.Type || b.Type != k.Type {
		return 0, fmt.Errorf("vector type mismatch: %v kernel got %v and %v", k.Type, a.Type, b.Type)
	}
	if a.Dims != b.Dims {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", a.Dims, b.Dims)
	}
	if k.packed != nil {
		return k.packed(a.Bits, b.Bits), nil
	}
	return k.dense(a.Float32s(), b.Float32s()), nil
}

// Scorer compares stored rows against one query vector. It owns scratch
// space and must not be shared between queries.
type Scorer struct {
	kernel  Kernel
	dims    int
	query   []float32
	bits    []byte
	norm    float64
	scratch []float32
}

// NewScorer prepares query for repeated comparisons.
func (k Kernel) NewScorer(query vector.Vector) (*Scorer, error) {
	if query.Type != k.Type {
		return nil, fmt.Errorf("query vector type %v does not match column type %v", query.Type, k.Type)
	}
	s := &Scorer{kernel: k, dims: query.Dims}
	if k.packed != nil {
		s.bits = query.Bits
		return s, nil
	}
	s.query = query.Float32s()
	s.scratch = make([]float32, query.Dims)
	if k.Metric == Cosine {
		s.norm = Magnitude(s.query)
	}
	return s, nil
}

// Score returns the distance between the query and a stored row given as
// slab bytes. q is only used for int8 rows. The row is never modified.
func (s *Scorer) Score(row []byte, q Quant) float64 {
	if s.kernel.packed != nil {
		return s.kernel.packed(s.bits, row)
	}
	switch s.kernel.Type {
	case vector.Float32:
		vector.Float32sInto(s.scratch, row)
	case vector.Int8:
		for i := range s.scratch {
			s.scratch[i] = float32(int8(row[i]))*q.Scale + q.Offset
		}
	}
	if s.kernel.Metric == Cosine {
		return CosineDistanceWithMagnitude(s.query, s.scratch, s.norm, Magnitude(s.scratch))
	}
	return s.kernel.dense(s.query, s.scratch)
}

// Dims returns the query dimension.
func (s *Scorer) Dims() int { return s.dims }

// Bytes estimates the memory held by the scorer.
func (s *Scorer) Bytes() int64 {
	return int64(len(s.query)*4 + len(s.scratch)*4 + len(s.bits))
}
