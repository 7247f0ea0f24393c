package distance

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// Metric identifies a distance function.
type Metric uint8

const (
	L2 Metric = iota + 1
	L1
	Cosine
	Hamming
)

func (m Metric) String() string {
	switch m {
	case L2:
		return "l2"
	case L1:
		return "l1"
	case Cosine:
		return "cosine"
	case Hamming:
		return "hamming"
	}
	return fmt.Sprintf("Metric(%d)", uint8(m))
}

// ParseMetric resolves a metric name.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "l2", "euclidean":
		return L2, nil
	case "l1", "manhattan":
		return L1, nil
	case "cosine", "cos":
		return Cosine, nil
	case "hamming":
		return Hamming, nil
	}
	return 0, fmt.Errorf("unknown distance metric %q", name)
}

// EuclideanDistance returns sqrt(sum((a_i - b_i)^2)). Sums are taken in
// float64, which holds the square of any float32 difference.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ManhattanDistance returns sum(|a_i - b_i|).
func ManhattanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum
}

// Magnitude returns the L2 norm of v.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// CosineDistance returns 1 - cos(a, b). A zero-magnitude operand yields 1.
func CosineDistance(a, b []float32) float64 {
	return CosineDistanceWithMagnitude(a, b, Magnitude(a), Magnitude(b))
}

// CosineDistanceWithMagnitude is CosineDistance with precomputed norms,
// clamped to [0, 2].
func CosineDistanceWithMagnitude(a, b []float32, ma, mb float64) float64 {
	if ma == 0 || mb == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return min(max(1-dot/(ma*mb), 0), 2)
}

// HammingDistance returns the number of differing bits.
func HammingDistance(a, b []byte) float64 {
	var n int
	i := 0
	for ; i+8 <= len(a); i += 8 {
		n += bits.OnesCount64(binary.LittleEndian.Uint64(a[i:]) ^ binary.LittleEndian.Uint64(b[i:]))
	}
	for ; i < len(a); i++ {
		n += bits.OnesCount8(a[i] ^ b[i])
	}
	return float64(n)
}
