// Package distance implements the vec0 distance engine: L2, L1 and cosine
// over float32 (int8 vectors are dequantized first) and hamming over packed
// bits. A Kernel binds one (element type, metric) pair and is resolved once
// per vector column.
package distance
