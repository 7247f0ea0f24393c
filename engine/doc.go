// Package engine opens vec0 host databases on the modernc.org/sqlite driver
// and registers the vec_* scalar functions: constructors (vec_f32, vec_int8,
// vec_bit), inspection (vec_length, vec_type, vec_to_json), distances
// (vec_distance_l2, vec_distance_l1, vec_distance_cosine,
// vec_distance_hamming) and transforms (vec_add, vec_sub, vec_normalize,
// vec_slice, vec_quantize_binary, vec_quantize_int8).
package engine
