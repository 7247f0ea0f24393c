// Package schema parses vec0 table declarations into typed column roles.
//
// A declaration is a comma separated list of entries:
//
//	embedding float[768] distance_metric=cosine   vector column (float|f32|int8|i8|bit)
//	user_id integer partition key                 partition key column
//	genre text                                    metadata column (boolean|integer|float|text)
//	+title text                                   auxiliary column
//	id integer primary key                        rowid alias
//	chunk_size=256                                table option
//
// Supported options are chunk_size, compression (none|zstd|lz4),
// compact_threshold and max_k.
package schema
