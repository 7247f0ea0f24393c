// Package vec implements the vec0 SQLite virtual table: exact KNN search over
// fixed-dimension vectors stored next to partition, metadata and auxiliary
// columns.
//
//	CREATE VIRTUAL TABLE items USING vec0(
//	    embedding float[4] distance_metric=cosine,
//	    genre text partition key,
//	    year integer,
//	    +title text
//	);
//	SELECT rowid, distance FROM items
//	WHERE embedding MATCH '[0.1, 0.2, 0.3, 0.4]' AND k = 10 AND genre = 'rock';
//
// Features:
//   - float32, int8 and bit vectors given as BLOBs or JSON text
//   - l2, l1, cosine and hamming distances
//   - partition pruning and metadata filtering pushed into the scan
//   - INSERT, UPDATE and DELETE with transaction rollback
//   - state persisted in the vec0_storage table of the host database file,
//     or in the backend the registry was given, and reloaded on connect
//
// Tables live in an index.Registry shared by every connection of the process,
// keyed by the host database so handles on different databases never share a
// table.
package vec
