package vecutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Index stores text documents of one dataset in a table declared by
// DocumentTableSQL. The dataset is the partition key, so queries of one
// Index never see documents of another.
type Index struct {
	DB        *sql.DB
	Table     string
	DatasetID string
	Embed     EmbedFunc
}

// NewIndex binds table and dataset to embed.
func NewIndex(db *sql.DB, table string, datasetID string, embed EmbedFunc) (*Index, error) {
	switch {
	case db == nil:
		return nil, invalid("db is nil")
	case embed == nil:
		return nil, invalid("embed function is nil")
	}
	return &Index{DB: db, Table: table, DatasetID: datasetID, Embed: embed}, nil
}

// Document is one stored text. Meta is opaque to the index.
type Document struct {
	ID      string
	Content string
	Meta    string
}

// Match is a query hit. Score is 1 - Distance, the cosine similarity.
type Match struct {
	ID       string
	Score    float64
	Distance float64
	Content  string
	Meta     string
}

// UpsertDocumentsText embeds every document and writes them in one
// transaction. A document whose ID exists in the dataset is replaced in
// place and keeps its rowid.
func (ix *Index) UpsertDocumentsText(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	blobs := make([][]byte, len(docs))
	for i, d := range docs {
		blob, err := EmbedText(ctx, ix.Embed, d.Content)
		if err != nil {
			return fmt.Errorf("%w (document %s)", err, d.ID)
		}
		blobs[i] = blob
	}
	table := quoteIdent(ix.Table)
	update := fmt.Sprintf("UPDATE %s SET embedding = ?, content = ?, meta = ? WHERE rowid = ?", table)
	insert := fmt.Sprintf("INSERT INTO %s(embedding, dataset_id, doc_id, content, meta) VALUES (?, ?, ?, ?, ?)", table)
	return ix.inTx(ctx, "upsert", func(tx *sql.Tx) error {
		for i, d := range docs {
			rowid, found, err := ix.rowid(ctx, tx, d.ID)
			if err != nil {
				return err
			}
			if found {
				_, err = tx.ExecContext(ctx, update, blobs[i], d.Content, d.Meta, rowid)
			} else {
				_, err = tx.ExecContext(ctx, insert, blobs[i], ix.DatasetID, d.ID, d.Content, d.Meta)
			}
			if err != nil {
				return fmt.Errorf("document %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

// DeleteDocuments removes the documents of the dataset with the given ids.
// Unknown ids are ignored.
func (ix *Index) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE dataset_id = ? AND doc_id = ?", quoteIdent(ix.Table))
	return ix.inTx(ctx, "delete", func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, stmt, ix.DatasetID, id); err != nil {
				return fmt.Errorf("document %s: %w", id, err)
			}
		}
		return nil
	})
}

func (ix *Index) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := ix.DB.BeginTx(ctx, nil)
	if err != nil {
		return failed(op, err)
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return failed(op, err)
	}
	if err = tx.Commit(); err != nil {
		return failed(op, err)
	}
	return nil
}

func (ix *Index) rowid(ctx context.Context, tx *sql.Tx, id string) (int64, bool, error) {
	stmt := fmt.Sprintf("SELECT rowid FROM %s WHERE dataset_id = ? AND doc_id = ?", quoteIdent(ix.Table))
	var rowid int64
	err := tx.QueryRowContext(ctx, stmt, ix.DatasetID, id).Scan(&rowid)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("document %s: %w", id, err)
	}
	return rowid, true, nil
}

// QueryText returns the k documents of the dataset closest to query, or the
// whole dataset ranked when k <= 0.
func (ix *Index) QueryText(ctx context.Context, query string, k int) ([]Match, error) {
	blob, err := EmbedText(ctx, ix.Embed, query)
	if err != nil {
		return nil, err
	}
	table := quoteIdent(ix.Table)
	if k <= 0 {
		stmt := fmt.Sprintf("SELECT count(*) FROM %s WHERE dataset_id = ?", table)
		if err := ix.DB.QueryRowContext(ctx, stmt, ix.DatasetID).Scan(&k); err != nil {
			return nil, failed("count "+ix.Table, err)
		}
		if k == 0 {
			return nil, nil
		}
	}
	stmt := fmt.Sprintf(`SELECT doc_id, distance, content, meta FROM %s
WHERE embedding MATCH ? AND k = ? AND dataset_id = ?
ORDER BY distance`, table)
	rows, err := ix.DB.QueryContext(ctx, stmt, blob, k, ix.DatasetID)
	if err != nil {
		return nil, failed("query "+ix.Table, err)
	}
	matches, err := collect(rows, func(rows *sql.Rows) (Match, error) {
		var (
			m             Match
			content, meta sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Distance, &content, &meta); err != nil {
			return Match{}, err
		}
		m.Score = 1 - m.Distance
		m.Content, m.Meta = content.String, meta.String
		return m, nil
	})
	if err != nil {
		return nil, failed("query "+ix.Table, err)
	}
	return matches, nil
}
