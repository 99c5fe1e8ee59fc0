package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/sitesage/sitesage/internal/chunk"
)

var _ VectorStore = (*Postgres)(nil)

// Postgres keeps chunks in a pgvector-enabled table. Each Upsert batch runs
// in one transaction, so a commit batch lands atomically; Query orders by
// cosine distance.
type Postgres struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

const chunkSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	source_url TEXT NOT NULL,
	source_title TEXT NOT NULL DEFAULT '',
	seq INT NOT NULL,
	content TEXT NOT NULL,
	embedding vector(%d) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

func NewPostgres(ctx context.Context, dsn string, embedder Embedder, dimensions int) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(chunkSchema, dimensions)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{pool: pool, embedder: embedder}, nil
}

func (s *Postgres) Close() { s.pool.Close() }

func (s *Postgres) Upsert(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i, ch := range chunks {
		batch.Queue(`
			INSERT INTO chunks (id, source_url, source_title, seq, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				source_url = EXCLUDED.source_url,
				source_title = EXCLUDED.source_title,
				seq = EXCLUDED.seq,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				updated_at = now()
		`, ch.ID, ch.SourceURL, ch.SourceTitle, ch.SequenceIndex, ch.Text, pgvector.NewVector(vectors[i]))
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch exec %d: %w", i, err)
		}
	}
	br.Close()

	return tx.Commit(ctx)
}

func (s *Postgres) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete %d chunks: %w", len(ids), err)
	}
	return nil
}

func (s *Postgres) Query(ctx context.Context, text string, topN int) ([]Match, error) {
	if topN <= 0 {
		return nil, nil
	}
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors))
	}
	qv := pgvector.NewVector(vectors[0])

	rows, err := s.pool.Query(ctx, `
		SELECT id, source_url, source_title, seq, content, 1 - (embedding <=> $1) AS score
		FROM chunks
		ORDER BY embedding <=> $1, seq, source_url
		LIMIT $2
	`, qv, topN)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.SourceURL, &m.Chunk.SourceTitle, &m.Chunk.SequenceIndex, &m.Chunk.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if m.Score < 0 {
			m.Score = 0
		} else if m.Score > 1 {
			m.Score = 1
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
