package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"raggate/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrBlobNotFound is returned when a blob key has no stored content.
var ErrBlobNotFound = errors.New("blob not found")

// VectorIndexer is the vector index contract: idempotent upsert by record id
// and top-k similarity query.
type VectorIndexer interface {
	UpsertVectors(ctx context.Context, records []types.VectorRecord) error
	QueryVectors(ctx context.Context, vec []float32, k int) ([]types.VectorMatch, error)
}

// BlobStorer is a key-addressed store for chunk text.
type BlobStorer interface {
	PutBlob(ctx context.Context, key, content string) error
	GetBlob(ctx context.Context, key string) (string, error)
}

// BucketPurger compacts stale rate-limit buckets.
type BucketPurger interface {
	PurgeBuckets(ctx context.Context, olderThan time.Duration) error
}

// PostgresStore backs all three durable collaborators of the gateway: the
// vector index (pgvector), the blob store and the rate-limit counter store.
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(ctx context.Context, connStr string, dim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool: pool,
		dim:  dim,
	}, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createGatewayTables(ctx)
}

func (p *PostgresStore) createGatewayTables(ctx context.Context) error {
	query := fmt.Sprintf(`
    CREATE EXTENSION IF NOT EXISTS vector;

    CREATE TABLE IF NOT EXISTS vectors (
        id TEXT PRIMARY KEY,
        doc_id TEXT NOT NULL,
        title TEXT NOT NULL,
        chunk_index INT NOT NULL,
        blob_key TEXT NOT NULL,
        embedding vector(%d) NOT NULL
    );

	CREATE INDEX IF NOT EXISTS idx_vectors_embedding ON vectors USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_vectors_doc_id ON vectors(doc_id);

    CREATE TABLE IF NOT EXISTS blobs (
        key TEXT PRIMARY KEY,
        content TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS rate_buckets (
        key TEXT PRIMARY KEY,
        count INT NOT NULL,
        created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
    );
    `, p.dim)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) UpsertVectors(ctx context.Context, records []types.VectorRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO vectors (id, doc_id, title, chunk_index, blob_key, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			doc_id = EXCLUDED.doc_id,
			title = EXCLUDED.title,
			chunk_index = EXCLUDED.chunk_index,
			blob_key = EXCLUDED.blob_key,
			embedding = EXCLUDED.embedding
			`
	for _, r := range records {
		if len(r.Values) != p.dim {
			return fmt.Errorf("vector %s has dimension %d, index expects %d", r.ID, len(r.Values), p.dim)
		}
		_, err := tx.Exec(ctx, query,
			r.ID, r.Metadata.DocID, r.Metadata.Title, r.Metadata.ChunkIndex, r.Metadata.BlobKey,
			pgvector.NewVector(r.Values),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (p *PostgresStore) QueryVectors(ctx context.Context, vec []float32, k int) ([]types.VectorMatch, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	query := `
		SELECT id, doc_id, title, chunk_index, blob_key,
		       1-(embedding <=> $1) as score
		FROM vectors
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []types.VectorMatch
	for rows.Next() {
		var m types.VectorMatch
		if err := rows.Scan(
			&m.ID,
			&m.Metadata.DocID,
			&m.Metadata.Title,
			&m.Metadata.ChunkIndex,
			&m.Metadata.BlobKey,
			&m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *PostgresStore) PutBlob(ctx context.Context, key, content string) error {
	query := `INSERT INTO blobs (key, content)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET content = EXCLUDED.content
		`
	_, err := p.pool.Exec(ctx, query, key, content)
	return err
}

func (p *PostgresStore) GetBlob(ctx context.Context, key string) (string, error) {
	var content string
	err := p.pool.QueryRow(ctx, "SELECT content FROM blobs WHERE key = $1", key).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrBlobNotFound
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

// IncrementIfBelow runs the bucket's read-modify-write inside a transaction
// with a row lock, so concurrent requests sharing a key never lose updates.
func (p *PostgresStore) IncrementIfBelow(ctx context.Context, key string, limit int) (int, bool, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"INSERT INTO rate_buckets (key, count) VALUES ($1, 0) ON CONFLICT (key) DO NOTHING", key); err != nil {
		return 0, false, err
	}

	var count int
	if err := tx.QueryRow(ctx,
		"SELECT count FROM rate_buckets WHERE key = $1 FOR UPDATE", key).Scan(&count); err != nil {
		return 0, false, err
	}

	if count >= limit {
		return count, false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE rate_buckets SET count = count + 1 WHERE key = $1", key); err != nil {
		return 0, false, err
	}
	return count, true, tx.Commit(ctx)
}

// PurgeBuckets drops buckets whose window has long rolled over. Stale windows
// are never read again, this only keeps the table from growing forever.
func (p *PostgresStore) PurgeBuckets(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	_, err := p.pool.Exec(ctx, "DELETE FROM rate_buckets WHERE created_at < $1", cutoff)
	return err
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}
