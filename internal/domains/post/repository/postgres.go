package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"postsync/internal/domains/post/model"
	"postsync/pkg/database"
)

// =====================================================
// POSTGRES PERSISTER
// =====================================================

var schema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id          TEXT PRIMARY KEY,
		rev         TEXT NOT NULL,
		name        TEXT NOT NULL DEFAULT '',
		content     TEXT NOT NULL DEFAULT '',
		attributes  TEXT[] NOT NULL DEFAULT '{}',
		score       INTEGER NOT NULL DEFAULT 0 CHECK (score >= 0),
		comments    JSONB NOT NULL DEFAULT '[]',
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ,
		deleted     BOOLEAN NOT NULL DEFAULT FALSE,
		seq         BIGINT NOT NULL,
		ord         BIGINT NOT NULL,
		origin      TEXT NOT NULL DEFAULT 'local'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_seq ON posts (seq)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_name ON posts (lower(name)) WHERE NOT deleted`,
	`CREATE INDEX IF NOT EXISTS idx_posts_score ON posts (score DESC, ord ASC) WHERE NOT deleted`,
	`CREATE TABLE IF NOT EXISTS store_meta (
		key    TEXT PRIMARY KEY,
		value  TEXT NOT NULL
	)`,
}

// PostgresPersister stores documents in the posts table.
type PostgresPersister struct {
	pool *pgxpool.Pool
}

// NewPostgresPersister returns a persister over pool. The pool is owned by
// the caller; Close does not close it.
func NewPostgresPersister(pool *pgxpool.Pool) *PostgresPersister {
	return &PostgresPersister{pool: pool}
}

// Migrate creates the posts table and its indexes in one transaction.
func (p *PostgresPersister) Migrate(ctx context.Context) error {
	return database.WithTransaction(ctx, p.pool, func(tx pgx.Tx) error {
		for _, q := range schema {
			if _, err := tx.Exec(ctx, q); err != nil {
				return fmt.Errorf("failed to migrate posts schema: %w", err)
			}
		}
		return nil
	})
}

// Epoch returns the epoch stored with the posts table, creating it on
// first use. Dropping the tables drops the epoch with them.
func (p *PostgresPersister) Epoch(ctx context.Context) (string, error) {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO store_meta (key, value) VALUES ('epoch', $1) ON CONFLICT (key) DO NOTHING`,
		uuid.NewString(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create store epoch: %w", err)
	}

	var epoch string
	if err := p.pool.QueryRow(ctx, `SELECT value FROM store_meta WHERE key = 'epoch'`).Scan(&epoch); err != nil {
		return "", fmt.Errorf("failed to read store epoch: %w", err)
	}
	return epoch, nil
}

// =====================================================
// LOAD
// =====================================================

func (p *PostgresPersister) Load(ctx context.Context) ([]Record, error) {
	query := `
		SELECT
			id, rev, name, content, attributes, score, comments,
			created_at, updated_at, deleted, seq, ord, origin
		FROM posts
		ORDER BY seq ASC
	`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load posts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		doc := &model.Post{}
		var attributes []string
		var comments []byte
		var origin string
		rec := Record{Doc: doc}

		if err := rows.Scan(
			&doc.ID,
			&doc.Rev,
			&doc.Name,
			&doc.Content,
			pq.Array(&attributes),
			&doc.Score,
			&comments,
			&doc.CreatedAt,
			&doc.UpdatedAt,
			&doc.Deleted,
			&rec.Seq,
			&rec.Order,
			&origin,
		); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}

		doc.Attributes = attributes
		if doc.Attributes == nil {
			doc.Attributes = []string{}
		}
		if err := json.Unmarshal(comments, &doc.Comments); err != nil {
			return nil, fmt.Errorf("failed to decode comments of %s: %w", doc.ID, err)
		}
		rec.Origin = model.Origin(origin)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return records, nil
}

// =====================================================
// SAVE (conditional insert / update)
// =====================================================

const insertPostQuery = `
	INSERT INTO posts (
		id, rev, name, content, attributes, score, comments,
		created_at, updated_at, deleted, seq, ord, origin
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO NOTHING
`

const updatePostQuery = `
	UPDATE posts SET
		rev = $2,
		name = $3,
		content = $4,
		attributes = $5,
		score = $6,
		comments = $7,
		created_at = $8,
		updated_at = $9,
		deleted = $10,
		seq = $11,
		ord = $12,
		origin = $13
	WHERE id = $1 AND rev = $14
`

// Save inserts when prevRev is empty and updates the row at prevRev
// otherwise. When nothing was written the current revision is read back
// in the same transaction for the conflict error.
func (p *PostgresPersister) Save(ctx context.Context, rec Record, prevRev string) error {
	doc := rec.Doc
	comments := doc.Comments
	if comments == nil {
		comments = []model.Comment{}
	}
	commentsJSON, err := json.Marshal(comments)
	if err != nil {
		return fmt.Errorf("failed to encode comments: %w", err)
	}
	attributes := doc.Attributes
	if attributes == nil {
		attributes = []string{}
	}

	args := []any{
		doc.ID,
		doc.Rev,
		doc.Name,
		doc.Content,
		pq.Array(attributes),
		doc.Score,
		string(commentsJSON),
		doc.CreatedAt,
		doc.UpdatedAt,
		doc.Deleted,
		rec.Seq,
		rec.Order,
		string(rec.Origin),
	}
	query := insertPostQuery
	if prevRev != "" {
		query = updatePostQuery
		args = append(args, prevRev)
	}

	return database.WithTransaction(ctx, p.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to save post: %w", err)
		}
		if result.RowsAffected() > 0 {
			return nil
		}

		var current string
		err = tx.QueryRow(ctx, `SELECT rev FROM posts WHERE id = $1`, doc.ID).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to read revision of %s: %w", doc.ID, err)
		}
		return model.NewConflictError(doc.ID, prevRev, current)
	})
}

func (p *PostgresPersister) Close() error {
	return nil
}
