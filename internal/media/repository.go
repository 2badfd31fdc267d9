// Package media stores uploaded attachments in object storage and tracks them as metadata
// records until a post claims them.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/radif/media/internal/db"
)

// Record is the metadata row for one uploaded object. A nil PostID means the
// media is staged and not yet claimed by a post.
type Record struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Type      Type      `json:"type"`
	PostID    *string   `json:"postId"`
	CreatedAt time.Time `json:"createdAt"`
}

const recordColumns = `id, url, type::text, post_id, created_at`

// Repository handles all media database operations.
type Repository struct {
	db db.DBTX
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db db.DBTX) *Repository {
	return &Repository{db: db}
}

// Create inserts an unattached record and returns it.
func (r *Repository) Create(ctx context.Context, url string, t Type) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`INSERT INTO media (url, type)
		 VALUES ($1, $2::media_type)
		 RETURNING `+recordColumns,
		url, string(t),
	))
	if err != nil {
		return nil, fmt.Errorf("create media: %w", err)
	}
	return rec, nil
}

// GetByID fetches a record by its UUID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM media WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media by id: %w", err)
	}
	return rec, nil
}

// ListUnattached returns every record with no post. When createdBefore is non-nil only
// records created at or before that instant are returned.
func (r *Repository) ListUnattached(ctx context.Context, createdBefore *time.Time) ([]Record, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if createdBefore == nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+recordColumns+` FROM media
			 WHERE post_id IS NULL
			 ORDER BY created_at`)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+recordColumns+` FROM media
			 WHERE post_id IS NULL AND created_at <= $1
			 ORDER BY created_at`,
			*createdBefore,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list unattached media: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return out, nil
}

// Attach links every id to postID in one transaction. If any id is missing or already
// linked nothing changes and ErrAlreadyAttached is returned.
func (r *Repository) Attach(ctx context.Context, postID string, ids []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE media SET post_id = $1
		 WHERE id = ANY($2::uuid[]) AND post_id IS NULL`,
		postID, ids,
	)
	if err != nil {
		return fmt.Errorf("attach media: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return ErrAlreadyAttached
	}
	return tx.Commit(ctx)
}

// DeleteUnattached removes the given records in one statement, skipping any that were
// linked to a post after they were selected. It returns the number of rows removed.
func (r *Repository) DeleteUnattached(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM media WHERE id = ANY($1::uuid[]) AND post_id IS NULL`,
		ids,
	)
	if err != nil {
		return 0, fmt.Errorf("delete unattached media: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes a single record regardless of its association.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM media WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	var typ string
	if err := row.Scan(&rec.ID, &rec.URL, &typ, &rec.PostID, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Type = Type(typ)
	return rec, nil
}
