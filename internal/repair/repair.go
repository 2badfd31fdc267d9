// Package repair rewrites stored object URLs that were minted with a wrong path segment,
// such as ".../undefined/avatars/..." produced while the bucket name was unset.
package repair

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/radif/media/internal/db"
)

// Change is one URL rewrite.
type Change struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Report lists the rewrites per table.
type Report struct {
	Users []Change `json:"users"`
	Media []Change `json:"media"`
}

// Total is the number of rewritten rows.
func (r Report) Total() int {
	return len(r.Users) + len(r.Media)
}

// target is a table/column pair holding object URLs.
type target struct {
	table  string
	column string
	touch  string // extra SET clause, if any
}

var (
	usersTarget = target{table: "users", column: "avatar_url", touch: ", updated_at = NOW()"}
	mediaTarget = target{table: "media", column: "url"}
)

// Fixer finds and rewrites bad URLs.
type Fixer struct {
	db  db.DBTX
	log *zap.SugaredLogger
}

// NewFixer creates a Fixer.
func NewFixer(db db.DBTX, log *zap.SugaredLogger) *Fixer {
	return &Fixer{db: db, log: log}
}

// Run replaces the first occurrence of from with to in every users.avatar_url and media.url
// containing from. With dryRun set nothing is written; the report shows what would change.
func (f *Fixer) Run(ctx context.Context, from, to string, dryRun bool) (Report, error) {
	if from == "" || from == to {
		return Report{}, fmt.Errorf("invalid rewrite %q -> %q", from, to)
	}

	var (
		report Report
		err    error
	)
	if report.Users, err = f.find(ctx, usersTarget, from, to); err != nil {
		return Report{}, err
	}
	if report.Media, err = f.find(ctx, mediaTarget, from, to); err != nil {
		return Report{}, err
	}

	for _, c := range report.Users {
		f.log.Infow("avatar url", "user_id", c.ID, "from", c.From, "to", c.To, "dry_run", dryRun)
	}
	for _, c := range report.Media {
		f.log.Infow("media url", "media_id", c.ID, "from", c.From, "to", c.To, "dry_run", dryRun)
	}
	if dryRun || report.Total() == 0 {
		return report, nil
	}

	tx, err := f.db.Begin(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := apply(ctx, tx, usersTarget, report.Users); err != nil {
		return Report{}, err
	}
	if err := apply(ctx, tx, mediaTarget, report.Media); err != nil {
		return Report{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Report{}, fmt.Errorf("commit: %w", err)
	}
	return report, nil
}

func (f *Fixer) find(ctx context.Context, t target, from, to string) ([]Change, error) {
	rows, err := f.db.Query(ctx,
		fmt.Sprintf(`SELECT id, %[2]s FROM %[1]s WHERE strpos(%[2]s, $1) > 0 ORDER BY id`, t.table, t.column),
		from,
	)
	if err != nil {
		return nil, fmt.Errorf("find bad %s urls: %w", t.table, err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.ID, &c.From); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.table, err)
		}
		c.To = strings.Replace(c.From, from, to, 1)
		out = append(out, c)
	}
	return out, rows.Err()
}

func apply(ctx context.Context, tx pgx.Tx, t target, changes []Change) error {
	q := fmt.Sprintf(`UPDATE %s SET %s = $2%s WHERE id = $1`, t.table, t.column, t.touch)
	for _, c := range changes {
		if _, err := tx.Exec(ctx, q, c.ID, c.To); err != nil {
			return fmt.Errorf("rewrite %s %s: %w", t.table, c.ID, err)
		}
	}
	return nil
}
