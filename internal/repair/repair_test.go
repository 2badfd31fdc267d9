package repair

import (
	"context"
	"regexp"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockFixer(t *testing.T) (*Fixer, pgxmock.PgxPoolIface) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewFixer(pool, zap.NewNop().Sugar()), pool
}

func expectFind(pool pgxmock.PgxPoolIface) {
	pool.ExpectQuery(regexp.QuoteMeta("SELECT id, avatar_url FROM users WHERE strpos(avatar_url, $1) > 0")).
		WithArgs("/undefined/").
		WillReturnRows(pgxmock.NewRows([]string{"id", "avatar_url"}).
			AddRow("u1", "https://s3.example.com/undefined/avatars/u1_1.png"))
	pool.ExpectQuery(regexp.QuoteMeta("SELECT id, url FROM media WHERE strpos(url, $1) > 0")).
		WithArgs("/undefined/").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url"}).
			AddRow("m1", "https://s3.example.com/undefined/attachments/1_a.png").
			AddRow("m2", "https://s3.example.com/undefined/attachments/2_undefined/b.png"))
}

func TestRunDryRun(t *testing.T) {
	fixer, pool := newMockFixer(t)
	expectFind(pool)

	report, err := fixer.Run(context.Background(), "/undefined/", "/media/", true)
	require.NoError(t, err)

	require.Len(t, report.Users, 1)
	assert.Equal(t, "https://s3.example.com/media/avatars/u1_1.png", report.Users[0].To)
	require.Len(t, report.Media, 2)
	assert.Equal(t, "https://s3.example.com/media/attachments/2_undefined/b.png", report.Media[1].To)
	assert.Equal(t, 3, report.Total())
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRunApplies(t *testing.T) {
	fixer, pool := newMockFixer(t)
	expectFind(pool)

	pool.ExpectBegin()
	pool.ExpectExec(regexp.QuoteMeta("UPDATE users SET avatar_url = $2, updated_at = NOW() WHERE id = $1")).
		WithArgs("u1", "https://s3.example.com/media/avatars/u1_1.png").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec(regexp.QuoteMeta("UPDATE media SET url = $2 WHERE id = $1")).
		WithArgs("m1", "https://s3.example.com/media/attachments/1_a.png").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec(regexp.QuoteMeta("UPDATE media SET url = $2 WHERE id = $1")).
		WithArgs("m2", "https://s3.example.com/media/attachments/2_undefined/b.png").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectCommit()

	report, err := fixer.Run(context.Background(), "/undefined/", "/media/", false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total())
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRunNothingToDo(t *testing.T) {
	fixer, pool := newMockFixer(t)
	pool.ExpectQuery(regexp.QuoteMeta("FROM users")).WithArgs("/undefined/").
		WillReturnRows(pgxmock.NewRows([]string{"id", "avatar_url"}))
	pool.ExpectQuery(regexp.QuoteMeta("FROM media")).WithArgs("/undefined/").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url"}))

	report, err := fixer.Run(context.Background(), "/undefined/", "/media/", false)
	require.NoError(t, err)
	assert.Zero(t, report.Total())
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRunRejectsNoop(t *testing.T) {
	fixer, _ := newMockFixer(t)

	_, err := fixer.Run(context.Background(), "", "/media/", true)
	assert.Error(t, err)
	_, err = fixer.Run(context.Background(), "/media/", "/media/", true)
	assert.Error(t, err)
}
