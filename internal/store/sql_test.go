package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbsr/chappy/internal/models"
)

func newMockStore(t *testing.T, dialect Dialect) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newSQLStoreWithDB(db, dialect), mock
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &SQLStore{dialect: DialectSQLite}
	assert.Equal(t, "WHERE x = ?", lite.rebind("WHERE x = ?"))
}

func TestSQLStorePostgresUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO channels")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "channels_description_key"})

	err := s.CreateChannel(context.Background(), newChannel("general", "dup"))

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "desc", dup.Field)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUsesDollarPlaceholdersOnPostgres(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)
	id := models.NewID()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_name", "email", "password_hash", "is_admin", "created_at", "updated_at"}).
			AddRow(id, "alice", "a@x.io", "hash", false, baseTime, baseTime))

	u, err := s.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.UserName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreWrapsDriverErrors(t *testing.T) {
	s, mock := newMockStore(t, DialectSQLite)
	mock.ExpectQuery("SELECT .* FROM messages").WillReturnError(errors.New("disk I/O error"))

	_, err := s.ListChannelMessages(context.Background(), models.NewID())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query messages")
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreUpdateMissingRow(t *testing.T) {
	s, mock := newMockStore(t, DialectSQLite)
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateUser(context.Background(), newUser("alice", "a@x.io"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreRejectsCorruptMembers(t *testing.T) {
	s, mock := newMockStore(t, DialectSQLite)
	id := models.NewID()
	mock.ExpectQuery("FROM channels WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "channel_name", "description", "created_by", "is_locked", "members_json", "created_at", "updated_at"}).
			AddRow(id, "general", nil, "u", false, "{not json", baseTime, baseTime))

	_, err := s.GetChannelByID(context.Background(), id)
	assert.ErrorContains(t, err, "failed to unmarshal list")
}

func TestRunMigrationsUsesDialectDirectory(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var dir string
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })
	gooseUpContext = func(_ context.Context, _ *sql.DB, d string, _ ...goose.OptionsFunc) error {
		dir = d
		return nil
	}

	require.NoError(t, runMigrations(context.Background(), db, DialectPostgres))
	assert.Equal(t, "postgres", dir)
}
