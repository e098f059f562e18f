package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/gbsr/chappy/internal/models"
	"github.com/gbsr/chappy/internal/store/migrations"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite3"
}

func (d Dialect) migrationsDir() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// DBTX is the subset of *sql.DB used by the queries.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLStore struct {
	db      *sql.DB
	q       DBTX
	dialect Dialect
}

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

func runMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	gooseDialect := "sqlite3"
	if dialect == DialectPostgres {
		gooseDialect = "pgx"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return gooseUpContext(ctx, db, dialect.migrationsDir())
}

// NewSQLStore opens the database, pings it and applies pending migrations.
func NewSQLStore(ctx context.Context, dialect Dialect, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(dialect.driverName(), dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// one writer avoids SQLITE_BUSY under concurrent requests
		db.SetMaxOpenConns(1)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err = runMigrations(ctx, db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return newSQLStoreWithDB(db, dialect), nil
}

func newSQLStoreWithDB(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, q: db, dialect: dialect}
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close(context.Context) error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

var sqliteUniqueColumns = map[string]string{
	"users.id":              "_id",
	"users.user_name":       "userName",
	"users.email":           "email",
	"channels.id":           "_id",
	"channels.channel_name": "channelName",
	"channels.description":  "desc",
	"messages.id":           "_id",
}

var postgresUniqueConstraints = map[string]string{
	"users_pkey":                "_id",
	"users_user_name_key":       "userName",
	"users_email_key":           "email",
	"channels_pkey":             "_id",
	"channels_channel_name_key": "channelName",
	"channels_description_key":  "desc",
	"messages_pkey":             "_id",
}

// duplicateFromSQL maps a driver uniqueness violation to a DuplicateError.
func duplicateFromSQL(err error) (*DuplicateError, bool) {
	var se sqlite3.Error
	if errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		// "UNIQUE constraint failed: users.email"
		_, column, _ := strings.Cut(se.Error(), "failed: ")
		if field, ok := sqliteUniqueColumns[strings.TrimSpace(column)]; ok {
			return &DuplicateError{Field: field}, true
		}
		return &DuplicateError{Field: "_id"}, true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if field, ok := postgresUniqueConstraints[pgErr.ConstraintName]; ok {
			return &DuplicateError{Field: field}, true
		}
		return &DuplicateError{Field: "_id"}, true
	}
	return nil, false
}

func translateSQLErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if dup, ok := duplicateFromSQL(err); ok {
		return dup
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := strings.TrimSpace(ns.String)
	return &v
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to marshal list: %w", err)
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	list := []string{}
	if raw == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal list: %w", err)
	}
	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// User methods

const userColumns = "id, user_name, email, password_hash, is_admin, created_at, updated_at"

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.UserName, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.ID = strings.TrimSpace(u.ID)
	u.CreatedAt, u.UpdatedAt = u.CreatedAt.UTC(), u.UpdatedAt.UTC()
	return &u, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.exec(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.UserName, user.Email, user.PasswordHash, user.IsAdmin, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		return translateSQLErr("insert user", err)
	}
	return nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		return nil, translateSQLErr("query user", err)
	}
	return u, nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
	if err != nil {
		return nil, translateSQLErr("query user", err)
	}
	return u, nil
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.query(ctx, "SELECT "+userColumns+" FROM users ORDER BY id ASC")
	if err != nil {
		return nil, translateSQLErr("query users", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func (s *SQLStore) UpdateUser(ctx context.Context, user *models.User) error {
	res, err := s.exec(ctx,
		"UPDATE users SET user_name = ?, email = ?, password_hash = ?, is_admin = ?, updated_at = ? WHERE id = ?",
		user.UserName, user.Email, user.PasswordHash, user.IsAdmin, user.UpdatedAt.UTC(), user.ID)
	if err != nil {
		return translateSQLErr("update user", err)
	}
	return expectOneRow(res)
}

func (s *SQLStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return translateSQLErr("delete user", err)
	}
	return expectOneRow(res)
}

// Channel methods

const channelColumns = "id, channel_name, description, created_by, is_locked, members_json, created_at, updated_at"

func scanChannel(row rowScanner) (*models.Channel, error) {
	var c models.Channel
	var desc sql.NullString
	var membersJSON string
	if err := row.Scan(&c.ID, &c.ChannelName, &desc, &c.CreatedBy, &c.IsLocked, &membersJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	members, err := decodeList(membersJSON)
	if err != nil {
		return nil, err
	}
	c.ID = strings.TrimSpace(c.ID)
	c.Desc = desc.String
	c.Members = members
	c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()
	return &c, nil
}

func (s *SQLStore) CreateChannel(ctx context.Context, channel *models.Channel) error {
	members, err := encodeList(channel.Members)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx,
		"INSERT INTO channels ("+channelColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		channel.ID, channel.ChannelName, nullString(channel.Desc), channel.CreatedBy, channel.IsLocked,
		members, channel.CreatedAt.UTC(), channel.UpdatedAt.UTC())
	if err != nil {
		return translateSQLErr("insert channel", err)
	}
	return nil
}

func (s *SQLStore) GetChannelByID(ctx context.Context, id string) (*models.Channel, error) {
	c, err := scanChannel(s.queryRow(ctx, "SELECT "+channelColumns+" FROM channels WHERE id = ?", id))
	if err != nil {
		return nil, translateSQLErr("query channel", err)
	}
	return c, nil
}

func (s *SQLStore) ListChannels(ctx context.Context) ([]models.Channel, error) {
	rows, err := s.query(ctx, "SELECT "+channelColumns+" FROM channels ORDER BY id ASC")
	if err != nil {
		return nil, translateSQLErr("query channels", err)
	}
	defer rows.Close()

	channels := []models.Channel{}
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		channels = append(channels, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channels: %w", err)
	}
	return channels, nil
}

func (s *SQLStore) UpdateChannel(ctx context.Context, channel *models.Channel) error {
	members, err := encodeList(channel.Members)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx,
		"UPDATE channels SET channel_name = ?, description = ?, created_by = ?, is_locked = ?, members_json = ?, updated_at = ? WHERE id = ?",
		channel.ChannelName, nullString(channel.Desc), channel.CreatedBy, channel.IsLocked, members, channel.UpdatedAt.UTC(), channel.ID)
	if err != nil {
		return translateSQLErr("update channel", err)
	}
	return expectOneRow(res)
}

func (s *SQLStore) DeleteChannel(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "DELETE FROM channels WHERE id = ?", id)
	if err != nil {
		return translateSQLErr("delete channel", err)
	}
	return expectOneRow(res)
}

// Message methods

const messageColumns = "id, channel_id, user_id, recipient_id, content, tagged_users_json, created_at, updated_at"

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var channelID, recipientID sql.NullString
	var taggedJSON string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&m.ID, &channelID, &m.UserID, &recipientID, &m.Content, &taggedJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	tagged, err := decodeList(taggedJSON)
	if err != nil {
		return nil, err
	}
	m.ID = strings.TrimSpace(m.ID)
	m.UserID = strings.TrimSpace(m.UserID)
	m.ChannelID = stringPtr(channelID)
	m.RecipientID = stringPtr(recipientID)
	m.TaggedUsers = tagged
	m.CreatedAt, m.UpdatedAt = createdAt.UTC(), updatedAt.UTC()
	return &m, nil
}

func (s *SQLStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	tagged, err := encodeList(msg.TaggedUsers)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx,
		"INSERT INTO messages ("+messageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		msg.ID, nullStringPtr(msg.ChannelID), msg.UserID, nullStringPtr(msg.RecipientID), msg.Content,
		tagged, msg.CreatedAt.UTC(), msg.UpdatedAt.UTC())
	if err != nil {
		return translateSQLErr("insert message", err)
	}
	return nil
}

func (s *SQLStore) listMessages(ctx context.Context, where string, args ...any) ([]models.Message, error) {
	rows, err := s.query(ctx, "SELECT "+messageColumns+" FROM messages WHERE "+where+" ORDER BY created_at ASC, id ASC", args...)
	if err != nil {
		return nil, translateSQLErr("query messages", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

func (s *SQLStore) ListChannelMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	return s.listMessages(ctx, "channel_id = ?", channelID)
}

func (s *SQLStore) ListDirectMessages(ctx context.Context, userID, peerID string) ([]models.Message, error) {
	if peerID == "" {
		return s.listMessages(ctx, "recipient_id IS NOT NULL AND (user_id = ? OR recipient_id = ?)", userID, userID)
	}
	return s.listMessages(ctx,
		"(user_id = ? AND recipient_id = ?) OR (user_id = ? AND recipient_id = ?)",
		userID, peerID, peerID, userID)
}
