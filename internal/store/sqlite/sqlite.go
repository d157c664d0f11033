package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabot-ai/murmur/internal/model"
	"github.com/alphabot-ai/murmur/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	firstname TEXT,
	lastname TEXT,
	username TEXT NOT NULL,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	bio TEXT,
	location TEXT,
	is_admin INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	refresh_token TEXT,
	refresh_expires_at INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
CREATE INDEX IF NOT EXISTS idx_users_refresh_token ON users(refresh_token);

CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL,
	author_id INTEGER,
	category TEXT NOT NULL DEFAULT 'general',
	score INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(author_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_posts_category ON posts(category);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);

CREATE TABLE IF NOT EXISTS votes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	value INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(post_id) REFERENCES posts(id),
	FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_unique ON votes(post_id, user_id);
`,
	// Future migrations go here:
	// Migration 2: `ALTER TABLE ...`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

// ----------------------------------------------------------------------------
// Users

func (s *Store) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO users (firstname, lastname, username, email, password_hash, bio, location, is_admin, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, nullIfEmpty(user.FirstName), nullIfEmpty(user.LastName), user.Username, user.Email,
		user.PasswordHash, nullIfEmpty(user.Bio), nullIfEmpty(user.Location),
		boolToInt(user.IsAdmin), user.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "users.email") {
				return 0, store.ErrDuplicateEmail
			}
			return 0, store.ErrDuplicateUsername
		}
		return 0, wrapErr(err)
	}
	return res.LastInsertId()
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, firstname, lastname, username, email, password_hash, bio, location, is_admin, created_at, refresh_token, refresh_expires_at
FROM users
WHERE id = ?
`, id)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, firstname, lastname, username, email, password_hash, bio, location, is_admin, created_at, refresh_token, refresh_expires_at
FROM users
WHERE username = ?
`, username)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, firstname, lastname, username, email, password_hash, bio, location, is_admin, created_at, refresh_token, refresh_expires_at
FROM users
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserProfile(ctx context.Context, id int64, bio, location string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE users SET bio = ?, location = ? WHERE id = ?
`, nullIfEmpty(bio), nullIfEmpty(location), id)
	if err != nil {
		return wrapErr(err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteUser removes an account in one transaction: the user's standing
// votes are retracted with matching score adjustments, authored posts
// are detached rather than destroyed, then the user row goes.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return wrapErr(err)
	}

	// Retract the user's votes, keeping every post's score equal to the
	// sum of its remaining votes.
	if _, err := tx.ExecContext(ctx, `
UPDATE posts
SET score = score - (SELECT value FROM votes WHERE votes.post_id = posts.id AND votes.user_id = ?)
WHERE id IN (SELECT post_id FROM votes WHERE user_id = ?)
`, id, id); err != nil {
		return wrapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE user_id = ?`, id); err != nil {
		return wrapErr(err)
	}

	// Authored posts outlive the account as authorless posts.
	if _, err := tx.ExecContext(ctx, `UPDATE posts SET author_id = NULL WHERE author_id = ?`, id); err != nil {
		return wrapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return wrapErr(err)
	}
	return tx.Commit()
}

func (s *Store) UpdateRefreshToken(ctx context.Context, id int64, token string, expiresAt int64) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE users SET refresh_token = ?, refresh_expires_at = ? WHERE id = ?
`, nullIfEmpty(token), expiresAt, id)
	if err != nil {
		return wrapErr(err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetUserByRefreshToken(ctx context.Context, token string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, firstname, lastname, username, email, password_hash, bio, location, is_admin, created_at, refresh_token, refresh_expires_at
FROM users
WHERE refresh_token = ?
`, token)
	return scanUser(row)
}

// ----------------------------------------------------------------------------
// Posts

func (s *Store) CreatePost(ctx context.Context, post *model.Post) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO posts (content, author_id, category, score, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, post.Content, nullableInt(post.AuthorID), post.Category, post.Score,
		post.CreatedAt.Unix(), post.UpdatedAt.Unix())
	if err != nil {
		return 0, wrapErr(err)
	}
	return res.LastInsertId()
}

func (s *Store) GetPost(ctx context.Context, id int64) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT p.id, p.content, p.author_id, p.category, p.score, p.created_at, p.updated_at, u.username
FROM posts p
LEFT JOIN users u ON u.id = p.author_id
WHERE p.id = ?
LIMIT 1
`, id)
	return scanPost(row)
}

func (s *Store) ListPosts(ctx context.Context, opts store.PostListOpts) ([]model.Post, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if opts.Category != "" {
		rows, err = s.db.QueryContext(ctx, `
SELECT p.id, p.content, p.author_id, p.category, p.score, p.created_at, p.updated_at, u.username
FROM posts p
LEFT JOIN users u ON u.id = p.author_id
WHERE p.category = ?
ORDER BY p.created_at DESC, p.id DESC
LIMIT ?
`, opts.Category, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
SELECT p.id, p.content, p.author_id, p.category, p.score, p.created_at, p.updated_at, u.username
FROM posts p
LEFT JOIN users u ON u.id = p.author_id
ORDER BY p.created_at DESC, p.id DESC
LIMIT ?
`, limit)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

func (s *Store) SearchPosts(ctx context.Context, query string) ([]model.Post, error) {
	// Match on content, or on the author's username for authored posts.
	// instr over lower() keeps the match case-insensitive without LIKE
	// escaping concerns.
	rows, err := s.db.QueryContext(ctx, `
SELECT p.id, p.content, p.author_id, p.category, p.score, p.created_at, p.updated_at, u.username
FROM posts p
LEFT JOIN users u ON u.id = p.author_id
WHERE instr(lower(p.content), lower(?)) > 0
   OR (u.username IS NOT NULL AND instr(lower(u.username), lower(?)) > 0)
ORDER BY p.created_at DESC, p.id DESC
`, query, query)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

func (s *Store) UpdatePostContent(ctx context.Context, id, authorID int64, content string) error {
	// Ownership rides in the same statement as the mutation, so a post
	// whose author changed (or never existed) can't be written between
	// check and update. author_id IS NULL never matches, which is what
	// makes authorless posts immutable.
	res, err := s.db.ExecContext(ctx, `
UPDATE posts SET content = ?, updated_at = ?
WHERE id = ? AND author_id = ?
`, content, time.Now().Unix(), id, authorID)
	if err != nil {
		return wrapErr(err)
	}
	if rows, _ := res.RowsAffected(); rows > 0 {
		return nil
	}

	// Disambiguate: missing post vs. someone else's post.
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return wrapErr(err)
	}
	return store.ErrNotOwner
}

func (s *Store) DeletePost(ctx context.Context, id, callerID int64, override bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var authorID sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT author_id FROM posts WHERE id = ?`, id).Scan(&authorID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return wrapErr(err)
	}
	if !override && (!authorID.Valid || authorID.Int64 != callerID) {
		return store.ErrNotOwner
	}

	// Votes go with the post, in the same transaction, so no vote row
	// ever references a deleted post.
	if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE post_id = ?`, id); err != nil {
		return wrapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id); err != nil {
		return wrapErr(err)
	}
	return tx.Commit()
}

// ----------------------------------------------------------------------------
// Votes

// CastVote runs the whole protocol in one transaction: post existence,
// standing-vote lookup, vote-row mutation and the matching score delta
// commit together or not at all. SQLite's single-writer lock gives the
// per-(user,post) linear history; the unique (post_id, user_id) index
// backs it across processes.
func (s *Store) CastVote(ctx context.Context, userID, postID int64, value int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var score int
	err = tx.QueryRowContext(ctx, `SELECT score FROM posts WHERE id = ?`, postID).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, wrapErr(err)
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
SELECT value FROM votes WHERE post_id = ? AND user_id = ?
`, postID, userID).Scan(&existing)

	var delta int
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
INSERT INTO votes (post_id, user_id, value, created_at)
VALUES (?, ?, ?, ?)
`, postID, userID, value, time.Now().Unix())
		if err != nil {
			if isUniqueViolation(err) {
				return 0, store.ErrDuplicateVote
			}
			return 0, wrapErr(err)
		}
		delta = value
	case err != nil:
		return 0, wrapErr(err)
	case existing == value:
		// Repeat of an already-standing vote. Surfaced, not swallowed.
		return 0, store.ErrDuplicateVote
	default:
		_, err = tx.ExecContext(ctx, `
UPDATE votes SET value = ?, created_at = ? WHERE post_id = ? AND user_id = ?
`, value, time.Now().Unix(), postID, userID)
		if err != nil {
			return 0, wrapErr(err)
		}
		// Reverse the prior contribution and apply the new one.
		delta = 2 * value
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE posts SET score = score + ? WHERE id = ?
`, delta, postID); err != nil {
		return 0, wrapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, wrapErr(err)
	}
	return score + delta, nil
}

func (s *Store) GetVote(ctx context.Context, userID, postID int64) (model.Vote, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, post_id, user_id, value, created_at
FROM votes
WHERE post_id = ? AND user_id = ?
`, postID, userID)
	var v model.Vote
	var created int64
	if err := row.Scan(&v.ID, &v.PostID, &v.UserID, &v.Value, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Vote{}, store.ErrNotFound
		}
		return model.Vote{}, wrapErr(err)
	}
	v.CreatedAt = time.Unix(created, 0)
	return v, nil
}

func (s *Store) SumVotes(ctx context.Context, postID int64) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(value), 0) FROM votes WHERE post_id = ?
`, postID).Scan(&sum)
	if err != nil {
		return 0, wrapErr(err)
	}
	return sum, nil
}

// ----------------------------------------------------------------------------
// Helpers

func scanUser(scanner interface{ Scan(dest ...any) error }) (model.User, error) {
	var u model.User
	var firstname, lastname, bio, location, refresh sql.NullString
	var isAdmin int
	var created int64
	var refreshExp sql.NullInt64
	err := scanner.Scan(&u.ID, &firstname, &lastname, &u.Username, &u.Email, &u.PasswordHash,
		&bio, &location, &isAdmin, &created, &refresh, &refreshExp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, wrapErr(err)
	}
	u.FirstName = firstname.String
	u.LastName = lastname.String
	u.Bio = bio.String
	u.Location = location.String
	u.IsAdmin = isAdmin == 1
	u.CreatedAt = time.Unix(created, 0)
	u.RefreshToken = refresh.String
	if refreshExp.Valid {
		t := time.Unix(refreshExp.Int64, 0)
		u.RefreshExpiresAt = &t
	}
	return u, nil
}

func scanPost(scanner interface{ Scan(dest ...any) error }) (model.Post, error) {
	var p model.Post
	var authorID sql.NullInt64
	var authorName sql.NullString
	var created, updated int64
	err := scanner.Scan(&p.ID, &p.Content, &authorID, &p.Category, &p.Score, &created, &updated, &authorName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, store.ErrNotFound
		}
		return model.Post{}, wrapErr(err)
	}
	if authorID.Valid {
		id := authorID.Int64
		p.AuthorID = &id
	}
	if authorName.Valid {
		p.AuthorName = authorName.String
	}
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	return p, nil
}

func collectPosts(rows *sql.Rows) ([]model.Post, error) {
	var posts []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

// wrapErr marks context failures (deadline, cancellation) as transient
// so callers can distinguish a retryable outage from a hard failure.
func wrapErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
