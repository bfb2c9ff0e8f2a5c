// Package postgres is a federation.Store backed by PostgreSQL through
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vitalvas/federa/federation"
)

// Config holds the connection settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements federation.Store.
type Store struct {
	db *sql.DB
}

var _ federation.Store = (*Store)(nil)

// Open connects, pings and migrates the database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an open database without migrating it.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// notFound maps sql.ErrNoRows onto federation.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return federation.ErrNotFound
	}

	return err
}

// deleted reports ErrNotFound when a DELETE or UPDATE touched no row.
func deleted(res sql.Result, err error) error {
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return federation.ErrNotFound
	}

	return nil
}

// nonNil keeps lib/pq from encoding an empty list as NULL.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}

type scanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, ap_url, type, username, domain, display_name, summary, inbox_url,
	shared_inbox_url, outbox_url, followers_url, public_key, private_key, local, created_at`

func scanUser(row scanner) (*federation.User, error) {
	var u federation.User

	err := row.Scan(&u.ID, &u.APURL, &u.Type, &u.Username, &u.Domain, &u.DisplayName, &u.Summary,
		&u.InboxURL, &u.SharedInboxURL, &u.OutboxURL, &u.FollowersURL, &u.PublicKeyPEM,
		&u.PrivateKeyPEM, &u.Local, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	return &u, nil
}

func (s *Store) InsertUser(ctx context.Context, u *federation.User) (*federation.User, error) {
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (ap_url, type, username, domain, display_name, summary, inbox_url,
			shared_inbox_url, outbox_url, followers_url, public_key, private_key, local, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (ap_url) DO NOTHING`,
		u.APURL, u.Type, u.Username, u.Domain, u.DisplayName, u.Summary, u.InboxURL,
		u.SharedInboxURL, u.OutboxURL, u.FollowersURL, u.PublicKeyPEM, u.PrivateKeyPEM, u.Local, created)
	if err != nil {
		return nil, fmt.Errorf("postgres: insert user: %w", err)
	}

	return s.FindUserByURL(ctx, u.APURL)
}

func (s *Store) FindUserByID(ctx context.Context, id int64) (*federation.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) FindUserByURL(ctx context.Context, apURL string) (*federation.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE ap_url = $1`, apURL))
}

func (s *Store) FindLocalUser(ctx context.Context, username string) (*federation.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE local AND username = $1 ORDER BY id LIMIT 1`, username))
}

func (s *Store) UpdateUser(ctx context.Context, u *federation.User) error {
	return deleted(s.db.ExecContext(ctx, `
		UPDATE users SET type = $2, username = $3, display_name = $4, summary = $5, inbox_url = $6,
			shared_inbox_url = $7, outbox_url = $8, followers_url = $9, public_key = $10
		WHERE id = $1`,
		u.ID, u.Type, u.Username, u.DisplayName, u.Summary, u.InboxURL,
		u.SharedInboxURL, u.OutboxURL, u.FollowersURL, u.PublicKeyPEM))
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return deleted(s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id))
}

const blogColumns = `id, ap_url, name, domain, title, summary, inbox_url, outbox_url, public_key, local, created_at`

func scanBlog(row scanner) (*federation.Blog, error) {
	var b federation.Blog

	err := row.Scan(&b.ID, &b.APURL, &b.Name, &b.Domain, &b.Title, &b.Summary,
		&b.InboxURL, &b.OutboxURL, &b.PublicKeyPEM, &b.Local, &b.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	return &b, nil
}

func (s *Store) InsertBlog(ctx context.Context, b *federation.Blog) (*federation.Blog, error) {
	created := b.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blogs (ap_url, name, domain, title, summary, inbox_url, outbox_url, public_key, local, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (ap_url) DO NOTHING`,
		b.APURL, b.Name, b.Domain, b.Title, b.Summary, b.InboxURL, b.OutboxURL, b.PublicKeyPEM, b.Local, created)
	if err != nil {
		return nil, fmt.Errorf("postgres: insert blog: %w", err)
	}

	return s.FindBlogByURL(ctx, b.APURL)
}

func (s *Store) FindBlogByURL(ctx context.Context, apURL string) (*federation.Blog, error) {
	return scanBlog(s.db.QueryRowContext(ctx, `SELECT `+blogColumns+` FROM blogs WHERE ap_url = $1`, apURL))
}

const postColumns = `id, ap_url, blog_id, author_ids, title, content, summary, license, source_url, tags, published, updated_at`

func scanPost(row scanner) (*federation.Post, error) {
	var (
		p       federation.Post
		tags    pq.StringArray
		updated sql.NullTime
	)

	err := row.Scan(&p.ID, &p.APURL, &p.BlogID, pq.Array(&p.AuthorIDs), &p.Title, &p.Content,
		&p.Summary, &p.License, &p.SourceURL, &tags, &p.Published, &updated)
	if err != nil {
		return nil, notFound(err)
	}

	p.Tags = []string(tags)

	if updated.Valid {
		p.UpdatedAt = updated.Time
	}

	return &p, nil
}

func (s *Store) InsertPost(ctx context.Context, p *federation.Post) (*federation.Post, error) {
	published := p.Published
	if published.IsZero() {
		published = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (ap_url, blog_id, author_ids, title, content, summary, license, source_url, tags, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (ap_url) DO NOTHING`,
		p.APURL, p.BlogID, pq.Int64Array(nonNil(p.AuthorIDs)), p.Title, p.Content, p.Summary, p.License,
		p.SourceURL, pq.StringArray(nonNil(p.Tags)), published)
	if err != nil {
		return nil, fmt.Errorf("postgres: insert post: %w", err)
	}

	return s.FindPostByURL(ctx, p.APURL)
}

func (s *Store) FindPostByID(ctx context.Context, id int64) (*federation.Post, error) {
	return scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
}

func (s *Store) FindPostByURL(ctx context.Context, apURL string) (*federation.Post, error) {
	return scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE ap_url = $1`, apURL))
}

func (s *Store) UpdatePost(ctx context.Context, p *federation.Post) error {
	return deleted(s.db.ExecContext(ctx, `
		UPDATE posts SET title = $2, content = $3, summary = $4, license = $5, tags = $6, updated_at = now()
		WHERE id = $1`,
		p.ID, p.Title, p.Content, p.Summary, p.License, pq.StringArray(nonNil(p.Tags))))
}

func (s *Store) DeletePost(ctx context.Context, id int64) error {
	return deleted(s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id))
}

const commentColumns = `id, ap_url, post_id, in_response_to, author_id, content, spoiler_text, sensitive, published`

func (s *Store) InsertComment(ctx context.Context, c *federation.Comment) (*federation.Comment, error) {
	published := c.Published
	if published.IsZero() {
		published = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (ap_url, post_id, in_response_to, author_id, content, spoiler_text, sensitive, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ap_url) DO NOTHING`,
		c.APURL, c.PostID, c.InResponseTo, c.AuthorID, c.Content, c.SpoilerText, c.Sensitive, published)
	if err != nil {
		return nil, fmt.Errorf("postgres: insert comment: %w", err)
	}

	return s.FindCommentByURL(ctx, c.APURL)
}

func (s *Store) FindCommentByURL(ctx context.Context, apURL string) (*federation.Comment, error) {
	var c federation.Comment

	err := s.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE ap_url = $1`, apURL).
		Scan(&c.ID, &c.APURL, &c.PostID, &c.InResponseTo, &c.AuthorID, &c.Content, &c.SpoilerText, &c.Sensitive, &c.Published)
	if err != nil {
		return nil, notFound(err)
	}

	return &c, nil
}

func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	return deleted(s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id))
}

// interaction tables share one layout: id, ap_url, actor column, target
// column.
type interaction struct {
	table, actor, target string
}

var (
	likes    = interaction{"likes", "user_id", "post_id"}
	reshares = interaction{"reshares", "user_id", "post_id"}
	follows  = interaction{"follows", "follower_id", "following_id"}
)

func (s *Store) insertInteraction(ctx context.Context, t interaction, apURL string, actor, target int64) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (ap_url, %s, %s) VALUES ($1, $2, $3) ON CONFLICT (ap_url) DO NOTHING`,
		t.table, t.actor, t.target), apURL, actor, target)
	if err != nil {
		return fmt.Errorf("postgres: insert %s: %w", t.table, err)
	}

	return nil
}

func (s *Store) findInteraction(ctx context.Context, t interaction, apURL string) (id, actor, target int64, err error) {
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, %s, %s FROM %s WHERE ap_url = $1`, t.actor, t.target, t.table), apURL).
		Scan(&id, &actor, &target)

	return id, actor, target, notFound(err)
}

func (s *Store) deleteInteraction(ctx context.Context, t interaction, id int64) error {
	return deleted(s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.table), id))
}

func (s *Store) InsertLike(ctx context.Context, l *federation.Like) (*federation.Like, error) {
	if err := s.insertInteraction(ctx, likes, l.APURL, l.UserID, l.PostID); err != nil {
		return nil, err
	}

	return s.FindLikeByURL(ctx, l.APURL)
}

func (s *Store) FindLikeByURL(ctx context.Context, apURL string) (*federation.Like, error) {
	id, user, post, err := s.findInteraction(ctx, likes, apURL)
	if err != nil {
		return nil, err
	}

	return &federation.Like{ID: id, APURL: apURL, UserID: user, PostID: post}, nil
}

func (s *Store) DeleteLike(ctx context.Context, id int64) error {
	return s.deleteInteraction(ctx, likes, id)
}

func (s *Store) InsertReshare(ctx context.Context, r *federation.Reshare) (*federation.Reshare, error) {
	if err := s.insertInteraction(ctx, reshares, r.APURL, r.UserID, r.PostID); err != nil {
		return nil, err
	}

	return s.FindReshareByURL(ctx, r.APURL)
}

func (s *Store) FindReshareByURL(ctx context.Context, apURL string) (*federation.Reshare, error) {
	id, user, post, err := s.findInteraction(ctx, reshares, apURL)
	if err != nil {
		return nil, err
	}

	return &federation.Reshare{ID: id, APURL: apURL, UserID: user, PostID: post}, nil
}

func (s *Store) DeleteReshare(ctx context.Context, id int64) error {
	return s.deleteInteraction(ctx, reshares, id)
}

func (s *Store) InsertFollow(ctx context.Context, f *federation.Follow) (*federation.Follow, error) {
	if err := s.insertInteraction(ctx, follows, f.APURL, f.FollowerID, f.FollowingID); err != nil {
		return nil, err
	}

	return s.FindFollowByURL(ctx, f.APURL)
}

func (s *Store) FindFollowByURL(ctx context.Context, apURL string) (*federation.Follow, error) {
	id, follower, following, err := s.findInteraction(ctx, follows, apURL)
	if err != nil {
		return nil, err
	}

	return &federation.Follow{ID: id, APURL: apURL, FollowerID: follower, FollowingID: following}, nil
}

func (s *Store) DeleteFollow(ctx context.Context, id int64) error {
	return s.deleteInteraction(ctx, follows, id)
}

func (s *Store) Followers(ctx context.Context, userID int64) ([]*federation.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumnsPrefixed+`
		FROM follows f JOIN users u ON u.id = f.follower_id
		WHERE f.following_id = $1
		ORDER BY u.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*federation.User

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, u)
	}

	return out, rows.Err()
}

const userColumnsPrefixed = `u.id, u.ap_url, u.type, u.username, u.domain, u.display_name, u.summary, u.inbox_url,
	u.shared_inbox_url, u.outbox_url, u.followers_url, u.public_key, u.private_key, u.local, u.created_at`

func (s *Store) InsertNotification(ctx context.Context, n *federation.Notification) error {
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, kind, object_id, created_at) VALUES ($1, $2, $3, $4)`,
		n.UserID, n.Kind, n.ObjectID, created)
	if err != nil {
		return fmt.Errorf("postgres: insert notification: %w", err)
	}

	return nil
}

func (s *Store) Notifications(ctx context.Context, userID int64) ([]*federation.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, object_id, created_at FROM notifications WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*federation.Notification

	for rows.Next() {
		var n federation.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.ObjectID, &n.CreatedAt); err != nil {
			return nil, err
		}

		out = append(out, &n)
	}

	return out, rows.Err()
}
