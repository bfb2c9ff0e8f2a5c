package federation

import (
	"context"
	"errors"
	"fmt"

	"github.com/vitalvas/federa/resolver"
)

var (
	// ErrNotFound is returned by a Store for missing records.
	ErrNotFound = fmt.Errorf("federation: %w", resolver.ErrNotFound)

	// ErrUnauthorized is returned when an actor acts on something it does
	// not own.
	ErrUnauthorized = errors.New("federation: actor is not allowed to do this")
)

// Store persists federation records. Every Insert method is
// insert-if-absent keyed by APURL: when a record with the same APURL
// exists, it is returned unchanged and the argument is ignored.
type Store interface {
	InsertUser(ctx context.Context, u *User) (*User, error)
	FindUserByID(ctx context.Context, id int64) (*User, error)
	FindUserByURL(ctx context.Context, apURL string) (*User, error)
	FindLocalUser(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id int64) error

	InsertBlog(ctx context.Context, b *Blog) (*Blog, error)
	FindBlogByURL(ctx context.Context, apURL string) (*Blog, error)

	InsertPost(ctx context.Context, p *Post) (*Post, error)
	FindPostByID(ctx context.Context, id int64) (*Post, error)
	FindPostByURL(ctx context.Context, apURL string) (*Post, error)
	UpdatePost(ctx context.Context, p *Post) error
	DeletePost(ctx context.Context, id int64) error

	InsertComment(ctx context.Context, c *Comment) (*Comment, error)
	FindCommentByURL(ctx context.Context, apURL string) (*Comment, error)
	DeleteComment(ctx context.Context, id int64) error

	InsertLike(ctx context.Context, l *Like) (*Like, error)
	FindLikeByURL(ctx context.Context, apURL string) (*Like, error)
	DeleteLike(ctx context.Context, id int64) error

	InsertReshare(ctx context.Context, r *Reshare) (*Reshare, error)
	FindReshareByURL(ctx context.Context, apURL string) (*Reshare, error)
	DeleteReshare(ctx context.Context, id int64) error

	InsertFollow(ctx context.Context, f *Follow) (*Follow, error)
	FindFollowByURL(ctx context.Context, apURL string) (*Follow, error)
	DeleteFollow(ctx context.Context, id int64) error
	Followers(ctx context.Context, userID int64) ([]*User, error)

	InsertNotification(ctx context.Context, n *Notification) error
	Notifications(ctx context.Context, userID int64) ([]*Notification, error)
}

// Indexer keeps the search index in step with posts.
type Indexer interface {
	Index(ctx context.Context, p *Post) error
	Remove(ctx context.Context, p *Post) error
}

// Notifier tells local users about interactions.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

type nopIndexer struct{}

func (nopIndexer) Index(context.Context, *Post) error  { return nil }
func (nopIndexer) Remove(context.Context, *Post) error { return nil }

// storeNotifier records notifications in the store.
type storeNotifier struct {
	store Store
}

func (n storeNotifier) Notify(ctx context.Context, note *Notification) error {
	return n.store.InsertNotification(ctx, note)
}
