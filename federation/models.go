package federation

import (
	"slices"
	"time"
)

// User is a local or remote actor. Instance and service actors are users
// too, distinguished by Type.
type User struct {
	ID             int64
	APURL          string
	Type           string
	Username       string
	Domain         string
	DisplayName    string
	Summary        string
	InboxURL       string
	SharedInboxURL string
	OutboxURL      string
	FollowersURL   string
	PublicKeyPEM   string
	PrivateKeyPEM  string
	Local          bool
	CreatedAt      time.Time
}

func (u *User) IsLocal() bool       { return u.Local }
func (u *User) Inbox() string       { return u.InboxURL }
func (u *User) SharedInbox() string { return u.SharedInboxURL }

// KeyID is the id of the user's main key.
func (u *User) KeyID() string { return u.APURL + "#main-key" }

// Blog is a Group actor that posts are published in.
type Blog struct {
	ID           int64
	APURL        string
	Name         string
	Domain       string
	Title        string
	Summary      string
	InboxURL     string
	OutboxURL    string
	PublicKeyPEM string
	Local        bool
	CreatedAt    time.Time
}

// Post is an Article published in a blog.
type Post struct {
	ID        int64
	APURL     string
	BlogID    int64
	AuthorIDs []int64
	Title     string
	Content   string
	Summary   string
	License   string
	SourceURL string
	Tags      []string
	Published time.Time
	UpdatedAt time.Time
}

// HasAuthor reports whether userID is one of the post's authors.
func (p *Post) HasAuthor(userID int64) bool {
	return slices.Contains(p.AuthorIDs, userID)
}

// Comment is a Note replying to a post or to another comment.
type Comment struct {
	ID           int64
	APURL        string
	PostID       int64
	InResponseTo int64
	AuthorID     int64
	Content      string
	SpoilerText  string

	// Sensitive is set by the sensitive flag or by a content warning in
	// the summary.
	Sensitive bool
	Published time.Time
}

// Like records that a user liked a post.
type Like struct {
	ID     int64
	APURL  string
	UserID int64
	PostID int64
}

// Reshare records that a user announced a post.
type Reshare struct {
	ID     int64
	APURL  string
	UserID int64
	PostID int64
}

// Follow records that follower follows following.
type Follow struct {
	ID          int64
	APURL       string
	FollowerID  int64
	FollowingID int64
}

// Notification kinds.
const (
	NotifyComment = "comment"
	NotifyFollow  = "follow"
	NotifyLike    = "like"
	NotifyReshare = "reshare"
)

// Notification tells a local user about an interaction.
type Notification struct {
	ID        int64
	UserID    int64
	Kind      string
	ObjectID  int64
	CreatedAt time.Time
}

// PostUpdate carries the fields of an Update activity. It is never
// stored. Nil fields are left unchanged.
type PostUpdate struct {
	APURL   string
	Title   *string
	Content *string
	Summary *string
	License *string
	Tags    []string
}
