// Package memory is an in-process federation.Store. Records are copied
// in and out, so callers never share state with the store.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/vitalvas/federa/federation"
)

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	users         map[int64]federation.User
	blogs         map[int64]federation.Blog
	posts         map[int64]federation.Post
	comments      map[int64]federation.Comment
	likes         map[int64]federation.Like
	reshares      map[int64]federation.Reshare
	follows       map[int64]federation.Follow
	notifications []federation.Notification

	// byURL maps an APURL to its id, per table.
	byURL map[string]map[string]int64
}

var _ federation.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[int64]federation.User),
		blogs:    make(map[int64]federation.Blog),
		posts:    make(map[int64]federation.Post),
		comments: make(map[int64]federation.Comment),
		likes:    make(map[int64]federation.Like),
		reshares: make(map[int64]federation.Reshare),
		follows:  make(map[int64]federation.Follow),
		byURL:    make(map[string]map[string]int64),
	}
}

func (s *Store) lookup(table, apURL string) (int64, bool) {
	id, ok := s.byURL[table][apURL]

	return id, ok
}

func (s *Store) claim(table, apURL string) int64 {
	if s.byURL[table] == nil {
		s.byURL[table] = make(map[string]int64)
	}

	s.nextID++
	s.byURL[table][apURL] = s.nextID

	return s.nextID
}

func (s *Store) release(table, apURL string) {
	delete(s.byURL[table], apURL)
}

func cloneUser(u federation.User) *federation.User { return &u }

func clonePost(p federation.Post) *federation.Post {
	p.AuthorIDs = slices.Clone(p.AuthorIDs)
	p.Tags = slices.Clone(p.Tags)

	return &p
}

func (s *Store) InsertUser(_ context.Context, u *federation.User) (*federation.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.lookup("users", u.APURL); ok {
		return cloneUser(s.users[id]), nil
	}

	v := *u
	v.ID = s.claim("users", u.APURL)

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	s.users[v.ID] = v

	return cloneUser(v), nil
}

func (s *Store) FindUserByID(_ context.Context, id int64) (*federation.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, federation.ErrNotFound
	}

	return cloneUser(u), nil
}

func (s *Store) FindUserByURL(ctx context.Context, apURL string) (*federation.User, error) {
	s.mu.RLock()
	id, ok := s.lookup("users", apURL)
	s.mu.RUnlock()

	if !ok {
		return nil, federation.ErrNotFound
	}

	return s.FindUserByID(ctx, id)
}

func (s *Store) FindLocalUser(_ context.Context, username string) (*federation.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Local && u.Username == username {
			return cloneUser(u), nil
		}
	}

	return nil, federation.ErrNotFound
}

func (s *Store) UpdateUser(_ context.Context, u *federation.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.users[u.ID]
	if !ok {
		return federation.ErrNotFound
	}

	v := *u
	v.APURL = old.APURL
	s.users[u.ID] = v

	return nil
}

// DeleteUser removes the user with its follows, likes, reshares and
// comments.
func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return federation.ErrNotFound
	}

	delete(s.users, id)
	s.release("users", u.APURL)

	for fid, f := range s.follows {
		if f.FollowerID == id || f.FollowingID == id {
			delete(s.follows, fid)
			s.release("follows", f.APURL)
		}
	}

	for lid, l := range s.likes {
		if l.UserID == id {
			delete(s.likes, lid)
			s.release("likes", l.APURL)
		}
	}

	for rid, r := range s.reshares {
		if r.UserID == id {
			delete(s.reshares, rid)
			s.release("reshares", r.APURL)
		}
	}

	for cid, c := range s.comments {
		if c.AuthorID == id {
			delete(s.comments, cid)
			s.release("comments", c.APURL)
		}
	}

	return nil
}

func (s *Store) InsertBlog(_ context.Context, b *federation.Blog) (*federation.Blog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.lookup("blogs", b.APURL); ok {
		v := s.blogs[id]
		return &v, nil
	}

	v := *b
	v.ID = s.claim("blogs", b.APURL)
	s.blogs[v.ID] = v

	return &v, nil
}

func (s *Store) FindBlogByURL(_ context.Context, apURL string) (*federation.Blog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.lookup("blogs", apURL)
	if !ok {
		return nil, federation.ErrNotFound
	}

	v := s.blogs[id]

	return &v, nil
}

func (s *Store) InsertPost(_ context.Context, p *federation.Post) (*federation.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.lookup("posts", p.APURL); ok {
		return clonePost(s.posts[id]), nil
	}

	v := *clonePost(*p)
	v.ID = s.claim("posts", p.APURL)
	s.posts[v.ID] = v

	return clonePost(v), nil
}

func (s *Store) FindPostByID(_ context.Context, id int64) (*federation.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, federation.ErrNotFound
	}

	return clonePost(p), nil
}

func (s *Store) FindPostByURL(ctx context.Context, apURL string) (*federation.Post, error) {
	s.mu.RLock()
	id, ok := s.lookup("posts", apURL)
	s.mu.RUnlock()

	if !ok {
		return nil, federation.ErrNotFound
	}

	return s.FindPostByID(ctx, id)
}

func (s *Store) UpdatePost(_ context.Context, p *federation.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.posts[p.ID]
	if !ok {
		return federation.ErrNotFound
	}

	v := *clonePost(*p)
	v.APURL = old.APURL
	v.UpdatedAt = time.Now().UTC()
	s.posts[p.ID] = v

	return nil
}

// DeletePost removes the post with its comments, likes and reshares.
func (s *Store) DeletePost(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return federation.ErrNotFound
	}

	delete(s.posts, id)
	s.release("posts", p.APURL)

	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
			s.release("comments", c.APURL)
		}
	}

	for lid, l := range s.likes {
		if l.PostID == id {
			delete(s.likes, lid)
			s.release("likes", l.APURL)
		}
	}

	for rid, r := range s.reshares {
		if r.PostID == id {
			delete(s.reshares, rid)
			s.release("reshares", r.APURL)
		}
	}

	return nil
}

func (s *Store) InsertComment(_ context.Context, c *federation.Comment) (*federation.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.lookup("comments", c.APURL); ok {
		v := s.comments[id]
		return &v, nil
	}

	v := *c
	v.ID = s.claim("comments", c.APURL)
	s.comments[v.ID] = v

	return &v, nil
}

func (s *Store) FindCommentByURL(_ context.Context, apURL string) (*federation.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.lookup("comments", apURL)
	if !ok {
		return nil, federation.ErrNotFound
	}

	v := s.comments[id]

	return &v, nil
}

func (s *Store) DeleteComment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return federation.ErrNotFound
	}

	delete(s.comments, id)
	s.release("comments", c.APURL)

	return nil
}

func (s *Store) InsertLike(_ context.Context, l *federation.Like) (*federation.Like, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.lookup("likes", l.APURL); ok {
		v := s.likes[id]
		return &v, nil
	}

	v := *l
	v.ID = s.claim("likes", l.APURL)
	s.likes[v.ID] = v

	return &v, nil
}

func (s *Store) FindLikeByURL(_ context.Context, apURL string) (*federation.Like, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.lookup("likes", apURL)
	if !ok {
		return nil, federation.ErrNotFound
	}

	v := s.likes[id]

	return &v, nil
}

func (s *Store) DeleteLike(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.likes[id]
	if !ok {
		return federation.ErrNotFound
	}

	delete(s.likes, id)
	s.release("likes", l.APURL)

	return nil
}

func (s *Store) InsertReshare(_ context.Context, r *federation.Reshare) (*federation.Reshare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.lookup("reshares", r.APURL); ok {
		v := s.reshares[id]
		return &v, nil
	}

	v := *r
	v.ID = s.claim("reshares", r.APURL)
	s.reshares[v.ID] = v

	return &v, nil
}

func (s *Store) FindReshareByURL(_ context.Context, apURL string) (*federation.Reshare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.lookup("reshares", apURL)
	if !ok {
		return nil, federation.ErrNotFound
	}

	v := s.reshares[id]

	return &v, nil
}

func (s *Store) DeleteReshare(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reshares[id]
	if !ok {
		return federation.ErrNotFound
	}

	delete(s.reshares, id)
	s.release("reshares", r.APURL)

	return nil
}

func (s *Store) InsertFollow(_ context.Context, f *federation.Follow) (*federation.Follow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.lookup("follows", f.APURL); ok {
		v := s.follows[id]
		return &v, nil
	}

	v := *f
	v.ID = s.claim("follows", f.APURL)
	s.follows[v.ID] = v

	return &v, nil
}

func (s *Store) FindFollowByURL(_ context.Context, apURL string) (*federation.Follow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.lookup("follows", apURL)
	if !ok {
		return nil, federation.ErrNotFound
	}

	v := s.follows[id]

	return &v, nil
}

func (s *Store) DeleteFollow(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.follows[id]
	if !ok {
		return federation.ErrNotFound
	}

	delete(s.follows, id)
	s.release("follows", f.APURL)

	return nil
}

// Followers returns the users following userID, ordered by id.
func (s *Store) Followers(_ context.Context, userID int64) ([]*federation.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*federation.User

	for _, f := range s.follows {
		if f.FollowingID != userID {
			continue
		}

		if u, ok := s.users[f.FollowerID]; ok {
			out = append(out, cloneUser(u))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (s *Store) InsertNotification(_ context.Context, n *federation.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := *n
	s.nextID++
	v.ID = s.nextID

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	s.notifications = append(s.notifications, v)

	return nil
}

func (s *Store) Notifications(_ context.Context, userID int64) ([]*federation.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*federation.Notification

	for _, n := range s.notifications {
		if n.UserID == userID {
			v := n
			out = append(out, &v)
		}
	}

	return out, nil
}
