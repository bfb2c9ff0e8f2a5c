package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/vitalvas/federa/activity"
	"github.com/vitalvas/federa/resolver"
)

// Users is the resolver kind for Person, Service and Application actors.
func (fc *Context) Users() resolver.Kind[*User] { return userKind{fc: fc} }

// Blogs is the resolver kind for Group actors.
func (fc *Context) Blogs() resolver.Kind[*Blog] { return blogKind{fc: fc} }

// Posts is the resolver kind for Articles.
func (fc *Context) Posts() resolver.Kind[*Post] { return postKind{fc: fc} }

// Comments is the resolver kind for Notes replying to a post or comment.
func (fc *Context) Comments() resolver.Kind[*Comment] { return commentKind{fc: fc} }

// Likes is the resolver kind for Like activities.
func (fc *Context) Likes() resolver.Kind[*Like] { return likeKind{fc: fc} }

// Reshares is the resolver kind for Announce activities.
func (fc *Context) Reshares() resolver.Kind[*Reshare] { return reshareKind{fc: fc} }

// Follows is the resolver kind for Follow activities.
func (fc *Context) Follows() resolver.Kind[*Follow] { return followKind{fc: fc} }

// PostUpdates is the resolver kind for the object of Update activities.
func (fc *Context) PostUpdates() resolver.Kind[*PostUpdate] { return postUpdateKind{} }

func shapeError(want, got string) error {
	return fmt.Errorf("%w: want %s, got %q", resolver.ErrShape, want, got)
}

type userKind struct{ fc *Context }

func (userKind) Name() string { return "user" }

func (k userKind) FindLocal(ctx context.Context, id string) (*User, error) {
	return k.fc.Store.FindUserByURL(ctx, id)
}

func (k userKind) FromActivity(ctx context.Context, doc []byte) (*User, error) {
	u, err := decodeUser(doc)
	if err != nil {
		return nil, err
	}

	return k.fc.Store.InsertUser(ctx, u)
}

func decodeUser(doc []byte) (*User, error) {
	a, err := activity.DecodeActor(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", resolver.ErrShape, err)
	}

	switch a.Type {
	case activity.Person, activity.Service, activity.Application:
	default:
		return nil, shapeError("Person", a.Type)
	}

	u := &User{
		APURL:        a.ID,
		Type:         a.Type,
		Username:     a.PreferredUsername,
		Domain:       activity.ID(a.ID).Host(),
		DisplayName:  a.Name,
		Summary:      a.Summary,
		InboxURL:     a.Inbox,
		OutboxURL:    a.Outbox,
		FollowersURL: a.Followers,
		PublicKeyPEM: a.PublicKey.PublicKeyPEM,
		CreatedAt:    time.Now().UTC(),
	}

	if a.Endpoints != nil {
		u.SharedInboxURL = a.Endpoints.SharedInbox
	}

	return u, nil
}

// refreshingUsers materializes users like userKind but overwrites the
// stored copy, so a rotated key replaces the old one.
type refreshingUsers struct{ fc *Context }

func (refreshingUsers) Name() string { return "user" }

func (k refreshingUsers) FindLocal(ctx context.Context, id string) (*User, error) {
	return k.fc.Store.FindUserByURL(ctx, id)
}

func (k refreshingUsers) FromActivity(ctx context.Context, doc []byte) (*User, error) {
	fresh, err := decodeUser(doc)
	if err != nil {
		return nil, err
	}

	stored, err := k.fc.Store.InsertUser(ctx, fresh)
	if err != nil {
		return nil, err
	}

	if stored.Local {
		return stored, nil
	}

	fresh.ID = stored.ID
	fresh.CreatedAt = stored.CreatedAt

	if err := k.fc.Store.UpdateUser(ctx, fresh); err != nil {
		return nil, err
	}

	return fresh, nil
}

type blogKind struct{ fc *Context }

func (blogKind) Name() string { return "blog" }

func (k blogKind) FindLocal(ctx context.Context, id string) (*Blog, error) {
	return k.fc.Store.FindBlogByURL(ctx, id)
}

func (k blogKind) FromActivity(ctx context.Context, doc []byte) (*Blog, error) {
	a, err := activity.DecodeActor(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", resolver.ErrShape, err)
	}

	if a.Type != activity.Group {
		return nil, shapeError("Group", a.Type)
	}

	title := a.Name
	if title == "" {
		title = a.PreferredUsername
	}

	return k.fc.Store.InsertBlog(ctx, &Blog{
		APURL:        a.ID,
		Name:         a.PreferredUsername,
		Domain:       activity.ID(a.ID).Host(),
		Title:        title,
		Summary:      a.Summary,
		InboxURL:     a.Inbox,
		OutboxURL:    a.Outbox,
		PublicKeyPEM: a.PublicKey.PublicKeyPEM,
		CreatedAt:    time.Now().UTC(),
	})
}

type postKind struct{ fc *Context }

func (postKind) Name() string { return "post" }

func (k postKind) FindLocal(ctx context.Context, id string) (*Post, error) {
	return k.fc.Store.FindPostByURL(ctx, id)
}

// FromActivity stores an Article. Its attributedTo must name exactly one
// blog and at least one author.
func (k postKind) FromActivity(ctx context.Context, doc []byte) (*Post, error) {
	o, err := activity.DecodeObject(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", resolver.ErrShape, err)
	}

	if o.Type != activity.Article {
		return nil, shapeError("Article", o.Type)
	}

	var (
		blog    *Blog
		authors []int64
	)

	for _, id := range o.AttributedToIDs() {
		u, b, err := k.attribution(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("attributedTo %s: %w", id, err)
		}

		if u != nil {
			authors = append(authors, u.ID)
			continue
		}

		if blog != nil && blog.ID != b.ID {
			return nil, fmt.Errorf("%w: post is attributed to several blogs", resolver.ErrShape)
		}

		blog = b
	}

	if blog == nil {
		return nil, fmt.Errorf("%w: post is not attributed to a blog", resolver.ErrShape)
	}

	if len(authors) == 0 {
		return nil, fmt.Errorf("%w: post has no author", resolver.ErrShape)
	}

	published := time.Now().UTC()
	if o.Published != nil {
		published = o.Published.UTC()
	}

	p, err := k.fc.Store.InsertPost(ctx, &Post{
		APURL:     o.ID,
		BlogID:    blog.ID,
		AuthorIDs: authors,
		Title:     o.Name,
		Content:   o.Content,
		Summary:   o.Summary,
		License:   licenseOf(doc),
		SourceURL: o.URL,
		Tags:      hashtags(o.Tag),
		Published: published,
	})
	if err != nil {
		return nil, err
	}

	if err := k.fc.Indexer.Index(ctx, p); err != nil {
		k.fc.Logger.Warn("indexing post failed", zap.String("post", p.APURL), zap.Error(err))
	}

	return p, nil
}

// attribution resolves one attributedTo entry to either a user or a blog,
// fetching it at most once.
func (k postKind) attribution(ctx context.Context, id string) (*User, *Blog, error) {
	if u, err := k.fc.Store.FindUserByURL(ctx, id); err == nil {
		return u, nil, nil
	}

	if b, err := k.fc.Store.FindBlogByURL(ctx, id); err == nil {
		return nil, b, nil
	}

	if k.fc.Fetcher == nil {
		return nil, nil, &resolver.Error{Kind: resolver.DerefFailed, ID: id, Err: errors.New("no fetcher")}
	}

	doc, err := k.fc.Fetcher.Fetch(ctx, id)
	if err != nil {
		return nil, nil, &resolver.Error{Kind: resolver.DerefFailed, ID: id, Err: err}
	}

	switch typ := gjson.GetBytes(doc, "type").String(); typ {
	case activity.Group:
		b, err := resolver.Resolve(ctx, k.fc.Blogs(), nil, id, doc)
		return nil, b, err
	case activity.Person, activity.Service, activity.Application:
		u, err := resolver.Resolve(ctx, k.fc.Users(), nil, id, doc)
		return u, nil, err
	default:
		return nil, nil, &resolver.Error{Kind: resolver.InvalidDocument, ID: id, JSON: doc, Err: shapeError("Person or Group", typ)}
	}
}

type commentKind struct{ fc *Context }

func (commentKind) Name() string { return "comment" }

func (k commentKind) FindLocal(ctx context.Context, id string) (*Comment, error) {
	return k.fc.Store.FindCommentByURL(ctx, id)
}

// FromActivity stores a Note whose inReplyTo is a post or a comment. A
// comment has exactly one author.
func (k commentKind) FromActivity(ctx context.Context, doc []byte) (*Comment, error) {
	o, err := activity.DecodeObject(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", resolver.ErrShape, err)
	}

	if o.Type != activity.Note {
		return nil, shapeError("Note", o.Type)
	}

	parent := o.InReplyToID()
	if parent == "" {
		return nil, fmt.Errorf("%w: comment has no inReplyTo", resolver.ErrShape)
	}

	authors := o.AttributedToIDs()
	switch len(authors) {
	case 0:
		return nil, fmt.Errorf("%w: comment has no author", resolver.ErrShape)
	case 1:
	default:
		return nil, fmt.Errorf("%w: comment has %d authors", resolver.ErrShape, len(authors))
	}

	author, err := k.fc.ResolveActor(ctx, authors[0], nil)
	if err != nil {
		return nil, err
	}

	c := &Comment{
		APURL:       o.ID,
		AuthorID:    author.ID,
		Content:     o.Content,
		SpoilerText: o.Summary,
		Sensitive:   o.Sensitive || o.Summary != "",
		Published:   time.Now().UTC(),
	}

	if o.Published != nil {
		c.Published = o.Published.UTC()
	}

	if post, err := resolver.Resolve(ctx, k.fc.Posts(), k.fc.Fetcher, parent, nil); err == nil {
		c.PostID = post.ID
	} else {
		reply, cerr := resolver.Resolve(ctx, k.fc.Comments(), k.fc.Fetcher, parent, nil)
		if cerr != nil {
			return nil, fmt.Errorf("inReplyTo %s: %w", parent, errors.Join(err, cerr))
		}

		c.PostID = reply.PostID
		c.InResponseTo = reply.ID
	}

	return k.fc.Store.InsertComment(ctx, c)
}

// interaction reads the actor and object of a Like, Announce or Follow
// activity.
func interaction(doc []byte, verb string) (id, actor, object string, err error) {
	env, err := activity.Parse(doc)
	if err != nil {
		return "", "", "", err
	}

	if env.Type() != verb {
		return "", "", "", shapeError(verb, env.Type())
	}

	id, ok := env.ID()
	if !ok {
		return "", "", "", fmt.Errorf("%w: %s has no id", resolver.ErrShape, verb)
	}

	actor, ok = env.ActorID()
	if !ok {
		return "", "", "", fmt.Errorf("%w: %s has no actor", resolver.ErrShape, verb)
	}

	object, ok = env.ObjectID()
	if !ok {
		return "", "", "", fmt.Errorf("%w: %s has no object", resolver.ErrShape, verb)
	}

	return id, actor, object, nil
}

type likeKind struct{ fc *Context }

func (likeKind) Name() string { return "like" }

func (k likeKind) FindLocal(ctx context.Context, id string) (*Like, error) {
	return k.fc.Store.FindLikeByURL(ctx, id)
}

func (k likeKind) FromActivity(ctx context.Context, doc []byte) (*Like, error) {
	id, actorID, objectID, err := interaction(doc, activity.Like)
	if err != nil {
		return nil, err
	}

	actor, err := k.fc.ResolveActor(ctx, actorID, nil)
	if err != nil {
		return nil, err
	}

	post, err := resolver.Resolve(ctx, k.fc.Posts(), k.fc.Fetcher, objectID, nil)
	if err != nil {
		return nil, err
	}

	return k.fc.Store.InsertLike(ctx, &Like{APURL: id, UserID: actor.ID, PostID: post.ID})
}

type reshareKind struct{ fc *Context }

func (reshareKind) Name() string { return "reshare" }

func (k reshareKind) FindLocal(ctx context.Context, id string) (*Reshare, error) {
	return k.fc.Store.FindReshareByURL(ctx, id)
}

func (k reshareKind) FromActivity(ctx context.Context, doc []byte) (*Reshare, error) {
	id, actorID, objectID, err := interaction(doc, activity.Announce)
	if err != nil {
		return nil, err
	}

	actor, err := k.fc.ResolveActor(ctx, actorID, nil)
	if err != nil {
		return nil, err
	}

	post, err := resolver.Resolve(ctx, k.fc.Posts(), k.fc.Fetcher, objectID, nil)
	if err != nil {
		return nil, err
	}

	return k.fc.Store.InsertReshare(ctx, &Reshare{APURL: id, UserID: actor.ID, PostID: post.ID})
}

type followKind struct{ fc *Context }

func (followKind) Name() string { return "follow" }

func (k followKind) FindLocal(ctx context.Context, id string) (*Follow, error) {
	return k.fc.Store.FindFollowByURL(ctx, id)
}

func (k followKind) FromActivity(ctx context.Context, doc []byte) (*Follow, error) {
	id, actorID, objectID, err := interaction(doc, activity.Follow)
	if err != nil {
		return nil, err
	}

	follower, err := k.fc.ResolveActor(ctx, actorID, nil)
	if err != nil {
		return nil, err
	}

	following, err := k.fc.ResolveActor(ctx, objectID, nil)
	if err != nil {
		return nil, err
	}

	return k.fc.Store.InsertFollow(ctx, &Follow{APURL: id, FollowerID: follower.ID, FollowingID: following.ID})
}

// storedOnly resolves records that are already stored and refuses to
// materialize new ones. An Undo names an activity it cancels, and that
// activity is only trusted once it was received from its own actor.
type storedOnly[T any] struct{ resolver.Kind[T] }

func (k storedOnly[T]) FromActivity(context.Context, []byte) (T, error) {
	var zero T
	return zero, fmt.Errorf("%w: %s is not stored", ErrNotFound, k.Name())
}

// postUpdateKind never finds anything locally: an update is only ever
// read from the activity carrying it.
type postUpdateKind struct{}

func (postUpdateKind) Name() string { return "post_update" }

func (postUpdateKind) FindLocal(context.Context, string) (*PostUpdate, error) {
	return nil, ErrNotFound
}

func (postUpdateKind) FromActivity(_ context.Context, doc []byte) (*PostUpdate, error) {
	o, err := activity.DecodeObject(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", resolver.ErrShape, err)
	}

	if o.Type != activity.Article {
		return nil, shapeError("Article", o.Type)
	}

	v := gjson.ParseBytes(doc)
	u := &PostUpdate{APURL: o.ID}

	optional := func(path string) *string {
		if r := v.Get(path); r.Type == gjson.String {
			s := r.Str
			return &s
		}

		return nil
	}

	u.Title = optional("name")
	u.Content = optional("content")
	u.Summary = optional("summary")
	u.License = optional("license")

	if v.Get("tag").Exists() {
		u.Tags = hashtags(o.Tag)
		if u.Tags == nil {
			u.Tags = []string{}
		}
	}

	return u, nil
}

func licenseOf(doc []byte) string {
	return gjson.GetBytes(doc, "license").String()
}

func hashtags(tags []activity.Tag) []string {
	var out []string

	for _, t := range tags {
		if t.Type != activity.Hashtag || t.Name == "" {
			continue
		}

		out = append(out, strings.TrimPrefix(t.Name, "#"))
	}

	return out
}
