package federation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vitalvas/federa/activity"
	"github.com/vitalvas/federa/broadcast"
	"github.com/vitalvas/federa/inbox"
)

// NewInbox returns the dispatcher for incoming activities. Routes are
// tried in the order below; the first whose actor and object resolve
// handles the activity.
func NewInbox(fc *Context) *inbox.Dispatcher[Result] {
	users, posts := fc.Users(), fc.Posts()
	f := fc.Fetcher

	return inbox.New[Result](fc.Logger.Named("inbox"), fc.Metrics).
		With(inbox.NewRoute(activity.Announce, users, posts, f, fc.announcePost)).
		With(inbox.NewRoute(activity.Create, users, fc.Comments(), f, fc.createComment)).
		With(inbox.NewRoute(activity.Create, users, posts, f, fc.createPost)).
		With(inbox.NewRoute(activity.Delete, users, fc.Comments(), f, fc.deleteComment)).
		With(inbox.NewRoute(activity.Delete, users, posts, f, fc.deletePost)).
		With(inbox.NewRoute(activity.Delete, users, users, f, fc.deleteUser)).
		With(inbox.NewRoute(activity.Follow, users, users, f, fc.followUser)).
		With(inbox.NewRoute(activity.Like, users, posts, f, fc.likePost)).
		With(inbox.NewRoute[*User, *Reshare](activity.Undo, users, storedOnly[*Reshare]{fc.Reshares()}, f, fc.undoReshare)).
		With(inbox.NewRoute[*User, *Follow](activity.Undo, users, storedOnly[*Follow]{fc.Follows()}, f, fc.undoFollow)).
		With(inbox.NewRoute[*User, *Like](activity.Undo, users, storedOnly[*Like]{fc.Likes()}, f, fc.undoLike)).
		With(inbox.NewRoute(activity.Update, users, fc.PostUpdates(), f, fc.updatePost))
}

func (fc *Context) announcePost(ctx context.Context, actor *User, post *Post, id string) (Result, error) {
	r, err := fc.Store.InsertReshare(ctx, &Reshare{APURL: id, UserID: actor.ID, PostID: post.ID})
	if err != nil {
		return Result{}, err
	}

	fc.notifyAuthors(ctx, post, NotifyReshare, r.ID)

	return Result{Kind: Reshared, Reshare: r}, nil
}

func (fc *Context) createComment(ctx context.Context, actor *User, c *Comment, _ string) (Result, error) {
	if c.AuthorID != actor.ID {
		return Result{}, ErrUnauthorized
	}

	post, err := fc.Store.FindPostByID(ctx, c.PostID)
	if err == nil {
		fc.notifyAuthors(ctx, post, NotifyComment, c.ID)
	}

	return Result{Kind: Commented, Comment: c}, nil
}

func (fc *Context) createPost(_ context.Context, _ *User, p *Post, _ string) (Result, error) {
	return Result{Kind: Posted, Post: p}, nil
}

func (fc *Context) deleteComment(ctx context.Context, actor *User, c *Comment, _ string) (Result, error) {
	if c.AuthorID != actor.ID {
		return Result{}, ErrUnauthorized
	}

	if err := fc.Store.DeleteComment(ctx, c.ID); err != nil {
		return Result{}, err
	}

	return Result{Kind: Other}, nil
}

func (fc *Context) deletePost(ctx context.Context, actor *User, p *Post, _ string) (Result, error) {
	if !p.HasAuthor(actor.ID) {
		return Result{}, ErrUnauthorized
	}

	if err := fc.Store.DeletePost(ctx, p.ID); err != nil {
		return Result{}, err
	}

	if err := fc.Indexer.Remove(ctx, p); err != nil {
		fc.Logger.Warn("unindexing post failed", zap.String("post", p.APURL), zap.Error(err))
	}

	return Result{Kind: Other}, nil
}

func (fc *Context) deleteUser(ctx context.Context, actor, u *User, _ string) (Result, error) {
	if actor.ID != u.ID {
		return Result{}, ErrUnauthorized
	}

	if err := fc.Store.DeleteUser(ctx, u.ID); err != nil {
		return Result{}, err
	}

	return Result{Kind: Other}, nil
}

func (fc *Context) followUser(ctx context.Context, follower, target *User, id string) (Result, error) {
	f, err := fc.Store.InsertFollow(ctx, &Follow{APURL: id, FollowerID: follower.ID, FollowingID: target.ID})
	if err != nil {
		return Result{}, err
	}

	if target.Local {
		fc.notify(ctx, target.ID, NotifyFollow, f.ID)

		if err := fc.accept(ctx, follower, target, f); err != nil {
			fc.Logger.Warn("sending Accept failed", zap.String("follow", f.APURL), zap.Error(err))
		}
	}

	return Result{Kind: Followed, Follow: f}, nil
}

// accept answers a follow of a local user.
func (fc *Context) accept(ctx context.Context, follower, target *User, f *Follow) error {
	signer, err := fc.Signer(target)
	if err != nil {
		return err
	}

	act := map[string]any{
		"id":    fmt.Sprintf("%s/follows/%d/accept", target.APURL, f.ID),
		"type":  activity.Accept,
		"actor": target.APURL,
		"object": map[string]any{
			"id":     f.APURL,
			"type":   activity.Follow,
			"actor":  follower.APURL,
			"object": target.APURL,
		},
		"to": []string{follower.APURL},
	}

	return fc.Broadcaster.Broadcast(ctx, signer, act, []broadcast.Recipient{follower})
}

func (fc *Context) likePost(ctx context.Context, actor *User, post *Post, id string) (Result, error) {
	l, err := fc.Store.InsertLike(ctx, &Like{APURL: id, UserID: actor.ID, PostID: post.ID})
	if err != nil {
		return Result{}, err
	}

	fc.notifyAuthors(ctx, post, NotifyLike, l.ID)

	return Result{Kind: Liked, Like: l}, nil
}

func (fc *Context) undoReshare(ctx context.Context, actor *User, r *Reshare, _ string) (Result, error) {
	if r.UserID != actor.ID {
		return Result{}, ErrUnauthorized
	}

	if err := fc.Store.DeleteReshare(ctx, r.ID); err != nil {
		return Result{}, err
	}

	return Result{Kind: Other}, nil
}

func (fc *Context) undoFollow(ctx context.Context, actor *User, f *Follow, _ string) (Result, error) {
	if f.FollowerID != actor.ID {
		return Result{}, ErrUnauthorized
	}

	if err := fc.Store.DeleteFollow(ctx, f.ID); err != nil {
		return Result{}, err
	}

	return Result{Kind: Other}, nil
}

func (fc *Context) undoLike(ctx context.Context, actor *User, l *Like, _ string) (Result, error) {
	if l.UserID != actor.ID {
		return Result{}, ErrUnauthorized
	}

	if err := fc.Store.DeleteLike(ctx, l.ID); err != nil {
		return Result{}, err
	}

	return Result{Kind: Other}, nil
}

func (fc *Context) updatePost(ctx context.Context, actor *User, u *PostUpdate, _ string) (Result, error) {
	p, err := fc.Store.FindPostByURL(ctx, u.APURL)
	if err != nil {
		return Result{}, err
	}

	if !p.HasAuthor(actor.ID) {
		return Result{}, ErrUnauthorized
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	apply(&p.Title, u.Title)
	apply(&p.Content, u.Content)
	apply(&p.Summary, u.Summary)
	apply(&p.License, u.License)

	if u.Tags != nil {
		p.Tags = u.Tags
	}

	if err := fc.Store.UpdatePost(ctx, p); err != nil {
		return Result{}, err
	}

	if err := fc.Indexer.Index(ctx, p); err != nil {
		fc.Logger.Warn("reindexing post failed", zap.String("post", p.APURL), zap.Error(err))
	}

	return Result{Kind: Other}, nil
}

// notifyAuthors notifies the local authors of a post.
func (fc *Context) notifyAuthors(ctx context.Context, post *Post, kind string, objectID int64) {
	for _, id := range post.AuthorIDs {
		u, err := fc.Store.FindUserByID(ctx, id)
		if err != nil || !u.Local {
			continue
		}

		fc.notify(ctx, u.ID, kind, objectID)
	}
}

func (fc *Context) notify(ctx context.Context, userID int64, kind string, objectID int64) {
	err := fc.Notifier.Notify(ctx, &Notification{UserID: userID, Kind: kind, ObjectID: objectID})
	if err != nil {
		fc.Logger.Warn("notification failed", zap.Int64("user", userID), zap.String("kind", kind), zap.Error(err))
	}
}
