// Package federation binds the inbox to the publishing domain: users,
// blogs, posts, comments and the interactions between them.
//
// Bootstrap builds the Context shared by every request. NewInbox returns
// the dispatcher for incoming activities, with one route per supported
// (actor, verb, object) combination:
//
//	Announce Post    Create Comment   Create Post
//	Delete Comment   Delete Post      Delete User
//	Follow User      Like Post        Undo Reshare
//	Undo Follow      Undo Like        Update Post
//
// Deletions, undos and updates are only honored when the actor owns the
// object; otherwise the route fails with ErrUnauthorized.
package federation
