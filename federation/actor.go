package federation

import "github.com/vitalvas/federa/activity"

// ActorDocument renders u as an ActivityPub actor.
func (fc *Context) ActorDocument(u *User) *activity.Actor {
	doc := &activity.Actor{
		Context:           activity.Context(),
		ID:                u.APURL,
		Type:              u.Type,
		PreferredUsername: u.Username,
		Name:              u.DisplayName,
		Summary:           u.Summary,
		Inbox:             u.InboxURL,
		Outbox:            u.OutboxURL,
		Followers:         u.FollowersURL,
		URL:               u.APURL,
		PublicKey: activity.PublicKey{
			ID:           u.KeyID(),
			Owner:        u.APURL,
			PublicKeyPEM: u.PublicKeyPEM,
		},
	}

	if u.SharedInboxURL != "" {
		doc.Endpoints = &activity.Endpoints{SharedInbox: u.SharedInboxURL}
	} else if u.Local {
		doc.Endpoints = &activity.Endpoints{SharedInbox: fc.BaseURL + "/inbox"}
	}

	return doc
}
