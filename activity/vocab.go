package activity

// Activity verbs understood by the inbox.
const (
	Accept   = "Accept"
	Announce = "Announce"
	Create   = "Create"
	Delete   = "Delete"
	Follow   = "Follow"
	Like     = "Like"
	Undo     = "Undo"
	Update   = "Update"
)

// Object and actor types.
const (
	Application = "Application"
	Article     = "Article"
	Group       = "Group"
	Hashtag     = "Hashtag"
	Mention     = "Mention"
	Note        = "Note"
	Person      = "Person"
	Service     = "Service"
	Tombstone   = "Tombstone"
)

const (
	// ContextActivityStreams is the JSON-LD context of every document.
	ContextActivityStreams = "https://www.w3.org/ns/activitystreams"

	// ContextSecurity adds the publicKey vocabulary.
	ContextSecurity = "https://w3id.org/security/v1"

	// PublicCollection is the special audience meaning "everyone".
	PublicCollection = "https://www.w3.org/ns/activitystreams#Public"
)

// Media types.
const (
	ContentType   = "application/activity+json"
	LDContentType = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
)

// AcceptHeader is sent when dereferencing remote objects.
const AcceptHeader = LDContentType + ", " + ContentType

// Context returns the @context value attached to outgoing documents.
func Context() []any {
	return []any{ContextActivityStreams, ContextSecurity}
}
