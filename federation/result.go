package federation

// ResultKind tells what an incoming activity produced.
type ResultKind int

const (
	Other ResultKind = iota
	Commented
	Followed
	Liked
	Posted
	Reshared
)

func (k ResultKind) String() string {
	switch k {
	case Commented:
		return "commented"
	case Followed:
		return "followed"
	case Liked:
		return "liked"
	case Posted:
		return "posted"
	case Reshared:
		return "reshared"
	default:
		return "other"
	}
}

// Result is the outcome of a handled activity. The field matching Kind is
// set; Other carries nothing.
type Result struct {
	Kind    ResultKind
	Comment *Comment
	Follow  *Follow
	Like    *Like
	Post    *Post
	Reshare *Reshare
}
