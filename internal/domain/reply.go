package domain

// NormalizeReplyRef extracts the underlying comment identity from a reply
// reference. Callers pass either a raw id or an already-expanded comment;
// both shapes collapse to the id before lookup.
func NormalizeReplyRef(ref any) string {
	switch v := ref.(type) {
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case Comment:
		return v.ID
	case *Comment:
		if v == nil {
			return ""
		}
		return v.ID
	}
	return ""
}

// ResolveReply looks up a reply reference within a single ticket's comment
// sequence. An empty or unknown reference resolves to nothing; callers
// render that as "no reply" rather than guessing a target.
func ResolveReply(comments []Comment, ref any) (*Comment, bool) {
	id := NormalizeReplyRef(ref)
	if id == "" {
		return nil, false
	}
	for i := range comments {
		if comments[i].ID == id {
			return &comments[i], true
		}
	}
	return nil, false
}

// CommentIndex memoizes id lookups over one ticket's comments so render
// paths do not rescan the sequence on every call.
type CommentIndex struct {
	byID map[string]*Comment
}

// NewCommentIndex builds an index over the given sequence. The index holds
// pointers into the slice; append a fresh index after the slice changes.
func NewCommentIndex(comments []Comment) *CommentIndex {
	idx := &CommentIndex{byID: make(map[string]*Comment, len(comments))}
	for i := range comments {
		idx.byID[comments[i].ID] = &comments[i]
	}
	return idx
}

// Resolve returns the referenced comment, if present.
func (idx *CommentIndex) Resolve(ref any) (*Comment, bool) {
	id := NormalizeReplyRef(ref)
	if id == "" {
		return nil, false
	}
	c, ok := idx.byID[id]
	return c, ok
}
