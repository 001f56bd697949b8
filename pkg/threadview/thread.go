// Package threadview maintains a client-side view of a ticket's comment
// thread. It merges a fetched thread, optimistic local inserts, direct
// append responses and room broadcasts into a single ordered, duplicate-free
// list, so a client showing the thread never renders the same persisted
// comment twice and never loses typed text on a failed send.
package threadview

import (
	"sync"
	"time"
)

// Comment is the persisted comment as it appears on the wire: in the ticket
// read response, the append response, and room broadcasts.
type Comment struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	Author    string    `json:"author"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	ReplyTo   *string   `json:"reply_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry is one row of the rendered thread. A pending entry is a locally
// staged comment awaiting server confirmation; its Comment carries no ID or
// CreatedAt yet.
type Entry struct {
	LocalID string
	Pending bool
	Comment Comment
}

// Thread reconciles thread state from several sources. Safe for concurrent
// use; the websocket reader and the UI goroutine typically share one.
type Thread struct {
	mu      sync.Mutex
	entries []Entry
	present map[string]struct{} // confirmed comment ids in entries
}

// NewThread returns an empty thread view.
func NewThread() *Thread {
	return &Thread{present: make(map[string]struct{})}
}

// Load replaces the confirmed portion of the view with a freshly fetched
// thread. Pending entries survive at the tail, so an in-flight send is not
// dropped by a concurrent refetch.
func (t *Thread) Load(comments []Comment) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pending []Entry
	for _, e := range t.entries {
		if e.Pending {
			pending = append(pending, e)
		}
	}

	t.entries = make([]Entry, 0, len(comments)+len(pending))
	t.present = make(map[string]struct{}, len(comments))
	for _, c := range comments {
		t.entries = append(t.entries, Entry{Comment: c})
		t.present[c.ID] = struct{}{}
	}
	t.entries = append(t.entries, pending...)
}

// StagePending appends an optimistic entry identified by a caller-chosen
// local id. The local id never leaves the client; the server assigns the
// real identity.
func (t *Thread) StagePending(localID, author, role, message string, replyTo *string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{
		LocalID: localID,
		Pending: true,
		Comment: Comment{Author: author, Role: role, Message: message, ReplyTo: replyTo},
	})
}

// ConfirmPending converts the pending entry into its canonical persisted
// form, in place. If the canonical comment already arrived through a room
// broadcast, the pending entry is removed instead; either way the canonical
// comment appears exactly once.
func (t *Thread) ConfirmPending(localID string, canonical Comment) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.pendingIndex(localID)
	if idx < 0 {
		return
	}
	if _, dup := t.present[canonical.ID]; dup {
		t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
		return
	}
	t.entries[idx] = Entry{Comment: canonical}
	t.present[canonical.ID] = struct{}{}
}

// FailPending removes a pending entry after a failed send and returns its
// message text so the caller can restore it to the input.
func (t *Thread) FailPending(localID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.pendingIndex(localID)
	if idx < 0 {
		return "", false
	}
	message := t.entries[idx].Comment.Message
	t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
	return message, true
}

// ApplyCreated inserts a broadcast comment. Deduplication is by identity
// only: a comment with a new id is always inserted, even when its text and
// author match an existing entry. Reports whether the view changed.
func (t *Thread) ApplyCreated(comment Comment) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.present[comment.ID]; dup {
		return false
	}
	t.entries = append(t.entries, Entry{Comment: comment})
	t.present[comment.ID] = struct{}{}
	return true
}

// ApplyDeleted removes a confirmed comment by id. Reports whether the view
// changed.
func (t *Thread) ApplyDeleted(commentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.present[commentID]; !ok {
		return false
	}
	delete(t.present, commentID)
	for i, e := range t.entries {
		if !e.Pending && e.Comment.ID == commentID {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	return true
}

// Entries returns a snapshot of the current view in render order.
func (t *Thread) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len reports the number of entries, pending included.
func (t *Thread) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Thread) pendingIndex(localID string) int {
	for i, e := range t.entries {
		if e.Pending && e.LocalID == localID {
			return i
		}
	}
	return -1
}
