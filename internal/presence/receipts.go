// Package presence tracks ephemeral per-linkman state: typing indicators,
// delivery/read receipts and group online rosters. Nothing here is durable;
// it all lives and dies with the session.
package presence

import "sync"

// Status is the delivery progress of a message for one user.
type Status int

const (
	// StatusDelivered means the recipient's client has the message.
	StatusDelivered Status = iota + 1
	// StatusRead means the recipient has seen it. Read supersedes
	// delivered and is never downgraded.
	StatusRead
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return "unknown"
	}
}

type receiptKey struct {
	messageID string
	userID    string
}

// Receipts is the in-memory receipt index. Merges are monotonic per
// (message, user): read beats delivered regardless of arrival order.
type Receipts struct {
	mu       sync.Mutex
	statuses map[receiptKey]Status
}

// NewReceipts returns an empty index.
func NewReceipts() *Receipts {
	return &Receipts{statuses: make(map[receiptKey]Status)}
}

// Apply merges one receipt. Returns false when it was stale (a delivered
// arriving after a read) or a duplicate.
func (r *Receipts) Apply(messageID, userID string, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := receiptKey{messageID: messageID, userID: userID}
	if held, ok := r.statuses[key]; ok && held >= status {
		return false
	}
	r.statuses[key] = status
	return true
}

// Status returns the held status for (message, user), zero when none.
func (r *Receipts) Status(messageID, userID string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[receiptKey{messageID: messageID, userID: userID}]
}

// Counts returns how many users have the message delivered (including
// read) and read.
func (r *Receipts) Counts(messageID string) (delivered, read int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, status := range r.statuses {
		if key.messageID != messageID {
			continue
		}
		delivered++
		if status == StatusRead {
			read++
		}
	}
	return delivered, read
}
