// Package conversation provides bounded, keyed session memory with
// least-recently-used eviction and time-to-live expiry. Records are owned
// exclusively by the Store; callers read and append through its API only.
package conversation

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn. Immutable once appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// Pinned messages are trimmed last when the per-session cap is hit.
	Pinned bool `json:"pinned,omitempty"`
}

// Config bounds the store.
type Config struct {
	// MaxConversations caps the number of tracked sessions.
	MaxConversations int
	// MaxMessagesPerConversation caps stored messages per session.
	MaxMessagesPerConversation int
	// TTL expires sessions untouched for longer than this.
	TTL time.Duration
	// SummaryWindow is the trailing slice size returned by Summarize.
	SummaryWindow int
}

// ArchivedConversation is the audit form of an evicted or expired record.
type ArchivedConversation struct {
	SessionID    string    `json:"session_id"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	// Reason is "evicted" or "expired".
	Reason     string    `json:"reason"`
	ArchivedAt time.Time `json:"archived_at"`
}
