package weaver

import "time"

// ChatMessage is a single turn in a chat session
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionRecord is one persisted session snapshot. The chat history
// document holds one record per session, oldest session first.
type SessionRecord struct {
	SessionID string        `json:"session_id"`
	Messages  []ChatMessage `json:"messages"`
}

// ChatLog is the per-canvas chat history
type ChatLog struct {
	records []SessionRecord
}

// NewChatLog creates an empty chat log
func NewChatLog() *ChatLog {
	return &ChatLog{records: []SessionRecord{}}
}

// Append stores a session snapshot, replacing any earlier snapshot of
// the same session
func (l *ChatLog) Append(record SessionRecord) {
	for i := range l.records {
		if l.records[i].SessionID == record.SessionID {
			l.records[i] = record
			return
		}
	}
	l.records = append(l.records, record)
}

// Records returns the full history, oldest first
func (l *ChatLog) Records() []SessionRecord {
	return append([]SessionRecord(nil), l.records...)
}

// Len returns the number of session records
func (l *ChatLog) Len() int { return len(l.records) }
