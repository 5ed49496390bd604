package model

import "time"

// MessageStatus tracks an inbox message through unread → read → archived.
type MessageStatus string

const (
    MessageUnread   MessageStatus = "unread"
    MessageRead     MessageStatus = "read"
    MessageArchived MessageStatus = "archived"
)

// ContactMessage is a message submitted through the public contact form.
type ContactMessage struct {
    ID        uint64        `db:"id" json:"id"`
    Name      string        `db:"name" json:"name"`
    Email     string        `db:"email" json:"email"`
    Phone     string        `db:"phone" json:"phone"`
    Message   string        `db:"message" json:"message"`
    Status    MessageStatus `db:"status" json:"status"`
    ReadAt    *time.Time    `db:"read_at" json:"read_at,omitempty"`
    ReadBy    *string       `db:"read_by" json:"read_by,omitempty"`
    CreatedAt time.Time     `db:"created_at" json:"created_at"`
}
