// Package storage is the contract the gateway holds against the external
// relational store. Every write here is best-effort from the gateway's point
// of view: callers log failures and keep delivering.
package storage

import (
	"context"
	"time"
)

type Message struct {
	ID         string     `json:"id"`
	SenderID   string     `json:"senderId"`
	ReceiverID string     `json:"receiverId"`
	Content    string     `json:"content"`
	Type       string     `json:"type"`
	CreatedAt  time.Time  `json:"createdAt"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
}

type Notification struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipientId"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Read        bool           `json:"read"`
	CreatedAt   time.Time      `json:"createdAt"`
	// FromUserID is empty for system-originated notifications.
	FromUserID string `json:"fromUserId,omitempty"`
}

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	PasswordHash string `json:"-"`
}

type NotificationQuery struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

type NotificationPage struct {
	Items       []Notification `json:"notifications"`
	Total       int            `json:"total"`
	UnreadCount int            `json:"unreadCount"`
}

type MessageStore interface {
	InsertMessage(ctx context.Context, m *Message) error
	// MarkConversationRead flips ReadAt on every unread message from senderID
	// to readerID; returns how many rows changed.
	MarkConversationRead(ctx context.Context, readerID, senderID string, at time.Time) (int64, error)
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, n *Notification) error
	// MarkNotificationRead is idempotent: an already-read id reports ok with
	// no change.
	MarkNotificationRead(ctx context.Context, recipientID, notificationID string) error
	ListNotifications(ctx context.Context, recipientID string, q NotificationQuery) (*NotificationPage, error)
}

type CredentialStore interface {
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
}

// Store is the full relational contract; the pgx adapter implements all of it.
type Store interface {
	MessageStore
	NotificationStore
	CredentialStore
	Ping(ctx context.Context) error
	Close()
}
