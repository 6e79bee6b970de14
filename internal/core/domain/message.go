package domain

import "time"

type SendState string

const (
	SendPending   SendState = "pending"
	SendConfirmed SendState = "confirmed"
	SendFailed    SendState = "failed"
)

// SendResult is the outcome of one outbound message dispatch. Message is set
// when confirmed; Reason when failed.
type SendResult struct {
	State   SendState `json:"state"`
	Message FeedEvent `json:"message,omitempty"`
	Reason  error     `json:"-"`
}

// PendingMessage lives between a failed dispatch and either a confirmed
// retry or an explicit discard.
type PendingMessage struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	State       SendState `json:"state"`
	Attempts    int       `json:"attempts"`
	AutoRetried bool      `json:"auto_retried"`
	FailedAt    time.Time `json:"failed_at"`
}

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient user-visible message.
type Notice struct {
	Level       NoticeLevel `json:"level"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Action      string      `json:"action,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
