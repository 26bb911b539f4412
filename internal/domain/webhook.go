package domain

import (
	"encoding/json"
	"time"
)

type WebhookStatus string

const (
	WebhookProcessing WebhookStatus = "processing"
	WebhookCompleted  WebhookStatus = "completed"
	WebhookFailed     WebhookStatus = "failed"
)

type WebhookEvent struct {
	EventID     string          `json:"eventId"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      WebhookStatus   `json:"status"`
	RetryCount  int             `json:"retryCount"`
	LastError   string          `json:"lastError,omitempty"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
