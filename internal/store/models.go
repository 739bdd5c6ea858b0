package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Question types understood by the collection front-ends.
const (
	QuestionText   = "text"
	QuestionChoice = "choice"
	QuestionRating = "rating"
)

// Survey statuses.
const (
	SurveyActive   = "active"
	SurveyInactive = "inactive"
)

// Survey is one assigned survey as cached on the device. The device
// never edits surveys; the whole set is replaced on each successful
// download.
type Survey struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Question struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"` // choice questions only
	Scale    int      `json:"scale,omitempty"`   // rating upper bound
}

// Response is one collected survey response: answers keyed by question
// id, completion time in minutes. Synced flips to true exactly once,
// after the remote has acknowledged the upload.
type Response struct {
	ID             string         `json:"id"`
	SurveyID       string         `json:"survey_id"`
	Answers        map[string]any `json:"answers"`
	CompletionTime int            `json:"completion_time"`
	CreatedAt      time.Time      `json:"created_at"`
	Synced         bool           `json:"synced"`
}

// SyncRecord is the single most-recent sync attempt. The store keeps at
// most one row; it is a latest-sync pointer, not a history log.
type SyncRecord struct {
	At     time.Time
	Status string
}
