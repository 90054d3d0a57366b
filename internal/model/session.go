package model

import (
	"encoding/json"
	"time"
)

// SessionStatus represents the overall state of a gift session's pipeline run.
type SessionStatus string

const (
	SessionStatusNotStarted SessionStatus = "not_started"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// Session represents one gift-finding session for a single recipient.
type Session struct {
	ID        string        `json:"id"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// BudgetLevel is the raw budget answer from the intake form.
type BudgetLevel string

const (
	BudgetLevelLow    BudgetLevel = "low"
	BudgetLevelMedium BudgetLevel = "medium"
	BudgetLevelHigh   BudgetLevel = "high"
)

// FormData holds the user-submitted answers for a session. ImageRef is empty
// when no photo was uploaded.
type FormData struct {
	RecipientName string      `json:"recipient_name"`
	Age           int         `json:"age"`
	Interests     []string    `json:"interests"`
	Budget        BudgetLevel `json:"budget"`
	Occasion      string      `json:"occasion,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	ImageRef      string      `json:"image_ref,omitempty"`
}

// StageID identifies one of the four fixed pipeline stages.
type StageID string

const (
	StageVision       StageID = "vision"
	StageProfileMerge StageID = "profile_merge"
	StageMatching     StageID = "matching"
	StageNarration    StageID = "narration"
)

// AllStages returns the four stages in execution order.
func AllStages() []StageID {
	return []StageID{StageVision, StageProfileMerge, StageMatching, StageNarration}
}

// StageStatus represents the state of a single stage run.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
)

// StageRun is the durable record of one stage's execution within one pipeline
// run. Error may be set even on a completed run when the stage self-healed
// through its fallback; it is kept for observability.
type StageRun struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Stage       StageID         `json:"stage"`
	Status      StageStatus     `json:"status"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// StageRunUpdate carries the mutable fields applied to a StageRun as it
// advances. Nil pointers leave the stored value untouched.
type StageRunUpdate struct {
	Status      *StageStatus
	Input       json.RawMessage
	Output      json.RawMessage
	Error       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
	DurationMs  *int64
}

// RunSummary is the caller-facing result of one pipeline run.
type RunSummary struct {
	Success             bool   `json:"success"`
	NarrationText       string `json:"narration_text,omitempty"`
	RecommendationCount int    `json:"recommendation_count"`
	Error               string `json:"error,omitempty"`
}
