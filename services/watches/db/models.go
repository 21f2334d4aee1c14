package db

import "database/sql"

type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Email      string
	Language   string
	Active     int64
	CreatedAt  int64
	UpdatedAt  int64
}

type Target struct {
	ID          int64
	Category    string
	Service     string
	BaseUrl     string
	Quantity    int64
	Active      int64
	TotalChecks int64
	LastCheckAt sql.NullInt64
	LastSlotsAt sql.NullInt64
}

type Watch struct {
	ID                  int64
	UserID              int64
	TargetID            int64
	IntervalSeconds     int64
	Active              int64
	NotifyFailures      int64
	LastProbeAt         sql.NullInt64
	LastOutcomeKind     string
	ConsecutiveFailures int64
	CreatedAt           int64
}

type Check struct {
	ID            int64
	WatchID       int64
	AttemptID     string
	Kind          string
	FailureReason string
	ScreenshotRef string
	DurationMs    int64
	CapturedAt    int64
}

type Slot struct {
	ID       int64
	CheckID  int64
	SlotDate string
	SlotTime string
	RawLabel string
}

type NotifiedSlot struct {
	WatchID    int64
	SlotDate   string
	SlotTime   string
	NotifiedAt int64
}

type Notification struct {
	ID      int64
	UserID  int64
	WatchID sql.NullInt64
	CheckID sql.NullInt64
	Kind    string
	Message string
	SentAt  int64
	Success int64
	Error   string
}
