package db

import (
	"context"
	"database/sql"
)

const upsertUser = `
INSERT INTO users (telegram_id, username, first_name, last_name, language, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (telegram_id) DO UPDATE SET
    username = excluded.username,
    first_name = excluded.first_name,
    last_name = excluded.last_name,
    updated_at = excluded.updated_at
RETURNING id, telegram_id, username, first_name, last_name, email, language, active, created_at, updated_at
`

type UpsertUserParams struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Language   string
	CreatedAt  int64
	UpdatedAt  int64
}

func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, upsertUser,
		arg.TelegramID,
		arg.Username,
		arg.FirstName,
		arg.LastName,
		arg.Language,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	var i User
	err := row.Scan(&i.ID, &i.TelegramID, &i.Username, &i.FirstName, &i.LastName, &i.Email, &i.Language, &i.Active, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getUserByTelegramID = `
SELECT id, telegram_id, username, first_name, last_name, email, language, active, created_at, updated_at
FROM users WHERE telegram_id = ?
`

func (q *Queries) GetUserByTelegramID(ctx context.Context, telegramID int64) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByTelegramID, telegramID)
	var i User
	err := row.Scan(&i.ID, &i.TelegramID, &i.Username, &i.FirstName, &i.LastName, &i.Email, &i.Language, &i.Active, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getUser = `
SELECT id, telegram_id, username, first_name, last_name, email, language, active, created_at, updated_at
FROM users WHERE id = ?
`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, id)
	var i User
	err := row.Scan(&i.ID, &i.TelegramID, &i.Username, &i.FirstName, &i.LastName, &i.Email, &i.Language, &i.Active, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const setUserEmail = `UPDATE users SET email = ?, updated_at = ? WHERE id = ?`

func (q *Queries) SetUserEmail(ctx context.Context, email string, updatedAt int64, id int64) error {
	_, err := q.db.ExecContext(ctx, setUserEmail, email, updatedAt, id)
	return err
}

const upsertTarget = `
INSERT INTO targets (category, service, base_url, quantity, active)
VALUES (?, ?, ?, ?, 1)
ON CONFLICT (category, service) DO UPDATE SET
    base_url = excluded.base_url,
    quantity = excluded.quantity,
    active = 1
RETURNING id, category, service, base_url, quantity, active, total_checks, last_check_at, last_slots_at
`

type UpsertTargetParams struct {
	Category string
	Service  string
	BaseUrl  string
	Quantity int64
}

func (q *Queries) UpsertTarget(ctx context.Context, arg UpsertTargetParams) (Target, error) {
	row := q.db.QueryRowContext(ctx, upsertTarget, arg.Category, arg.Service, arg.BaseUrl, arg.Quantity)
	var i Target
	err := row.Scan(&i.ID, &i.Category, &i.Service, &i.BaseUrl, &i.Quantity, &i.Active, &i.TotalChecks, &i.LastCheckAt, &i.LastSlotsAt)
	return i, err
}

const getTarget = `
SELECT id, category, service, base_url, quantity, active, total_checks, last_check_at, last_slots_at
FROM targets WHERE id = ?
`

func (q *Queries) GetTarget(ctx context.Context, id int64) (Target, error) {
	row := q.db.QueryRowContext(ctx, getTarget, id)
	var i Target
	err := row.Scan(&i.ID, &i.Category, &i.Service, &i.BaseUrl, &i.Quantity, &i.Active, &i.TotalChecks, &i.LastCheckAt, &i.LastSlotsAt)
	return i, err
}

const listActiveTargets = `
SELECT id, category, service, base_url, quantity, active, total_checks, last_check_at, last_slots_at
FROM targets WHERE active = 1 ORDER BY category, service
`

func (q *Queries) ListActiveTargets(ctx context.Context) ([]Target, error) {
	rows, err := q.db.QueryContext(ctx, listActiveTargets)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Target
	for rows.Next() {
		var i Target
		err := rows.Scan(&i.ID, &i.Category, &i.Service, &i.BaseUrl, &i.Quantity, &i.Active, &i.TotalChecks, &i.LastCheckAt, &i.LastSlotsAt)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listTargets = `
SELECT id, category, service, base_url, quantity, active, total_checks, last_check_at, last_slots_at
FROM targets ORDER BY category, service
`

func (q *Queries) ListTargets(ctx context.Context) ([]Target, error) {
	rows, err := q.db.QueryContext(ctx, listTargets)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Target
	for rows.Next() {
		var i Target
		err := rows.Scan(&i.ID, &i.Category, &i.Service, &i.BaseUrl, &i.Quantity, &i.Active, &i.TotalChecks, &i.LastCheckAt, &i.LastSlotsAt)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const setTargetActive = `UPDATE targets SET active = ? WHERE id = ?`

func (q *Queries) SetTargetActive(ctx context.Context, active int64, id int64) error {
	_, err := q.db.ExecContext(ctx, setTargetActive, active, id)
	return err
}

const recordTargetCheck = `
UPDATE targets SET total_checks = total_checks + 1, last_check_at = ? WHERE id = ?
`

func (q *Queries) RecordTargetCheck(ctx context.Context, lastCheckAt int64, id int64) error {
	_, err := q.db.ExecContext(ctx, recordTargetCheck, lastCheckAt, id)
	return err
}

const recordTargetSlots = `UPDATE targets SET last_slots_at = ? WHERE id = ?`

func (q *Queries) RecordTargetSlots(ctx context.Context, lastSlotsAt int64, id int64) error {
	_, err := q.db.ExecContext(ctx, recordTargetSlots, lastSlotsAt, id)
	return err
}

const createWatch = `
INSERT INTO watches (user_id, target_id, interval_seconds, active, notify_failures, created_at)
VALUES (?, ?, ?, 1, ?, ?)
ON CONFLICT (user_id, target_id) DO UPDATE SET
    interval_seconds = excluded.interval_seconds,
    notify_failures = excluded.notify_failures,
    active = 1
RETURNING id, user_id, target_id, interval_seconds, active, notify_failures, last_probe_at, last_outcome_kind, consecutive_failures, created_at
`

type CreateWatchParams struct {
	UserID          int64
	TargetID        int64
	IntervalSeconds int64
	NotifyFailures  int64
	CreatedAt       int64
}

func (q *Queries) CreateWatch(ctx context.Context, arg CreateWatchParams) (Watch, error) {
	row := q.db.QueryRowContext(ctx, createWatch,
		arg.UserID,
		arg.TargetID,
		arg.IntervalSeconds,
		arg.NotifyFailures,
		arg.CreatedAt,
	)
	var i Watch
	err := row.Scan(&i.ID, &i.UserID, &i.TargetID, &i.IntervalSeconds, &i.Active, &i.NotifyFailures, &i.LastProbeAt, &i.LastOutcomeKind, &i.ConsecutiveFailures, &i.CreatedAt)
	return i, err
}

const getWatch = `
SELECT id, user_id, target_id, interval_seconds, active, notify_failures, last_probe_at, last_outcome_kind, consecutive_failures, created_at
FROM watches WHERE id = ?
`

func (q *Queries) GetWatch(ctx context.Context, id int64) (Watch, error) {
	row := q.db.QueryRowContext(ctx, getWatch, id)
	var i Watch
	err := row.Scan(&i.ID, &i.UserID, &i.TargetID, &i.IntervalSeconds, &i.Active, &i.NotifyFailures, &i.LastProbeAt, &i.LastOutcomeKind, &i.ConsecutiveFailures, &i.CreatedAt)
	return i, err
}

const countActiveWatchesByUser = `
SELECT COUNT(*) FROM watches WHERE user_id = ? AND active = 1
`

func (q *Queries) CountActiveWatchesByUser(ctx context.Context, userID int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countActiveWatchesByUser, userID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listWatchesByUser = `
SELECT w.id, w.user_id, w.target_id, w.interval_seconds, w.active, w.notify_failures, w.last_probe_at, w.last_outcome_kind, w.consecutive_failures, w.created_at
FROM watches w
WHERE w.user_id = ? AND w.active = 1
ORDER BY w.id
`

func (q *Queries) ListWatchesByUser(ctx context.Context, userID int64) ([]Watch, error) {
	rows, err := q.db.QueryContext(ctx, listWatchesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Watch
	for rows.Next() {
		var i Watch
		err := rows.Scan(&i.ID, &i.UserID, &i.TargetID, &i.IntervalSeconds, &i.Active, &i.NotifyFailures, &i.LastProbeAt, &i.LastOutcomeKind, &i.ConsecutiveFailures, &i.CreatedAt)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listDueWatches = `
SELECT w.id, w.user_id, w.target_id, w.interval_seconds, w.active, w.notify_failures, w.last_probe_at, w.last_outcome_kind, w.consecutive_failures, w.created_at
FROM watches w
JOIN targets t ON t.id = w.target_id
WHERE w.active = 1 AND t.active = 1
  AND (w.last_probe_at IS NULL OR ? - w.last_probe_at >= w.interval_seconds)
ORDER BY w.id
`

func (q *Queries) ListDueWatches(ctx context.Context, now int64) ([]Watch, error) {
	rows, err := q.db.QueryContext(ctx, listDueWatches, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Watch
	for rows.Next() {
		var i Watch
		err := rows.Scan(&i.ID, &i.UserID, &i.TargetID, &i.IntervalSeconds, &i.Active, &i.NotifyFailures, &i.LastProbeAt, &i.LastOutcomeKind, &i.ConsecutiveFailures, &i.CreatedAt)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listAllWatches = `
SELECT w.id, u.telegram_id, u.username, t.category, t.service, w.interval_seconds, w.active, w.last_probe_at, w.last_outcome_kind, w.consecutive_failures
FROM watches w
JOIN users u ON u.id = w.user_id
JOIN targets t ON t.id = w.target_id
ORDER BY w.id
`

type ListAllWatchesRow struct {
	ID                  int64
	TelegramID          int64
	Username            string
	Category            string
	Service             string
	IntervalSeconds     int64
	Active              int64
	LastProbeAt         sql.NullInt64
	LastOutcomeKind     string
	ConsecutiveFailures int64
}

func (q *Queries) ListAllWatches(ctx context.Context) ([]ListAllWatchesRow, error) {
	rows, err := q.db.QueryContext(ctx, listAllWatches)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListAllWatchesRow
	for rows.Next() {
		var i ListAllWatchesRow
		err := rows.Scan(&i.ID, &i.TelegramID, &i.Username, &i.Category, &i.Service, &i.IntervalSeconds, &i.Active, &i.LastProbeAt, &i.LastOutcomeKind, &i.ConsecutiveFailures)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const deactivateWatch = `
UPDATE watches SET active = 0 WHERE id = ? AND user_id = ?
`

func (q *Queries) DeactivateWatch(ctx context.Context, id int64, userID int64) error {
	_, err := q.db.ExecContext(ctx, deactivateWatch, id, userID)
	return err
}

const setWatchNotifyFailures = `
UPDATE watches SET notify_failures = ? WHERE id = ? AND user_id = ?
`

func (q *Queries) SetWatchNotifyFailures(ctx context.Context, notifyFailures int64, id int64, userID int64) error {
	_, err := q.db.ExecContext(ctx, setWatchNotifyFailures, notifyFailures, id, userID)
	return err
}

const updateWatchProbeState = `
UPDATE watches SET
    last_probe_at = MAX(COALESCE(last_probe_at, 0), ?),
    last_outcome_kind = ?,
    consecutive_failures = CASE WHEN ? THEN consecutive_failures + 1 ELSE 0 END
WHERE id = ?
`

type UpdateWatchProbeStateParams struct {
	LastProbeAt     int64
	LastOutcomeKind string
	IsFailure       int64
	ID              int64
}

func (q *Queries) UpdateWatchProbeState(ctx context.Context, arg UpdateWatchProbeStateParams) error {
	_, err := q.db.ExecContext(ctx, updateWatchProbeState,
		arg.LastProbeAt,
		arg.LastOutcomeKind,
		arg.IsFailure,
		arg.ID,
	)
	return err
}

const createCheck = `
INSERT INTO checks (watch_id, attempt_id, kind, failure_reason, screenshot_ref, duration_ms, captured_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING id
`

type CreateCheckParams struct {
	WatchID       int64
	AttemptID     string
	Kind          string
	FailureReason string
	ScreenshotRef string
	DurationMs    int64
	CapturedAt    int64
}

func (q *Queries) CreateCheck(ctx context.Context, arg CreateCheckParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createCheck,
		arg.WatchID,
		arg.AttemptID,
		arg.Kind,
		arg.FailureReason,
		arg.ScreenshotRef,
		arg.DurationMs,
		arg.CapturedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const createSlot = `
INSERT INTO slots (check_id, slot_date, slot_time, raw_label)
VALUES (?, ?, ?, ?)
ON CONFLICT (check_id, slot_date, slot_time) DO NOTHING
`

type CreateSlotParams struct {
	CheckID  int64
	SlotDate string
	SlotTime string
	RawLabel string
}

func (q *Queries) CreateSlot(ctx context.Context, arg CreateSlotParams) error {
	_, err := q.db.ExecContext(ctx, createSlot, arg.CheckID, arg.SlotDate, arg.SlotTime, arg.RawLabel)
	return err
}

const getLatestCheck = `
SELECT id, watch_id, attempt_id, kind, failure_reason, screenshot_ref, duration_ms, captured_at
FROM checks WHERE watch_id = ? ORDER BY captured_at DESC, id DESC LIMIT 1
`

func (q *Queries) GetLatestCheck(ctx context.Context, watchID int64) (Check, error) {
	row := q.db.QueryRowContext(ctx, getLatestCheck, watchID)
	var i Check
	err := row.Scan(&i.ID, &i.WatchID, &i.AttemptID, &i.Kind, &i.FailureReason, &i.ScreenshotRef, &i.DurationMs, &i.CapturedAt)
	return i, err
}

const listSlotsByCheck = `
SELECT id, check_id, slot_date, slot_time, raw_label
FROM slots WHERE check_id = ? ORDER BY slot_date, slot_time
`

func (q *Queries) ListSlotsByCheck(ctx context.Context, checkID int64) ([]Slot, error) {
	rows, err := q.db.QueryContext(ctx, listSlotsByCheck, checkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Slot
	for rows.Next() {
		var i Slot
		err := rows.Scan(&i.ID, &i.CheckID, &i.SlotDate, &i.SlotTime, &i.RawLabel)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const pruneChecks = `DELETE FROM checks WHERE captured_at < ?`

func (q *Queries) PruneChecks(ctx context.Context, before int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, pruneChecks, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listNotifiedSlots = `
SELECT watch_id, slot_date, slot_time, notified_at
FROM notified_slots WHERE watch_id = ?
`

func (q *Queries) ListNotifiedSlots(ctx context.Context, watchID int64) ([]NotifiedSlot, error) {
	rows, err := q.db.QueryContext(ctx, listNotifiedSlots, watchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []NotifiedSlot
	for rows.Next() {
		var i NotifiedSlot
		err := rows.Scan(&i.WatchID, &i.SlotDate, &i.SlotTime, &i.NotifiedAt)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertNotifiedSlot = `
INSERT INTO notified_slots (watch_id, slot_date, slot_time, notified_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (watch_id, slot_date, slot_time) DO NOTHING
`

type InsertNotifiedSlotParams struct {
	WatchID    int64
	SlotDate   string
	SlotTime   string
	NotifiedAt int64
}

func (q *Queries) InsertNotifiedSlot(ctx context.Context, arg InsertNotifiedSlotParams) error {
	_, err := q.db.ExecContext(ctx, insertNotifiedSlot, arg.WatchID, arg.SlotDate, arg.SlotTime, arg.NotifiedAt)
	return err
}

const pruneNotifiedSlots = `DELETE FROM notified_slots WHERE slot_date < ?`

func (q *Queries) PruneNotifiedSlots(ctx context.Context, beforeDate string) (int64, error) {
	res, err := q.db.ExecContext(ctx, pruneNotifiedSlots, beforeDate)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const createNotification = `
INSERT INTO notifications (user_id, watch_id, check_id, kind, message, sent_at, success, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateNotificationParams struct {
	UserID  int64
	WatchID sql.NullInt64
	CheckID sql.NullInt64
	Kind    string
	Message string
	SentAt  int64
	Success int64
	Error   string
}

func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) error {
	_, err := q.db.ExecContext(ctx, createNotification,
		arg.UserID,
		arg.WatchID,
		arg.CheckID,
		arg.Kind,
		arg.Message,
		arg.SentAt,
		arg.Success,
		arg.Error,
	)
	return err
}
