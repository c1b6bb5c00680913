package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound is returned when the referenced alert does not exist.
	ErrNotFound = errors.New("storage: alert not found")
	// ErrDuplicateIdempotencyKey is returned when an insert loses the idempotency key race.
	ErrDuplicateIdempotencyKey = errors.New("storage: duplicate idempotency key")
	// ErrNotActive is returned when a trigger targets an alert that is no longer ACTIVE.
	ErrNotActive = errors.New("storage: alert not active")
)

const (
	uniqueViolationCode     = "23505"
	idempotencyKeyIndexName = "rate_alerts_idempotency_key_key"

	alertColumns = `id::text,
        email,
        first_name,
        last_name,
        phone,
        loan_type,
        target_rate::text,
        loan_amount::text,
        property_address,
        timeframe,
        status,
        idempotency_key,
        broker_id,
        loan_officer_id,
        user_id,
        notifications_sent,
        created_at,
        updated_at,
        last_checked,
        triggered_at`

	insertAlertSQL = `INSERT INTO rate_alerts (
        id,
        email,
        first_name,
        last_name,
        phone,
        loan_type,
        target_rate,
        loan_amount,
        property_address,
        timeframe,
        status,
        idempotency_key,
        broker_id,
        loan_officer_id,
        user_id,
        notifications_sent,
        created_at,
        updated_at,
        last_checked
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17,$18
    )
    RETURNING ` + alertColumns + `;`

	getAlertSQL = `SELECT ` + alertColumns + ` FROM rate_alerts WHERE id = $1;`

	findByIdempotencyKeySQL = `SELECT ` + alertColumns + ` FROM rate_alerts WHERE idempotency_key = $1;`

	countActiveByEmailSQL = `SELECT COUNT(*) FROM rate_alerts WHERE email = $1 AND status = 'ACTIVE';`

	countCreatedSinceSQL = `SELECT COUNT(*) FROM rate_alerts WHERE email = $1 AND created_at >= $2;`

	listByEmailSQL = `SELECT ` + alertColumns + `
    FROM rate_alerts
    WHERE email = $1
      AND ($2 OR status = 'ACTIVE')
    ORDER BY created_at DESC;`

	updateAlertSQL = `UPDATE rate_alerts
    SET target_rate = COALESCE($2::numeric, target_rate),
        loan_type   = COALESCE($3, loan_type),
        timeframe   = COALESCE($4, timeframe),
        status      = COALESCE($5, status),
        updated_at  = $6
    WHERE id = $1
    RETURNING ` + alertColumns + `;`

	listNotificationsSQL = `SELECT
        id::text,
        alert_id::text,
        current_rate::text,
        message,
        sent_at
    FROM rate_alert_notifications
    WHERE alert_id = $1
    ORDER BY sent_at DESC
    LIMIT $2;`

	listAlertsSQL = `SELECT ` + alertColumns + `
    FROM rate_alerts
    ORDER BY created_at DESC
    OFFSET $1
    LIMIT $2;`

	statsSQL = `SELECT
        COUNT(*),
        COUNT(*) FILTER (WHERE status = 'ACTIVE'),
        COUNT(*) FILTER (WHERE status = 'TRIGGERED')
    FROM rate_alerts;`

	listActiveAlertsSQL = `SELECT ` + alertColumns + `
    FROM rate_alerts
    WHERE status = 'ACTIVE'
    ORDER BY created_at;`

	markCheckedSQL = `UPDATE rate_alerts
    SET last_checked = $2
    WHERE id = $1 AND status = 'ACTIVE';`

	markTriggeredSQL = `UPDATE rate_alerts
    SET status             = 'TRIGGERED',
        triggered_at       = COALESCE(triggered_at, $2),
        last_checked       = $2,
        updated_at         = $2,
        notifications_sent = notifications_sent + 1
    WHERE id = $1 AND status = 'ACTIVE'
    RETURNING ` + alertColumns + `;`

	insertNotificationSQL = `INSERT INTO rate_alert_notifications (
        id,
        alert_id,
        current_rate,
        message,
        sent_at
    ) VALUES (
        $1,$2,$3,$4,$5
    );`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines the operations the rate alerts service needs.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert RateAlert) (RateAlert, error)
	GetAlert(ctx context.Context, id string) (RateAlert, error)
	FindByIdempotencyKey(ctx context.Context, key string) (RateAlert, error)
	CountActiveByEmail(ctx context.Context, email string) (int, error)
	CountCreatedSince(ctx context.Context, email string, since time.Time) (int, error)
	ListByEmail(ctx context.Context, email string, includeAll bool) ([]RateAlert, error)
	UpdateAlert(ctx context.Context, id string, patch AlertPatch, at time.Time) (RateAlert, error)
	ListNotifications(ctx context.Context, alertID string, limit int) ([]Notification, error)
	ListAlerts(ctx context.Context, offset, limit int) ([]RateAlert, error)
	Stats(ctx context.Context) (AlertStats, error)
}

// MonitorStore defines the operations the rate monitor needs.
type MonitorStore interface {
	ListActiveAlerts(ctx context.Context) ([]RateAlert, error)
	MarkChecked(ctx context.Context, id string, at time.Time) error
	MarkTriggered(ctx context.Context, trigger Trigger) (RateAlert, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is the PostgreSQL implementation of AlertStore and MonitorStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// CreateAlert inserts a new alert. A clash on the idempotency key yields ErrDuplicateIdempotencyKey.
func (s *Store) CreateAlert(ctx context.Context, alert RateAlert) (RateAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return RateAlert{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.ID,
		alert.Email,
		alert.FirstName,
		alert.LastName,
		alert.Phone,
		alert.LoanType,
		alert.TargetRate.String(),
		decimalPtrString(alert.LoanAmount),
		alert.PropertyAddress,
		alert.Timeframe,
		string(alert.Status),
		alert.IdempotencyKey,
		alert.BrokerID,
		alert.LoanOfficerID,
		alert.UserID,
		alert.NotificationsSent,
		alert.CreatedAt,
		alert.LastChecked,
	)

	created, err := scanAlert(row)
	if err != nil {
		if isIdempotencyConflict(err) {
			return RateAlert{}, ErrDuplicateIdempotencyKey
		}
		return RateAlert{}, fmt.Errorf("insert rate alert: %w", err)
	}
	return created, nil
}

// GetAlert loads one alert by id.
func (s *Store) GetAlert(ctx context.Context, id string) (RateAlert, error) {
	return s.getOne(ctx, "get rate alert", getAlertSQL, id)
}

// FindByIdempotencyKey loads the alert created with key.
func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (RateAlert, error) {
	return s.getOne(ctx, "find by idempotency key", findByIdempotencyKeySQL, key)
}

func (s *Store) getOne(ctx context.Context, op, query string, arg any) (RateAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return RateAlert{}, err
	}
	alert, err := scanAlert(pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RateAlert{}, ErrNotFound
		}
		return RateAlert{}, fmt.Errorf("%s: %w", op, err)
	}
	return alert, nil
}

// CountActiveByEmail counts ACTIVE alerts for email.
func (s *Store) CountActiveByEmail(ctx context.Context, email string) (int, error) {
	return s.count(ctx, "count active alerts", countActiveByEmailSQL, email)
}

// CountCreatedSince counts alerts of any status created for email at or after since.
func (s *Store) CountCreatedSince(ctx context.Context, email string, since time.Time) (int, error) {
	return s.count(ctx, "count alerts created since", countCreatedSinceSQL, email, since)
}

func (s *Store) count(ctx context.Context, op, query string, args ...any) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int
	if scanErr := pool.QueryRow(ctx, query, args...).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("%s: %w", op, scanErr)
	}
	return count, nil
}

// ListByEmail lists an email's alerts, newest first; ACTIVE only unless includeAll.
func (s *Store) ListByEmail(ctx context.Context, email string, includeAll bool) ([]RateAlert, error) {
	return s.list(ctx, "list alerts by email", listByEmailSQL, email, includeAll)
}

// ListAlerts pages through all alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, offset, limit int) ([]RateAlert, error) {
	return s.list(ctx, "list alerts", listAlertsSQL, offset, limit)
}

// ListActiveAlerts returns every ACTIVE alert.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]RateAlert, error) {
	return s.list(ctx, "list active alerts", listActiveAlertsSQL)
}

func (s *Store) list(ctx context.Context, op, query string, args ...any) ([]RateAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("%s: %w", op, queryErr)
	}
	defer rows.Close()

	alerts := make([]RateAlert, 0)
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%s: %w", op, scanErr)
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// UpdateAlert applies patch to the alert and returns the updated row.
func (s *Store) UpdateAlert(ctx context.Context, id string, patch AlertPatch, at time.Time) (RateAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return RateAlert{}, err
	}

	var status *string
	if patch.Status != nil {
		v := string(*patch.Status)
		status = &v
	}

	alert, err := scanAlert(pool.QueryRow(ctx, updateAlertSQL,
		id,
		decimalPtrString(patch.TargetRate),
		patch.LoanType,
		patch.Timeframe,
		status,
		at,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RateAlert{}, ErrNotFound
		}
		return RateAlert{}, fmt.Errorf("update rate alert: %w", err)
	}
	return alert, nil
}

// ListNotifications returns up to limit notifications of an alert, newest first.
func (s *Store) ListNotifications(ctx context.Context, alertID string, limit int) ([]Notification, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listNotificationsSQL, alertID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list notifications: %w", queryErr)
	}
	defer rows.Close()

	notes := make([]Notification, 0, limit)
	for rows.Next() {
		var (
			note    Notification
			rateStr string
		)
		if err := rows.Scan(&note.ID, &note.AlertID, &rateStr, &note.Message, &note.SentAt); err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		rate, convErr := decimal.NewFromString(rateStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse current rate: %w", convErr)
		}
		note.CurrentRate = rate
		notes = append(notes, note)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return notes, nil
}

// Stats returns total, active and triggered counts.
func (s *Store) Stats(ctx context.Context) (AlertStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertStats{}, err
	}
	var stats AlertStats
	if scanErr := pool.QueryRow(ctx, statsSQL).Scan(&stats.Total, &stats.Active, &stats.Triggered); scanErr != nil {
		return AlertStats{}, fmt.Errorf("alert stats: %w", scanErr)
	}
	return stats, nil
}

// MarkChecked refreshes last_checked of a still ACTIVE alert.
func (s *Store) MarkChecked(ctx context.Context, id string, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markCheckedSQL, id, at); execErr != nil {
		return fmt.Errorf("mark checked: %w", execErr)
	}
	return nil
}

// MarkTriggered flips an ACTIVE alert to TRIGGERED and records the notification
// in one transaction. ErrNotActive means nothing was written.
func (s *Store) MarkTriggered(ctx context.Context, trigger Trigger) (RateAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return RateAlert{}, err
	}

	var alert RateAlert
	txErr := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		updated, scanErr := scanAlert(tx.QueryRow(ctx, markTriggeredSQL, trigger.AlertID, trigger.At))
		if scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return ErrNotActive
			}
			return fmt.Errorf("update triggered alert: %w", scanErr)
		}

		if _, execErr := tx.Exec(ctx, insertNotificationSQL,
			trigger.NotificationID,
			trigger.AlertID,
			trigger.CurrentRate.String(),
			trigger.Message,
			trigger.At,
		); execErr != nil {
			return fmt.Errorf("insert notification: %w", execErr)
		}

		alert = updated
		return nil
	})
	if txErr != nil {
		return RateAlert{}, txErr
	}
	return alert, nil
}

func scanAlert(row pgx.Row) (RateAlert, error) {
	var (
		alert     RateAlert
		targetStr string
		amountStr *string
		statusStr string
		lastCheck *time.Time
		triggered *time.Time
	)

	if err := row.Scan(
		&alert.ID,
		&alert.Email,
		&alert.FirstName,
		&alert.LastName,
		&alert.Phone,
		&alert.LoanType,
		&targetStr,
		&amountStr,
		&alert.PropertyAddress,
		&alert.Timeframe,
		&statusStr,
		&alert.IdempotencyKey,
		&alert.BrokerID,
		&alert.LoanOfficerID,
		&alert.UserID,
		&alert.NotificationsSent,
		&alert.CreatedAt,
		&alert.UpdatedAt,
		&lastCheck,
		&triggered,
	); err != nil {
		return RateAlert{}, err
	}

	target, err := decimal.NewFromString(targetStr)
	if err != nil {
		return RateAlert{}, fmt.Errorf("parse target rate: %w", err)
	}
	alert.TargetRate = target

	if amountStr != nil {
		amount, err := decimal.NewFromString(*amountStr)
		if err != nil {
			return RateAlert{}, fmt.Errorf("parse loan amount: %w", err)
		}
		alert.LoanAmount = &amount
	}

	alert.Status = Status(statusStr)
	alert.LastChecked = lastCheck
	alert.TriggeredAt = triggered
	return alert, nil
}

func decimalPtrString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	v := d.String()
	return &v
}

func isIdempotencyConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolationCode &&
		(pgErr.ConstraintName == idempotencyKeyIndexName || strings.Contains(pgErr.ConstraintName, "idempotency_key"))
}

var (
	_ AlertStore     = (*Store)(nil)
	_ MonitorStore   = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
	_ Pinger         = (*Store)(nil)
)
