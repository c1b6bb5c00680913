package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps alerts in process memory. It backs tests and runs without a
// database; the idempotency key index gives the same uniqueness guarantee as the
// PostgreSQL constraint.
type MemoryStore struct {
	mu            sync.RWMutex
	alerts        map[string]RateAlert
	byKey         map[string]string
	notifications map[string][]Notification
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:        map[string]RateAlert{},
		byKey:         map[string]string{},
		notifications: map[string][]Notification{},
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) CreateAlert(_ context.Context, alert RateAlert) (RateAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if alert.IdempotencyKey != nil {
		if _, exists := m.byKey[*alert.IdempotencyKey]; exists {
			return RateAlert{}, ErrDuplicateIdempotencyKey
		}
		m.byKey[*alert.IdempotencyKey] = alert.ID
	}
	alert.UpdatedAt = alert.CreatedAt
	m.alerts[alert.ID] = alert
	return cloneAlert(alert), nil
}

func (m *MemoryStore) GetAlert(_ context.Context, id string) (RateAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alert, ok := m.alerts[id]
	if !ok {
		return RateAlert{}, ErrNotFound
	}
	return cloneAlert(alert), nil
}

func (m *MemoryStore) FindByIdempotencyKey(_ context.Context, key string) (RateAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[key]
	if !ok {
		return RateAlert{}, ErrNotFound
	}
	return cloneAlert(m.alerts[id]), nil
}

func (m *MemoryStore) CountActiveByEmail(_ context.Context, email string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, alert := range m.alerts {
		if alert.Email == email && alert.Status == StatusActive {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountCreatedSince(_ context.Context, email string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, alert := range m.alerts {
		if alert.Email == email && !alert.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) ListByEmail(_ context.Context, email string, includeAll bool) ([]RateAlert, error) {
	return m.filter(func(a RateAlert) bool {
		return a.Email == email && (includeAll || a.Status == StatusActive)
	}, true), nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, offset, limit int) ([]RateAlert, error) {
	all := m.filter(func(RateAlert) bool { return true }, true)
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) || end < offset {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *MemoryStore) ListActiveAlerts(context.Context) ([]RateAlert, error) {
	return m.filter(func(a RateAlert) bool { return a.Status == StatusActive }, false), nil
}

func (m *MemoryStore) filter(keep func(RateAlert) bool, newestFirst bool) []RateAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RateAlert, 0)
	for _, alert := range m.alerts {
		if keep(alert) {
			out = append(out, cloneAlert(alert))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryStore) UpdateAlert(_ context.Context, id string, patch AlertPatch, at time.Time) (RateAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return RateAlert{}, ErrNotFound
	}
	if patch.TargetRate != nil {
		alert.TargetRate = *patch.TargetRate
	}
	if patch.LoanType != nil {
		alert.LoanType = *patch.LoanType
	}
	if patch.Timeframe != nil {
		alert.Timeframe = *patch.Timeframe
	}
	if patch.Status != nil {
		alert.Status = *patch.Status
	}
	alert.UpdatedAt = at
	m.alerts[id] = alert
	return cloneAlert(alert), nil
}

func (m *MemoryStore) ListNotifications(_ context.Context, alertID string, limit int) ([]Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	notes := append([]Notification(nil), m.notifications[alertID]...)
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].SentAt.After(notes[j].SentAt) })
	if len(notes) > limit {
		notes = notes[:limit]
	}
	return notes, nil
}

func (m *MemoryStore) Stats(context.Context) (AlertStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats AlertStats
	for _, alert := range m.alerts {
		stats.Total++
		switch alert.Status {
		case StatusActive:
			stats.Active++
		case StatusTriggered:
			stats.Triggered++
		}
	}
	return stats, nil
}

func (m *MemoryStore) MarkChecked(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok || alert.Status != StatusActive {
		return nil
	}
	checked := at
	alert.LastChecked = &checked
	m.alerts[id] = alert
	return nil
}

// MarkTriggered mirrors the transactional PostgreSQL update under the store mutex.
func (m *MemoryStore) MarkTriggered(_ context.Context, trigger Trigger) (RateAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[trigger.AlertID]
	if !ok || alert.Status != StatusActive {
		return RateAlert{}, ErrNotActive
	}

	at := trigger.At
	alert.Status = StatusTriggered
	if alert.TriggeredAt == nil {
		alert.TriggeredAt = &at
	}
	alert.LastChecked = &at
	alert.UpdatedAt = at
	alert.NotificationsSent++
	m.alerts[alert.ID] = alert

	m.notifications[alert.ID] = append(m.notifications[alert.ID], Notification{
		ID:          trigger.NotificationID,
		AlertID:     alert.ID,
		CurrentRate: trigger.CurrentRate,
		Message:     trigger.Message,
		SentAt:      at,
	})
	return cloneAlert(alert), nil
}

func cloneAlert(a RateAlert) RateAlert {
	if a.LastChecked != nil {
		v := *a.LastChecked
		a.LastChecked = &v
	}
	if a.TriggeredAt != nil {
		v := *a.TriggeredAt
		a.TriggeredAt = &v
	}
	return a
}

var (
	_ AlertStore   = (*MemoryStore)(nil)
	_ MonitorStore = (*MemoryStore)(nil)
	_ Pinger       = (*MemoryStore)(nil)
)
