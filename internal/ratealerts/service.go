package ratealerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mortgage-rate-alerts/internal/apperr"
	"mortgage-rate-alerts/internal/crm"
	"mortgage-rate-alerts/internal/metrics"
	"mortgage-rate-alerts/internal/storage"
)

// LeadSink receives a lead for each newly created alert.
type LeadSink interface {
	CreateLead(ctx context.Context, lead crm.Lead) error
}

// Service implements alert creation, reads, updates and soft deletes.
type Service struct {
	store    storage.AlertStore
	leads    LeadSink
	limits   Limits
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLimits overrides the per-email caps; non-positive values keep the defaults.
func WithLimits(limits Limits) Option {
	return func(s *Service) {
		if limits.MaxActivePerEmail > 0 {
			s.limits.MaxActivePerEmail = limits.MaxActivePerEmail
		}
		if limits.MaxDailyPerEmail > 0 {
			s.limits.MaxDailyPerEmail = limits.MaxDailyPerEmail
		}
	}
}

// WithLeadSink sets the CRM lead sink.
func WithLeadSink(leads LeadSink) Option {
	return func(s *Service) {
		if leads != nil {
			s.leads = leads
		}
	}
}

// NewService constructs the service.
func NewService(store storage.AlertStore, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		leads:    crm.Noop{},
		limits:   DefaultLimits,
		validate: newValidator(),
		logger:   logger.With().Str("component", "rate_alerts").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create persists a new alert, or returns the alert already created under the
// same idempotency key.
func (s *Service) Create(ctx context.Context, input CreateInput, rc RequestContext) (CreateResult, error) {
	key := strings.TrimSpace(rc.IdempotencyKey)
	if key == "" {
		return CreateResult{}, apperr.IdempotencyKeyRequired()
	}

	input.Email = normalizeEmail(input.Email)
	if err := s.validate.StructCtx(ctx, input); err != nil {
		return CreateResult{}, validationError(err)
	}

	existing, err := s.store.FindByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		return replayResult(existing), nil
	case !errors.Is(err, storage.ErrNotFound):
		return CreateResult{}, fmt.Errorf("lookup idempotency key: %w", err)
	}

	brokerID := mergeTenant(input.BrokerID, rc.BrokerID)
	loanOfficerID := mergeTenant(input.LoanOfficerID, rc.LoanOfficerID)

	active, err := s.store.CountActiveByEmail(ctx, input.Email)
	if err != nil {
		return CreateResult{}, fmt.Errorf("count active alerts: %w", err)
	}
	if active >= s.limits.MaxActivePerEmail {
		return CreateResult{}, apperr.MaxActiveAlerts(s.limits.MaxActivePerEmail)
	}

	now := s.now().UTC()
	today, err := s.store.CountCreatedSince(ctx, input.Email, startOfDay(now))
	if err != nil {
		return CreateResult{}, fmt.Errorf("count daily alerts: %w", err)
	}
	if today >= s.limits.MaxDailyPerEmail {
		return CreateResult{}, apperr.MaxDailyAlerts(s.limits.MaxDailyPerEmail)
	}

	timeframe := input.Timeframe
	if timeframe == "" {
		timeframe = storage.DefaultTimeframe
	}
	checked := now
	alert := storage.RateAlert{
		ID:                s.newID(),
		Email:             input.Email,
		FirstName:         trimmed(input.FirstName),
		LastName:          trimmed(input.LastName),
		Phone:             trimmed(input.Phone),
		LoanType:          input.LoanType,
		TargetRate:        input.TargetRate,
		LoanAmount:        input.LoanAmount,
		PropertyAddress:   trimmed(input.PropertyAddress),
		Timeframe:         timeframe,
		Status:            storage.StatusActive,
		IdempotencyKey:    &key,
		BrokerID:          brokerID,
		LoanOfficerID:     loanOfficerID,
		UserID:            trimmed(input.UserID),
		NotificationsSent: 0,
		CreatedAt:         now,
		UpdatedAt:         now,
		LastChecked:       &checked,
	}

	created, err := s.store.CreateAlert(ctx, alert)
	if errors.Is(err, storage.ErrDuplicateIdempotencyKey) {
		// A concurrent request with the same key won the insert.
		winner, findErr := s.store.FindByIdempotencyKey(ctx, key)
		if findErr != nil {
			return CreateResult{}, fmt.Errorf("reload alert after key conflict: %w", findErr)
		}
		s.logger.Info().Str("alert_id", winner.ID).Msg("idempotency key conflict resolved to existing alert")
		return replayResult(winner), nil
	}
	if err != nil {
		return CreateResult{}, fmt.Errorf("create alert: %w", err)
	}

	metrics.AlertsCreated.WithLabelValues(created.LoanType).Inc()
	s.logger.Info().
		Str("alert_id", created.ID).
		Str("loan_type", created.LoanType).
		Str("target_rate", created.TargetRate.String()).
		Msg("rate alert created")

	if err := s.leads.CreateLead(ctx, leadFor(created)); err != nil {
		s.logger.Warn().Err(err).Str("alert_id", created.ID).Msg("lead creation failed")
	}

	return CreateResult{
		AlertID:    created.ID,
		Message:    messageCreated,
		TargetRate: created.TargetRate,
		LoanType:   created.LoanType,
		Email:      created.Email,
		Created:    true,
	}, nil
}

// List returns an email's alerts, newest first. Only ACTIVE alerts unless includeAll.
func (s *Service) List(ctx context.Context, email string, includeAll bool) (ListResult, error) {
	email = normalizeEmail(email)
	if err := s.validate.VarCtx(ctx, email, "required,email"); err != nil {
		return ListResult{}, apperr.Validation("Invalid request", []FieldError{{Field: "email", Message: "must be a valid email address"}})
	}

	alerts, err := s.store.ListByEmail(ctx, email, includeAll)
	if err != nil {
		return ListResult{}, fmt.Errorf("list alerts: %w", err)
	}

	out := make([]Summary, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, Summary{
			ID:         alert.ID,
			Email:      alert.Email,
			LoanType:   alert.LoanType,
			TargetRate: alert.TargetRate,
			Status:     alert.Status,
			CreatedAt:  alert.CreatedAt,
		})
	}
	return ListResult{Alerts: out, Total: len(out)}, nil
}

// Get returns the full alert and its ten most recent notifications.
func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	alert, err := s.load(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	notes, err := s.store.ListNotifications(ctx, alert.ID, detailNotifications)
	if err != nil {
		return Detail{}, fmt.Errorf("list notifications: %w", err)
	}
	return Detail{Alert: alert, Notifications: notes}, nil
}

// Update applies any subset of the mutable fields. Re-activating an alert does
// not re-check the active cap.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (storage.RateAlert, error) {
	if err := s.validate.StructCtx(ctx, input); err != nil {
		return storage.RateAlert{}, validationError(err)
	}
	if !validID(id) {
		return storage.RateAlert{}, apperr.AlertNotFound()
	}

	patch := storage.AlertPatch{
		TargetRate: input.TargetRate,
		LoanType:   input.LoanType,
		Timeframe:  input.Timeframe,
	}
	if input.Status != nil {
		status := storage.Status(*input.Status)
		patch.Status = &status
	}
	if patch.Empty() {
		return s.load(ctx, id)
	}

	updated, err := s.store.UpdateAlert(ctx, id, patch, s.now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		return storage.RateAlert{}, apperr.AlertNotFound()
	}
	if err != nil {
		return storage.RateAlert{}, fmt.Errorf("update alert: %w", err)
	}

	s.logger.Info().Str("alert_id", id).Str("status", string(updated.Status)).Msg("rate alert updated")
	return updated, nil
}

// Deactivate soft-deletes an alert by moving it to INACTIVE.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if !validID(id) {
		return apperr.AlertNotFound()
	}

	inactive := storage.StatusInactive
	_, err := s.store.UpdateAlert(ctx, id, storage.AlertPatch{Status: &inactive}, s.now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.AlertNotFound()
	}
	if err != nil {
		return fmt.Errorf("deactivate alert: %w", err)
	}

	s.logger.Info().Str("alert_id", id).Msg("rate alert deactivated")
	return nil
}

// AdminList pages through every alert, newest first, with aggregate counts.
// Zero page or limit selects the defaults.
func (s *Service) AdminList(ctx context.Context, page, limit int) (AdminPage, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultAdminLimit
	}
	var details []FieldError
	switch {
	case page < 1:
		details = append(details, FieldError{Field: "page", Message: "must be at least 1"})
	case page > maxAdminPage:
		details = append(details, FieldError{Field: "page", Message: fmt.Sprintf("must be at most %d", maxAdminPage)})
	}
	if limit < 1 || limit > maxAdminLimit {
		details = append(details, FieldError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxAdminLimit)})
	}
	if len(details) > 0 {
		return AdminPage{}, apperr.Validation("Invalid pagination", details)
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return AdminPage{}, fmt.Errorf("alert stats: %w", err)
	}
	alerts, err := s.store.ListAlerts(ctx, (page-1)*limit, limit)
	if err != nil {
		return AdminPage{}, fmt.Errorf("list alerts: %w", err)
	}

	totalPages := int((stats.Total + int64(limit) - 1) / int64(limit))
	return AdminPage{
		Alerts: alerts,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      stats.Total,
			TotalPages: totalPages,
		},
		Stats: stats,
	}, nil
}

func (s *Service) load(ctx context.Context, id string) (storage.RateAlert, error) {
	if !validID(id) {
		return storage.RateAlert{}, apperr.AlertNotFound()
	}
	alert, err := s.store.GetAlert(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.RateAlert{}, apperr.AlertNotFound()
	}
	if err != nil {
		return storage.RateAlert{}, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

func replayResult(alert storage.RateAlert) CreateResult {
	return CreateResult{
		AlertID:    alert.ID,
		Message:    messageAlreadyExists,
		TargetRate: alert.TargetRate,
		LoanType:   alert.LoanType,
		Email:      alert.Email,
		Created:    false,
	}
}

func leadFor(alert storage.RateAlert) crm.Lead {
	lead := crm.Lead{
		Email:         alert.Email,
		FirstName:     deref(alert.FirstName),
		LastName:      deref(alert.LastName),
		Phone:         deref(alert.Phone),
		AlertID:       alert.ID,
		LoanType:      alert.LoanType,
		TargetRate:    alert.TargetRate.String(),
		BrokerID:      deref(alert.BrokerID),
		LoanOfficerID: deref(alert.LoanOfficerID),
	}
	if alert.LoanAmount != nil {
		lead.LoanAmount = alert.LoanAmount.String()
	}
	return lead
}

// mergeTenant prefers a non-empty body value over the header value.
func mergeTenant(body *string, header string) *string {
	if v := trimmed(body); v != nil {
		return v
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	return &header
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
