package ratealerts

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"mortgage-rate-alerts/internal/storage"
)

// CreateInput is the body of a create request.
type CreateInput struct {
	Email           string           `json:"email" validate:"required,email,max=255"`
	FirstName       *string          `json:"firstName" validate:"omitempty,max=100"`
	LastName        *string          `json:"lastName" validate:"omitempty,max=100"`
	Phone           *string          `json:"phone" validate:"omitempty,max=30"`
	LoanType        string           `json:"loanType" validate:"required,loantype"`
	TargetRate      decimal.Decimal  `json:"targetRate"`
	LoanAmount      *decimal.Decimal `json:"loanAmount"`
	PropertyAddress *string          `json:"propertyAddress" validate:"omitempty,max=500"`
	Timeframe       string           `json:"timeframe" validate:"omitempty,timeframe"`
	UserID          *string          `json:"userId" validate:"omitempty,max=100"`
	BrokerID        *string          `json:"brokerId" validate:"omitempty,max=100"`
	LoanOfficerID   *string          `json:"loanOfficerId" validate:"omitempty,max=100"`
}

// RequestContext carries the ambient request attributes of a create call.
type RequestContext struct {
	IdempotencyKey string
	BrokerID       string
	LoanOfficerID  string
}

// CreateResult is returned by Create. Created is false for an idempotent replay.
type CreateResult struct {
	AlertID    string
	Message    string
	TargetRate decimal.Decimal
	LoanType   string
	Email      string
	Created    bool
}

// Summary is the projection returned by List.
type Summary struct {
	ID         string          `json:"id"`
	Email      string          `json:"email"`
	LoanType   string          `json:"loanType"`
	TargetRate decimal.Decimal `json:"targetRate"`
	Status     storage.Status  `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// ListResult is returned by List.
type ListResult struct {
	Alerts []Summary
	Total  int
}

// Detail is a full alert with its most recent notifications.
type Detail struct {
	Alert         storage.RateAlert
	Notifications []storage.Notification
}

// UpdateInput carries the mutable fields; nil fields are left untouched.
type UpdateInput struct {
	TargetRate *decimal.Decimal `json:"targetRate"`
	LoanType   *string          `json:"loanType" validate:"omitempty,loantype"`
	Timeframe  *string          `json:"timeframe" validate:"omitempty,timeframe"`
	Status     *string          `json:"status" validate:"omitempty,alertstatus"`
}

// Pagination describes one admin page.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// AdminPage is returned by AdminList.
type AdminPage struct {
	Alerts     []storage.RateAlert
	Pagination Pagination
	Stats      storage.AlertStats
}

// Limits are the per-email abuse caps.
type Limits struct {
	MaxActivePerEmail int
	MaxDailyPerEmail  int
}

// DefaultLimits are five active alerts and ten creations per UTC day.
var DefaultLimits = Limits{MaxActivePerEmail: 5, MaxDailyPerEmail: 10}

const (
	defaultAdminLimit    = 20
	maxAdminLimit        = 100
	maxAdminPage         = math.MaxInt / maxAdminLimit
	detailNotifications  = 10
	messageCreated       = "Rate alert created successfully"
	messageAlreadyExists = "Rate alert already exists"
)
