package storage

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a rate alert.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusTriggered Status = "TRIGGERED"
	StatusExpired   Status = "EXPIRED"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusActive, StatusInactive, StatusTriggered, StatusExpired}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, candidate := range Statuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// LoanTypes is the fixed set of loan type categories an alert may target.
var LoanTypes = []string{
	"30-Year Fixed",
	"15-Year Fixed",
	"FHA",
	"VA",
	"ARM",
	"Jumbo",
	"USDA",
	"20-Year Fixed",
}

// Timeframes is the fixed set of alert timeframes.
var Timeframes = []string{"30 days", "60 days", "90 days", "180 days", "365 days"}

// DefaultTimeframe applies when a create request omits timeframe.
const DefaultTimeframe = "90 days"

// ValidLoanType reports whether v belongs to LoanTypes.
func ValidLoanType(v string) bool { return contains(LoanTypes, v) }

// ValidTimeframe reports whether v belongs to Timeframes.
func ValidTimeframe(v string) bool { return contains(Timeframes, v) }

// CanonicalLoanType matches v case-insensitively against LoanTypes.
// Config maps arrive lower-cased, so the rate table goes through here.
func CanonicalLoanType(v string) (string, bool) {
	for _, candidate := range LoanTypes {
		if strings.EqualFold(candidate, strings.TrimSpace(v)) {
			return candidate, true
		}
	}
	return "", false
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// RateAlert is a persisted request to be notified when a loan type's rate
// falls to or below TargetRate.
type RateAlert struct {
	ID                string
	Email             string
	FirstName         *string
	LastName          *string
	Phone             *string
	LoanType          string
	TargetRate        decimal.Decimal
	LoanAmount        *decimal.Decimal
	PropertyAddress   *string
	Timeframe         string
	Status            Status
	IdempotencyKey    *string
	BrokerID          *string
	LoanOfficerID     *string
	UserID            *string
	NotificationsSent int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastChecked       *time.Time
	TriggeredAt       *time.Time
}

// Notification records one triggered event of an alert.
type Notification struct {
	ID          string
	AlertID     string
	CurrentRate decimal.Decimal
	Message     string
	SentAt      time.Time
}

// AlertPatch carries the mutable fields of an alert; nil means untouched.
type AlertPatch struct {
	TargetRate *decimal.Decimal
	LoanType   *string
	Timeframe  *string
	Status     *Status
}

// Empty reports whether the patch changes nothing.
func (p AlertPatch) Empty() bool {
	return p.TargetRate == nil && p.LoanType == nil && p.Timeframe == nil && p.Status == nil
}

// Trigger describes the atomic ACTIVE -> TRIGGERED transition.
type Trigger struct {
	AlertID        string
	NotificationID string
	CurrentRate    decimal.Decimal
	Message        string
	At             time.Time
}

// AlertStats aggregates alert counts for the admin view.
type AlertStats struct {
	Total     int64
	Active    int64
	Triggered int64
}
