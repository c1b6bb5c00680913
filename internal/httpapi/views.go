package httpapi

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"mortgage-rate-alerts/internal/ratealerts"
	"mortgage-rate-alerts/internal/storage"
)

// Rates are rendered as JSON numbers.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

type alertView struct {
	ID                string         `json:"id"`
	Email             string         `json:"email"`
	FirstName         *string        `json:"firstName"`
	LastName          *string        `json:"lastName"`
	Phone             *string        `json:"phone"`
	LoanType          string         `json:"loanType"`
	TargetRate        json.Number    `json:"targetRate"`
	LoanAmount        *json.Number   `json:"loanAmount"`
	PropertyAddress   *string        `json:"propertyAddress"`
	Timeframe         string         `json:"timeframe"`
	Status            storage.Status `json:"status"`
	BrokerID          *string        `json:"brokerId"`
	LoanOfficerID     *string        `json:"loanOfficerId"`
	UserID            *string        `json:"userId"`
	NotificationsSent int            `json:"notificationsSent"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	LastChecked       *time.Time     `json:"lastChecked"`
	TriggeredAt       *time.Time     `json:"triggeredAt"`
}

type detailView struct {
	alertView
	Notifications []notificationView `json:"notifications"`
}

type notificationView struct {
	ID          string      `json:"id"`
	CurrentRate json.Number `json:"currentRate"`
	Message     string      `json:"message"`
	SentAt      time.Time   `json:"sentAt"`
}

type summaryView struct {
	ID         string         `json:"id"`
	Email      string         `json:"email"`
	LoanType   string         `json:"loanType"`
	TargetRate json.Number    `json:"targetRate"`
	Status     storage.Status `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type statsView struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Triggered int64 `json:"triggered"`
}

func toAlertView(a storage.RateAlert) alertView {
	view := alertView{
		ID:                a.ID,
		Email:             a.Email,
		FirstName:         a.FirstName,
		LastName:          a.LastName,
		Phone:             a.Phone,
		LoanType:          a.LoanType,
		TargetRate:        number(a.TargetRate),
		PropertyAddress:   a.PropertyAddress,
		Timeframe:         a.Timeframe,
		Status:            a.Status,
		BrokerID:          a.BrokerID,
		LoanOfficerID:     a.LoanOfficerID,
		UserID:            a.UserID,
		NotificationsSent: a.NotificationsSent,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
		LastChecked:       a.LastChecked,
		TriggeredAt:       a.TriggeredAt,
	}
	if a.LoanAmount != nil {
		amount := number(*a.LoanAmount)
		view.LoanAmount = &amount
	}
	return view
}

func toDetailView(d ratealerts.Detail) detailView {
	view := detailView{alertView: toAlertView(d.Alert)}
	view.Notifications = make([]notificationView, 0, len(d.Notifications))
	for _, n := range d.Notifications {
		view.Notifications = append(view.Notifications, notificationView{
			ID:          n.ID,
			CurrentRate: number(n.CurrentRate),
			Message:     n.Message,
			SentAt:      n.SentAt,
		})
	}
	return view
}

func toSummaryViews(items []ratealerts.Summary) []summaryView {
	out := make([]summaryView, 0, len(items))
	for _, s := range items {
		out = append(out, summaryView{
			ID:         s.ID,
			Email:      s.Email,
			LoanType:   s.LoanType,
			TargetRate: number(s.TargetRate),
			Status:     s.Status,
			CreatedAt:  s.CreatedAt,
		})
	}
	return out
}

func toAlertViews(items []storage.RateAlert) []alertView {
	out := make([]alertView, 0, len(items))
	for _, a := range items {
		out = append(out, toAlertView(a))
	}
	return out
}
