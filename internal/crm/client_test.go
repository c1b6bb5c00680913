package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLeadPostsPayload(t *testing.T) {
	var (
		got  Lead
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/leads", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "key", time.Second, zerolog.Nop())
	err := client.CreateLead(context.Background(), Lead{
		Email:      "a@x.com",
		AlertID:    "alert-1",
		LoanType:   "FHA",
		TargetRate: "6.25",
		BrokerID:   "broker-9",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer key", auth)
	assert.Equal(t, "rate_alert", got.Source)
	assert.Equal(t, "alert-1", got.AlertID)
	assert.Equal(t, "broker-9", got.BrokerID)
}

func TestCreateLeadReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second, zerolog.Nop())
	err := client.CreateLead(context.Background(), Lead{Email: "a@x.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
