package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(secret string) *WebhookSender {
	s := NewWebhookSender(secret, "boar", 5*time.Second)
	s.backoff = time.Millisecond
	s.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestDeliverSignsCanonicalBody(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := newTestSender("topsecret")
	err := sender.Deliver(context.Background(), srv.URL, "contract.expiring", map[string]interface{}{
		"zeta":     1,
		"alpha":    "x",
		"contract": map[string]interface{}{"id": 7, "days_until_expiry": 10},
	})
	require.NoError(t, err)

	// headers
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "contract.expiring", gotHeaders.Get("X-Event-Type"))
	assert.Equal(t, "2026-08-24T12:00:00Z", gotHeaders.Get("X-Timestamp"))

	// signature over the exact body bytes
	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, gotHeaders.Get("X-Webhook-Signature"))

	// canonical JSON: top-level and data keys sorted
	var env Envelope
	require.NoError(t, json.Unmarshal(gotBody, &env))
	assert.Equal(t, "contract.expiring", env.EventType)
	assert.Equal(t, "boar", env.Source)
	assert.Equal(t, "2026-08-24T12:00:00Z", env.Timestamp)
	assert.JSONEq(t,
		`{"data":{"alpha":"x","contract":{"days_until_expiry":10,"id":7},"zeta":1},"event_type":"contract.expiring","source":"boar","timestamp":"2026-08-24T12:00:00Z"}`,
		string(gotBody))
}

func TestDeliverWithoutSecret(t *testing.T) {
	var signature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := newTestSender("")
	require.NoError(t, sender.Deliver(context.Background(), srv.URL, "report.ready", nil))
	assert.Equal(t, "none", signature)
}

func TestDeliverRetriesOnServerError(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := newTestSender("s")
	require.NoError(t, sender.Deliver(context.Background(), srv.URL, "task.overdue", nil))
	assert.Equal(t, 3, attempts)
}

func TestDeliverGivesUpAfterThreeAttempts(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := newTestSender("s")
	err := sender.Deliver(context.Background(), srv.URL, "task.overdue", nil)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := Sign("secret", body)
	assert.True(t, Verify("secret", body, sig))
	assert.False(t, Verify("other", body, sig))
	assert.False(t, Verify("secret", []byte(`{"a":2}`), sig))
}

func TestContractUrgency(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{3, UrgencyCritical},
		{7, UrgencyCritical},
		{10, UrgencyHigh},
		{14, UrgencyHigh},
		{21, UrgencyMedium},
		{30, UrgencyMedium},
		{31, UrgencyLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContractUrgency(tt.days), "days=%d", tt.days)
	}
}

func TestMilestoneUrgency(t *testing.T) {
	assert.Equal(t, UrgencyCritical, MilestoneUrgency(-2, true))
	assert.Equal(t, UrgencyHigh, MilestoneUrgency(1, false))
	assert.Equal(t, UrgencyMedium, MilestoneUrgency(3, false))
	assert.Equal(t, UrgencyLow, MilestoneUrgency(10, false))
}
