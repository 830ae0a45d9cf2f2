package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/backoffice-suite/boar/pkg/config"
)

func TestEventRouting(t *testing.T) {
	var gotEvents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvents = append(gotEvents, r.Header.Get("X-Event-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	urls := config.WebhookConfig{
		ContractExpiry: srv.URL,
		Milestone:      srv.URL,
		Compliance:     srv.URL,
		Report:         srv.URL,
		Overdue:        srv.URL,
		Assignment:     srv.URL,
		Manager:        srv.URL,
	}
	sender := newTestSender("s")
	notifier := NewNotifier(sender, nil, urls)

	events := []string{
		EventContractExpiring,
		EventContractExpired,
		EventMilestoneOverdue,
		EventComplianceAlert,
		EventReportReady,
		EventTaskOverdue,
		EventTaskAssigned,
		"alert.workload_imbalance",
	}
	for _, ev := range events {
		notifier.Publish(context.Background(), ev, map[string]interface{}{"k": "v"}, "", "")
	}

	assert.Equal(t, events, gotEvents)
}

func TestPublishSkipsUnconfiguredURL(t *testing.T) {
	sender := newTestSender("s")
	notifier := NewNotifier(sender, nil, config.WebhookConfig{})

	// no URL configured and nil email service: must not panic or block
	done := make(chan struct{})
	go func() {
		notifier.Publish(context.Background(), EventReportReady, nil, "subject", "body", "manager@example.com")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var notifier *Notifier
	notifier.Publish(context.Background(), EventTaskOverdue, nil, "", "")
	assert.Nil(t, notifier.Email())
}

func TestNilEmailServiceSendReturnsFalse(t *testing.T) {
	var email *EmailService
	assert.False(t, email.Send(context.Background(), "a@x.com", "s", "t", ""))
}
