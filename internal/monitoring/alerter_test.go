package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen/internal/config"
)

func defaultThresholds() config.MonitoringConfig {
	return config.MonitoringConfig{
		FailureRateThreshold: 0.25,
		NoResultsThreshold:   0.5,
	}
}

func TestAlerter_Evaluate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.MonitoringConfig
		snap  MetricsSnapshot
		want  []AlertType
		inMsg string
	}{
		{
			name: "healthy",
			cfg:  defaultThresholds(),
			snap: MetricsSnapshot{JobsComplete: 19, JobsFailed: 1, FailRate: 0.05, NoResultsRate: 0.05, AvgLeads: 18},
		},
		{
			name:  "failure rate",
			cfg:   defaultThresholds(),
			snap:  MetricsSnapshot{JobsComplete: 6, JobsFailed: 4, FailRate: 0.4, NoResultsRate: 0.1, LookbackHours: 24},
			want:  []AlertType{AlertJobFailureRate},
			inMsg: "40.0%",
		},
		{
			name:  "no results spike",
			cfg:   defaultThresholds(),
			snap:  MetricsSnapshot{JobsComplete: 4, JobsFailed: 6, JobsNoResults: 6, FailRate: 0.6, NoResultsRate: 0.6, LookbackHours: 24},
			want:  []AlertType{AlertJobFailureRate, AlertNoResultsSpike},
			inMsg: "60.0%",
		},
		{
			name: "low yield",
			cfg:  config.MonitoringConfig{FailureRateThreshold: 0.25, NoResultsThreshold: 0.5, MinAvgLeads: 10},
			snap: MetricsSnapshot{JobsComplete: 8, AvgLeads: 3.5, LookbackHours: 24},
			want: []AlertType{AlertLowYield},
		},
		{
			name: "low yield disabled",
			cfg:  defaultThresholds(),
			snap: MetricsSnapshot{JobsComplete: 8, AvgLeads: 1},
		},
		{
			name: "too few finished jobs",
			cfg:  defaultThresholds(),
			snap: MetricsSnapshot{JobsComplete: 1, JobsFailed: 3, FailRate: 0.75, NoResultsRate: 0.75},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := NewAlerter(tt.cfg).Evaluate(&tt.snap)

			var got []AlertType
			for _, a := range alerts {
				got = append(got, a.Type)
				assert.False(t, a.Timestamp.IsZero())
			}
			assert.Equal(t, tt.want, got)
			if tt.inMsg != "" {
				require.NotEmpty(t, alerts)
				assert.Contains(t, alerts[len(alerts)-1].Message, tt.inMsg)
			}
		})
	}
}

func fastAlerter(cfg config.MonitoringConfig) *Alerter {
	a := NewAlerter(cfg)
	a.retry.Backoff = time.Millisecond
	a.retry.MaxBackoff = time.Millisecond
	return a
}

func TestAlerter_Notify_SinglePayload(t *testing.T) {
	var received atomic.Int32
	var got Notification
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := defaultThresholds()
	cfg.WebhookURL = ts.URL

	snap := &MetricsSnapshot{
		JobsComplete: 4, JobsFailed: 6, JobsNoResults: 5, AvgLeads: 12.5, LookbackHours: 24,
		RecentFailures: []FailedJob{{ID: "job-9", Query: "Bakeries in Kerala, India", Error: "No businesses found", NoResults: true}},
	}
	n := NewNotification(snap, []Alert{
		{Type: AlertJobFailureRate, Severity: "high", Message: "failing"},
		{Type: AlertNoResultsSpike, Severity: "high", Message: "selectors may be stale"},
	})

	require.NoError(t, fastAlerter(cfg).Notify(context.Background(), n))
	assert.Equal(t, int32(1), received.Load(), "alerts are batched into one request")

	assert.Equal(t, "leadgen", got.Service)
	assert.Equal(t, 24, got.WindowHours)
	assert.Equal(t, 10, got.JobsFinished)
	assert.Equal(t, 6, got.JobsFailed)
	assert.Equal(t, 5, got.JobsNoResults)
	assert.InDelta(t, 12.5, got.AvgLeads, 0.001)
	require.Len(t, got.Alerts, 2)
	assert.Equal(t, AlertNoResultsSpike, got.Alerts[1].Type)
	require.Len(t, got.RecentFailures, 1)
	assert.Equal(t, "Bakeries in Kerala, India", got.RecentFailures[0].Query)
	assert.False(t, got.SentAt.IsZero())
}

func TestAlerter_Notify_NoOp(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		alerts []Alert
	}{
		{"no webhook", "", []Alert{{Type: AlertLowYield}}},
		{"no alerts", "http://127.0.0.1:1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultThresholds()
			cfg.WebhookURL = tt.url
			n := NewNotification(&MetricsSnapshot{}, tt.alerts)
			assert.NoError(t, fastAlerter(cfg).Notify(context.Background(), n))
		})
	}
}

func TestAlerter_Notify_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := defaultThresholds()
	cfg.WebhookURL = ts.URL

	n := NewNotification(&MetricsSnapshot{}, []Alert{{Type: AlertJobFailureRate}})
	require.NoError(t, fastAlerter(cfg).Notify(context.Background(), n))
	assert.Equal(t, int32(3), calls.Load())
}

func TestAlerter_Notify_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
		wantMsg   string
	}{
		{"server error exhausts retries", http.StatusBadGateway, 3, "status 502"},
		{"client error is final", http.StatusUnauthorized, 1, "rejected notification with status 401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			cfg := defaultThresholds()
			cfg.WebhookURL = ts.URL

			n := NewNotification(&MetricsSnapshot{}, []Alert{{Type: AlertJobFailureRate}})
			err := fastAlerter(cfg).Notify(context.Background(), n)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}
