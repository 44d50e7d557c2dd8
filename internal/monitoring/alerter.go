package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/config"
	"github.com/sells-group/leadgen/internal/resilience"
)

// minFinishedJobs is the sample size below which rates are too noisy to alert on.
const minFinishedJobs = 5

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertJobFailureRate AlertType = "job_failure_rate"
	AlertNoResultsSpike AlertType = "no_results_spike"
	AlertLowYield       AlertType = "low_yield"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and notifies the webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.Policy
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.Policy{
			Attempts:   3,
			Backoff:    time.Second,
			MaxBackoff: 10 * time.Second,
			Jitter:     0.2,
		},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	finished := snap.Finished()
	if finished < minFinishedJobs {
		return nil
	}

	var alerts []Alert
	now := time.Now().UTC()

	if snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertJobFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Job failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.JobsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.JobsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	// A jump in empty result lists usually means the listing markup changed.
	if snap.NoResultsRate > a.cfg.NoResultsThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertNoResultsSpike,
			Severity: "high",
			Message: fmt.Sprintf(
				"%.1f%% of jobs found no businesses in last %dh; selectors may be stale",
				snap.NoResultsRate*100, snap.LookbackHours,
			),
			Details: map[string]any{
				"no_results_rate": snap.NoResultsRate,
				"threshold":       a.cfg.NoResultsThreshold,
				"no_results":      snap.JobsNoResults,
				"finished":        finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MinAvgLeads > 0 && snap.JobsComplete > 0 && snap.AvgLeads < a.cfg.MinAvgLeads {
		alerts = append(alerts, Alert{
			Type:     AlertLowYield,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Average %.1f leads per completed job is below %.1f in last %dh",
				snap.AvgLeads, a.cfg.MinAvgLeads, snap.LookbackHours,
			),
			Details: map[string]any{
				"avg_leads":     snap.AvgLeads,
				"min_avg_leads": a.cfg.MinAvgLeads,
				"complete":      snap.JobsComplete,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// serviceName identifies this service in webhook payloads.
const serviceName = "leadgen"

// Notification is the webhook body: the alerts raised by one check together
// with the window they were computed over and the newest failed searches.
type Notification struct {
	Service        string      `json:"service"`
	Alerts         []Alert     `json:"alerts"`
	WindowHours    int         `json:"window_hours"`
	JobsFinished   int         `json:"jobs_finished"`
	JobsFailed     int         `json:"jobs_failed"`
	JobsNoResults  int         `json:"jobs_no_results"`
	AvgLeads       float64     `json:"avg_leads"`
	RecentFailures []FailedJob `json:"recent_failures,omitempty"`
	SentAt         time.Time   `json:"sent_at"`
}

// NewNotification builds the webhook body for alerts raised on snap.
func NewNotification(snap *MetricsSnapshot, alerts []Alert) Notification {
	return Notification{
		Service:        serviceName,
		Alerts:         alerts,
		WindowHours:    snap.LookbackHours,
		JobsFinished:   snap.Finished(),
		JobsFailed:     snap.JobsFailed,
		JobsNoResults:  snap.JobsNoResults,
		AvgLeads:       snap.AvgLeads,
		RecentFailures: snap.RecentFailures,
		SentAt:         time.Now().UTC(),
	}
}

// Notify posts n to the webhook as a single request. Transport errors and 5xx
// replies are retried with backoff; a 4xx reply is final. Without a webhook
// URL or alerts it does nothing.
func (a *Alerter) Notify(ctx context.Context, n Notification) error {
	if a.cfg.WebhookURL == "" || len(n.Alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal notification")
	}

	p := a.retry
	p.OnRetry = resilience.LogRetry("alert webhook", zap.Int("alerts", len(n.Alerts)))
	if err := resilience.Do(ctx, p, func(ctx context.Context) error {
		return a.post(ctx, body)
	}); err != nil {
		notifications.WithLabelValues("failed").Inc()
		return err
	}
	notifications.WithLabelValues("sent").Inc()
	return nil
}

func (a *Alerter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(eris.Wrap(err, "monitoring: create webhook request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", serviceName)

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 500:
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return resilience.Permanent(eris.Errorf("monitoring: webhook rejected notification with status %d", resp.StatusCode))
	}
	return nil
}
