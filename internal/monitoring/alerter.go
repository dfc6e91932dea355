package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rayven/internal/config"
	"github.com/sells-group/rayven/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertStaleRuns      AlertType = "stale_runs"
)

// minFinishedRuns is the sample size below which failure rates are ignored.
const minFinishedRuns = 5

// webhookFailures consecutive delivery failures pause the webhook for
// webhookCooldownChecks check intervals.
const (
	webhookFailures       = 3
	webhookCooldownChecks = 3
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a RunSnapshot against configured thresholds and posts
// alerts to a webhook.
type Alerter struct {
	cfg     config.MonitoringConfig
	client  *http.Client
	breaker *resilience.Breaker
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Threshold: webhookFailures,
			Cooldown:  webhookCooldownChecks * interval,
			OnChange: func(from, to resilience.BreakerState) {
				zap.L().Warn("monitoring: webhook breaker state changed",
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *RunSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.Complete + snap.Failed
	if finished >= minFinishedRuns && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Simulation failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100, snap.Failed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.Stale > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStaleRuns,
			Severity: "medium",
			Message: fmt.Sprintf("%d run(s) still running after %dh without an update",
				snap.Stale, a.cfg.StaleRunHours),
			Details: map[string]any{
				"stale":   snap.Stale,
				"running": snap.Running,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL. Without a URL
// alerts are only logged, and while the webhook breaker is open delivery is
// skipped. Returns the number of alerts delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	sent := 0
	for _, alert := range alerts {
		zap.L().Warn("monitoring: alert",
			zap.String("type", string(alert.Type)),
			zap.String("message", alert.Message),
		)
		if a.cfg.WebhookURL == "" {
			continue
		}
		err := a.breaker.Execute(ctx, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if errors.Is(err, resilience.ErrBreakerOpen) {
			zap.L().Debug("monitoring: webhook paused", zap.String("type", string(alert.Type)))
			continue
		}
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
