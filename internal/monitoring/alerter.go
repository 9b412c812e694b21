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

	"github.com/sells-group/question-bank/internal/config"
	"github.com/sells-group/question-bank/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailedTasks AlertType = "failed_tasks"
	AlertFailureRate AlertType = "failure_rate"
)

// minFinishedForRate keeps a handful of early failures from tripping the
// failure-rate alert.
const minFinishedForRate = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Workflow  model.TaskKind `json:"workflow"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks every workflow in the snapshot and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert

	for _, w := range snap.Workflows {
		failed := w.Queue[model.TaskFailed]

		if a.cfg.FailedThreshold > 0 && failed >= a.cfg.FailedThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertFailedTasks,
				Workflow: w.Workflow,
				Severity: "medium",
				Message: fmt.Sprintf("%s has %d failed tasks (threshold %d)",
					w.Workflow, failed, a.cfg.FailedThreshold),
				Details: map[string]any{
					"failed":    failed,
					"threshold": a.cfg.FailedThreshold,
					"pending":   w.Queue[model.TaskPending],
				},
				Timestamp: snap.CollectedAt,
			})
		}

		finished := w.Finished()
		if a.cfg.FailureRateThreshold > 0 && finished >= minFinishedForRate && w.FailureRate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertFailureRate,
				Workflow: w.Workflow,
				Severity: "high",
				Message: fmt.Sprintf("%s failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished)",
					w.Workflow, w.FailureRate*100, a.cfg.FailureRateThreshold*100, failed, finished),
				Details: map[string]any{
					"failure_rate": w.FailureRate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       failed,
					"finished":     finished,
				},
				Timestamp: snap.CollectedAt,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("workflow", string(alert.Workflow)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("workflow", string(alert.Workflow)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
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
