package service

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/config"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/logger"
)

// Notifier posts a job's final snapshot to a configured webhook. With no
// webhook configured every call is a no-op.
type Notifier struct {
	client *resty.Client
	url    string
	logger *logger.Logger
}

// NewNotifier creates a webhook notifier from configuration.
func NewNotifier(cfg *config.NotifyConfig, log *logger.Logger) *Notifier {
	n := &Notifier{logger: log}
	if cfg == nil || cfg.WebhookURL == "" {
		return n
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)
	client.SetRetryCount(2)

	n.client = client
	n.url = cfg.WebhookURL
	return n
}

// NotifyTerminal delivers the terminal snapshot. Delivery is best-effort;
// a failed post is logged and never affects the job outcome.
func (n *Notifier) NotifyTerminal(ctx context.Context, snap Snapshot) {
	if n.client == nil {
		return
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(snap).
		Post(n.url)

	log := n.logger.WithFields(logger.Fields{
		logger.FieldJobID: snap.JobID,
		"webhook":         n.url,
	})
	if err != nil {
		log.WithError(err).Warn("Webhook notification failed")
		return
	}
	if resp.IsError() {
		log.Warnf("Webhook notification returned status %d", resp.StatusCode())
		return
	}
	log.Debug("Webhook notification delivered")
}
