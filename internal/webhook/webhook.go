// Package webhook delivers an optional, secondary notification of job
// state changes as an outbound HTTP POST, for desktop automation or CI
// integrations that want to react to a job's completion without holding
// a JSON-RPC connection open. Grounded on
// arkeep/server/internal/notification/sender_webhook.go: the payload
// shape, the silent skip when disabled, and the
// HMAC-SHA256 request signature are all adapted from it; this broker has
// a single configured webhook rather than the teacher's per-tenant
// settings repository, so Config is a plain injected value, not something
// loaded per-send.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

// Config describes the single outbound webhook this broker delivers to.
// A zero-value Config (Enabled false) means webhook delivery is off.
type Config struct {
	URL     string
	Secret  string // optional HMAC-SHA256 signing secret
	Enabled bool
}

// payload is the JSON body POSTed to Config.URL.
type payload struct {
	Type        string `json:"type"`
	MoleQueueID uint64 `json:"moleQueueId"`
	Queue       string `json:"queue"`
	Program     string `json:"program"`
	OldState    string `json:"oldState"`
	NewState    string `json:"newState"`
	Timestamp   string `json:"timestamp"`
}

// Sender posts job state change notifications to a configured webhook
// URL. The zero value is not usable; construct with New.
type Sender struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New returns a Sender for cfg. Send is a no-op whenever cfg.Enabled is
// false, so callers can construct and wire a Sender unconditionally.
func New(cfg Config, logger *zap.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Send POSTs one job-state-change notification. Skipped silently if the
// webhook is disabled.
func (s *Sender) Send(ctx context.Context, id jobs.ID, data jobs.Data, old, new jobs.State) error {
	if !s.cfg.Enabled {
		return nil
	}

	body, err := json.Marshal(payload{
		Type:        "job.status",
		MoleQueueID: uint64(id),
		Queue:       data.Queue,
		Program:     data.Program,
		OldState:    old.String(),
		NewState:    new.String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "MoleQueue-Webhook/1.0")

	if s.cfg.Secret != "" {
		req.Header.Set("X-MoleQueue-Signature", "sha256="+signBody(body, s.cfg.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: non-2xx response %d", resp.StatusCode)
	}
	return nil
}

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
