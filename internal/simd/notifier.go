package simd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/habituation-core/internal/policy"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/logger"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

var (
	ErrInvalidURL       = errors.New("invalid callback url")
	ErrMetadataEndpoint = errors.New("callback url targets a metadata endpoint")
)

// ValidateCallbackURL accepts absolute http(s) URLs that do not point at a
// cloud metadata service or the wildcard address.
func ValidateCallbackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if host == "metadata.google.internal" || host == "169.254.169.254" {
		return fmt.Errorf("%w: %s", ErrMetadataEndpoint, host)
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		return fmt.Errorf("%w: unspecified address %s", ErrInvalidURL, host)
	}
	return nil
}

// NotificationPayload is POSTed to a run's callback URL when it ends.
type NotificationPayload struct {
	RunID     string             `json:"run_id"`
	Status    models.RunStatus   `json:"status"`
	Model     string             `json:"model,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	StartedAt time.Time          `json:"started_at,omitempty"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Error     string             `json:"error,omitempty"`
	Summary   *models.RunSummary `json:"summary,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// Notifier delivers run completion callbacks with retries.
type Notifier struct {
	httpClient *http.Client
	retry      policy.RetryPolicy
	log        *slog.Logger
}

// DefaultRetryPolicy retries three times with exponential backoff from one second.
func DefaultRetryPolicy() policy.RetryPolicy {
	p, _ := policy.NewRetryPolicy(true, 3, policy.BackoffExponential, time.Second)
	return p
}

// NewNotifier returns a notifier using retry, or DefaultRetryPolicy when nil.
func NewNotifier(retry policy.RetryPolicy) *Notifier {
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &Notifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      retry,
		log:        logger.Component("notifier"),
	}
}

// Notify sends the callback for rec in the background. It is a no-op when
// the run has no callback URL.
func (n *Notifier) Notify(rec *RunRecord) <-chan error {
	done := make(chan error, 1)
	if rec == nil || rec.Run == nil || rec.Input.CallbackURL == "" {
		done <- nil
		return done
	}

	url := strings.ReplaceAll(rec.Input.CallbackURL, "{run_id}", rec.Run.ID)
	payload := NotificationPayload{
		RunID:     rec.Run.ID,
		Status:    rec.Run.Status,
		Model:     rec.Run.Model,
		CreatedAt: rec.Run.CreatedAt,
		StartedAt: rec.Run.StartedAt,
		EndedAt:   rec.Run.EndedAt,
		Error:     rec.Run.Error,
		Timestamp: time.Now().UTC().UnixMilli(),
	}
	if rec.Run.Summary != nil {
		sum := *rec.Run.Summary
		sum.Peaks = nil
		payload.Summary = &sum
	}

	go func() {
		done <- n.send(url, rec.Input.CallbackSecret, payload)
	}()
	return done
}

func (n *Notifier) send(url, secret string, payload NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error("failed to marshal notification payload", "run_id", payload.RunID, "error", err)
		return err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if !n.retry.ShouldRetry(attempt-1, lastErr) {
				break
			}
			delay := n.retry.Backoff(attempt)
			n.log.Debug("retrying notification", "run_id", payload.RunID, "attempt", attempt, "delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "habituation-core/1.0")
		if secret != "" {
			req.Header.Set("X-Habsim-Callback-Secret", secret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			n.log.Warn("notification attempt failed", "run_id", payload.RunID, "attempt", attempt+1, "error", err)
			continue
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			n.log.Info("notification sent", "run_id", payload.RunID, "status", payload.Status, "status_code", resp.StatusCode)
			return nil
		}
		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		n.log.Warn("notification returned non-2xx status",
			"run_id", payload.RunID,
			"status_code", resp.StatusCode,
			"response_body", string(snippet),
			"attempt", attempt+1)
	}

	n.log.Error("failed to send notification after retries",
		"run_id", payload.RunID,
		"max_retries", n.retry.MaxRetries(),
		"last_error", lastErr)
	return lastErr
}
