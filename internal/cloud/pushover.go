package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"go.uber.org/zap"
)

// PushoverConfig holds the notification service settings
type PushoverConfig struct {
	BaseURL   string // e.g. https://api.pushover.net
	AppToken  string
	UserToken string
	Title     string
	Timeout   time.Duration
}

// PushoverNotifier sends one push message per bark
type PushoverNotifier struct {
	client *http.Client
	config PushoverConfig
	logger *zap.Logger
}

type pushoverResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

// NewPushoverNotifier creates a notifier
func NewPushoverNotifier(config PushoverConfig, logger *zap.Logger) *PushoverNotifier {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Title == "" {
		config.Title = "Bark detected"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &PushoverNotifier{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
		logger: logger,
	}
}

// Notify posts a message describing the bark
func (p *PushoverNotifier) Notify(ctx context.Context, event models.BarkEvent) error {
	form := url.Values{}
	form.Set("token", p.config.AppToken)
	form.Set("user", p.config.UserToken)
	form.Set("title", p.config.Title)
	form.Set("message", fmt.Sprintf("Bark at %s: %.0f Hz for %d ms, peak %.0f",
		event.Timestamp.Local().Format("15:04:05"),
		event.DominantFrequency,
		event.Duration.Milliseconds(),
		event.PeakVolume))
	form.Set("timestamp", strconv.FormatInt(event.Timestamp.Unix(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/1/messages.json", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	var result pushoverResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&result); err != nil && resp.StatusCode/100 == 2 {
		return fmt.Errorf("failed to decode notification response: %w", err)
	}
	if resp.StatusCode/100 != 2 || result.Status != 1 {
		return fmt.Errorf("notification refused (%s): %s", resp.Status, strings.Join(result.Errors, "; "))
	}

	p.logger.Debug("notification sent", zap.String("request", result.Request))
	return nil
}
