// Package cloud holds the HTTP clients for the time-series channel and the
// push notification service.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"go.uber.org/zap"
)

// ErrRejected is returned when the channel accepts the request but refuses
// the write, which is how it signals rate limiting.
var ErrRejected = errors.New("channel rejected the update")

// ChannelConfig holds the channel endpoints and keys
type ChannelConfig struct {
	BaseURL         string // e.g. https://api.thingspeak.com
	WriteKey        string
	ReadKey         string
	SettingsChannel string // Channel id holding remote thresholds
	Timeout         time.Duration
}

// ChannelClient writes bark counts to a time-series channel and reads
// remote thresholds from the settings channel.
type ChannelClient struct {
	client *http.Client
	config ChannelConfig
	logger *zap.Logger

	mu        sync.Mutex
	lastEntry int64 // Settings entry already handed out
}

// NewChannelClient creates a channel client
func NewChannelClient(config ChannelConfig, logger *zap.Logger) *ChannelClient {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &ChannelClient{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
		logger: logger,
	}
}

// Name identifies the uplink in logs
func (c *ChannelClient) Name() string {
	return "channel"
}

// CanWrite reports whether a write key is configured
func (c *ChannelClient) CanWrite() bool {
	return c.config.WriteKey != ""
}

// SendBatch writes one channel entry: field1 is the bark count, field2 the
// loudest peak and field3 the mean dominant frequency.
func (c *ChannelClient) SendBatch(ctx context.Context, batch models.ReportBatch) error {
	form := url.Values{}
	form.Set("api_key", c.config.WriteKey)
	form.Set("field1", strconv.Itoa(batch.Count))
	form.Set("field2", strconv.FormatFloat(batch.MaxPeakVolume(), 'f', 1, 64))
	form.Set("field3", strconv.FormatFloat(batch.MeanFrequency(), 'f', 1, 64))
	form.Set("created_at", batch.CreatedAt.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/update", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	// The channel answers with the new entry id, or 0 when it refused the write
	if strings.TrimSpace(string(body)) == "0" {
		return ErrRejected
	}

	c.logger.Debug("channel updated",
		zap.String("batch_id", batch.ID),
		zap.String("entry", strings.TrimSpace(string(body))))
	return nil
}

// lastEntry is the last.json feed entry of the settings channel
type lastEntry struct {
	EntryID int64   `json:"entry_id"`
	Field1  *string `json:"field1"`
	Field2  *string `json:"field2"`
	Field3  *string `json:"field3"`
	Field4  *string `json:"field4"`
	Field5  *string `json:"field5"`
	Field6  *string `json:"field6"`
	Field7  *string `json:"field7"`
	Field8  *string `json:"field8"`
}

// Fetch reads the newest settings entry. Fields 1..8 hold bark_threshold,
// noise_floor, freq_min, freq_max, duration_min (ms), duration_max (ms),
// buzzer_frequency and buzzer_linger (s); blank fields are left unchanged.
// An entry that was already returned yields models.ErrNoSettings.
func (c *ChannelClient) Fetch(ctx context.Context) (models.ThresholdsUpdate, error) {
	endpoint := fmt.Sprintf("%s/channels/%s/feeds/last.json?api_key=%s",
		c.config.BaseURL, url.PathEscape(c.config.SettingsChannel), url.QueryEscape(c.config.ReadKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.ThresholdsUpdate{}, fmt.Errorf("failed to build settings request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return models.ThresholdsUpdate{}, err
	}
	// An empty channel answers -1
	if trimmed := strings.TrimSpace(string(body)); trimmed == "-1" || trimmed == "" {
		return models.ThresholdsUpdate{}, models.ErrNoSettings
	}

	var entry lastEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return models.ThresholdsUpdate{}, fmt.Errorf("failed to decode settings entry: %w", err)
	}

	c.mu.Lock()
	seen := entry.EntryID != 0 && entry.EntryID == c.lastEntry
	c.mu.Unlock()
	if seen {
		return models.ThresholdsUpdate{}, models.ErrNoSettings
	}

	update, err := entry.update()
	if err != nil {
		return models.ThresholdsUpdate{}, err
	}

	c.mu.Lock()
	c.lastEntry = entry.EntryID
	c.mu.Unlock()

	if update.Empty() {
		return models.ThresholdsUpdate{}, models.ErrNoSettings
	}
	update.ReceivedAt = time.Now()
	return update, nil
}

func (e lastEntry) update() (models.ThresholdsUpdate, error) {
	var u models.ThresholdsUpdate
	targets := []struct {
		name  string
		value *string
		dst   **float64
	}{
		{"field1", e.Field1, &u.BarkThreshold},
		{"field2", e.Field2, &u.NoiseFloor},
		{"field3", e.Field3, &u.FreqMin},
		{"field4", e.Field4, &u.FreqMax},
		{"field5", e.Field5, &u.DurationMinMs},
		{"field6", e.Field6, &u.DurationMaxMs},
		{"field7", e.Field7, &u.BuzzerFrequency},
		{"field8", e.Field8, &u.BuzzerLingerSec},
	}

	for _, t := range targets {
		if t.value == nil || strings.TrimSpace(*t.value) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(*t.value), 64)
		if err != nil {
			return models.ThresholdsUpdate{}, fmt.Errorf("settings %s: %w", t.name, err)
		}
		*t.dst = &v
	}
	return u, nil
}

func (c *ChannelClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("channel request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read channel response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("channel returned %s", resp.Status)
	}
	return body, nil
}
