package config

import (
	"errors"
	"fmt"
	"math/bits"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"github.com/joho/godotenv"
)

// Audio sources
const (
	AudioMicrophone = "microphone"
	AudioWAV        = "wav"
	AudioSynthetic  = "synthetic"
)

// Settings sources
const (
	SettingsChannel = "channel"
	SettingsMQTT    = "mqtt"
	SettingsFile    = "file"
	SettingsNone    = "none"
)

type Config struct {
	// Device
	DeviceID    string
	Debug       bool
	LogLevel    string
	MetricsAddr string

	// Network link
	SSID        string
	Password    string
	WiFiTimeout time.Duration

	// Cloud channel
	ChannelURL      string
	Channel         string
	SettingsChannel string
	WriteAPIKey     string
	ReadAPIKey      string
	RequestTimeout  time.Duration

	// Push notifications
	PushoverURL       string
	PushoverAppToken  string
	PushoverUserToken string

	// MQTT Configuration
	MQTTBroker        string
	MQTTClientID      string
	MQTTUsername      string
	MQTTPassword      string
	MQTTTopicBarks    string
	MQTTTopicSettings string

	// ClickHouse Configuration
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string

	// Audio acquisition
	AudioSource       string
	AudioDevice       string
	WAVPath           string
	MicPin            int
	SamplingFrequency int
	Samples           int
	SampleFullScale   int

	// Detection
	Profile          string
	ProfileFile      string
	VolumeThreshold  float64
	NoiseFloor       float64
	FreqMin          float64
	FreqMax          float64
	DurationMin      time.Duration
	DurationMax      time.Duration
	HysteresisMargin float64
	GapTolerance     int
	Cooldown         time.Duration
	EnvelopeAttack   float64
	EnvelopeRelease  float64

	// Deterrent
	BuzzerPin           int
	IndicatorPin        int
	BuzzerFrequency     float64
	BuzzerLingeringTime time.Duration
	BuzzerCooldown      time.Duration
	BuzzerSerialPort    string
	BuzzerBaud          int

	// Reporting
	BarkSendInterval    time.Duration
	RetryAttempts       int
	RetryBackoffInitial time.Duration
	RetryBackoffMax     time.Duration
	MaxEventsPerBatch   int

	// Remote settings
	SettingsSource        string
	SettingsFile          string
	SettingsCheckInterval time.Duration

	// Warnings collects values that could not be parsed and fell back to
	// their default. Config loads before the logger exists.
	Warnings []string
}

// Load reads .env if present, then the environment, and validates the result
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	e := &env{}
	cfg := &Config{
		DeviceID:    getEnv("DEVICE_ID", hostname()),
		Debug:       e.getEnvBool("DEBUG", false),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MetricsAddr: getEnv("METRICS_ADDR", ""),

		SSID:        getEnv("SSID", ""),
		Password:    getEnv("PASSWORD", ""),
		WiFiTimeout: e.getEnvDuration("WIFI_TIMEOUT", 60*time.Second, time.Second),

		ChannelURL:     getEnv("CHANNEL_URL", "https://api.thingspeak.com"),
		Channel:        getEnv("CHANNEL", ""),
		WriteAPIKey:    getEnv("WRITE_API_KEY", ""),
		ReadAPIKey:     getEnv("READ_API_KEY", ""),
		RequestTimeout: e.getEnvDuration("REQUEST_TIMEOUT", 10*time.Second, time.Second),

		PushoverURL:       getEnv("PUSHOVER_URL", "https://api.pushover.net"),
		PushoverAppToken:  getEnv("PUSHOVER_APP_TOKEN", ""),
		PushoverUserToken: getEnv("PUSHOVER_USER_TOKEN", ""),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "barks"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),

		AudioSource:       strings.ToLower(getEnv("AUDIO_SOURCE", AudioMicrophone)),
		AudioDevice:       getEnv("AUDIO_DEVICE", ""),
		WAVPath:           getEnv("WAV_PATH", ""),
		MicPin:            e.getEnvInt("MIC_PIN", 34),
		SamplingFrequency: e.getEnvInt("SAMPLING_FREQUENCY", 10000),
		Samples:           e.getEnvInt("SAMPLES", 256),
		SampleFullScale:   e.getEnvInt("SAMPLE_FULL_SCALE", 32767),

		Profile:          strings.ToLower(getEnv("PROFILE", "bark")),
		ProfileFile:      getEnv("PROFILE_FILE", ""),
		VolumeThreshold:  e.getEnvFloat("VOLUME_THRESHOLD", 700),
		NoiseFloor:       e.getEnvFloat("NOISE_FLOOR", 150),
		HysteresisMargin: e.getEnvFloat("HYSTERESIS_MARGIN", 1.2),
		GapTolerance:     e.getEnvInt("GAP_TOLERANCE", 1),
		Cooldown:         e.getEnvDuration("COOLDOWN", 500*time.Millisecond, time.Millisecond),
		EnvelopeAttack:   e.getEnvFloat("ENVELOPE_ATTACK", 1.0),
		EnvelopeRelease:  e.getEnvFloat("ENVELOPE_RELEASE", 0.7),

		BuzzerPin:           e.getEnvInt("BUZZER_PIN", 25),
		IndicatorPin:        e.getEnvInt("INDICATOR_PIN", 2),
		BuzzerFrequency:     e.getEnvFloat("BUZZER_FREQUENCY", 19000),
		BuzzerLingeringTime: e.getEnvDuration("BUZZER_LINGERING_TIME", 5*time.Second, time.Second),
		BuzzerCooldown:      e.getEnvDuration("BUZZER_COOLDOWN", 0, time.Second),
		BuzzerSerialPort:    getEnv("BUZZER_SERIAL_PORT", ""),
		BuzzerBaud:          e.getEnvInt("BUZZER_BAUD", 115200),

		BarkSendInterval:    e.getEnvDuration("BARK_SEND_INTERVAL", 300*time.Second, time.Second),
		RetryAttempts:       e.getEnvInt("RETRY_ATTEMPTS", 50),
		RetryBackoffInitial: e.getEnvDuration("RETRY_BACKOFF_INITIAL", 2*time.Second, time.Second),
		RetryBackoffMax:     e.getEnvDuration("RETRY_BACKOFF_MAX", 60*time.Second, time.Second),
		MaxEventsPerBatch:   e.getEnvInt("MAX_EVENTS_PER_BATCH", 100),

		SettingsFile: getEnv("SETTINGS_FILE", ""),
	}

	cfg.SettingsChannel = getEnv("SETTINGS_CHANNEL", cfg.Channel)
	cfg.MQTTClientID = getEnv("MQTT_CLIENT_ID", "barkd-"+cfg.DeviceID)
	cfg.MQTTTopicBarks = deviceTopic(getEnv("MQTT_TOPIC_BARKS", "devices/{device_id}/barks"), cfg.DeviceID)
	cfg.MQTTTopicSettings = deviceTopic(getEnv("MQTT_TOPIC_SETTINGS", "devices/{device_id}/settings"), cfg.DeviceID)

	// TONE_CHECK_INTERVAL is the older name of the same setting
	interval := e.getEnvDuration("TONE_CHECK_INTERVAL", 5*time.Minute, time.Second)
	cfg.SettingsCheckInterval = e.getEnvDuration("SETTINGS_CHECK_INTERVAL", interval, time.Second)

	defaultSource := SettingsNone
	if cfg.SettingsChannel != "" {
		defaultSource = SettingsChannel
	}
	cfg.SettingsSource = strings.ToLower(getEnv("SETTINGS_SOURCE", defaultSource))

	profile, err := cfg.resolveProfile()
	if err != nil {
		return nil, err
	}
	cfg.FreqMin = e.getEnvFloat("FREQ_MIN", profile.FreqMin)
	cfg.FreqMax = e.getEnvFloat("FREQ_MAX", profile.FreqMax)
	cfg.DurationMin = e.getEnvDuration("DURATION_MIN", profile.DurationMin, time.Millisecond)
	cfg.DurationMax = e.getEnvDuration("DURATION_MAX", profile.DurationMax, time.Millisecond)

	cfg.Warnings = e.warnings
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns every invalid field as one joined error
func (c *Config) Validate() error {
	var errs []error

	if c.SamplingFrequency <= 0 {
		errs = append(errs, fmt.Errorf("SAMPLING_FREQUENCY must be positive, got %d", c.SamplingFrequency))
	}
	if c.Samples < 2 || bits.OnesCount(uint(c.Samples)) != 1 {
		errs = append(errs, fmt.Errorf("SAMPLES must be a power of two, got %d", c.Samples))
	}
	if c.SampleFullScale <= 0 || c.SampleFullScale > 32767 {
		errs = append(errs, fmt.Errorf("SAMPLE_FULL_SCALE must be in (0, 32767], got %d", c.SampleFullScale))
	}
	if nyquist := float64(c.SamplingFrequency) / 2; c.FreqMax >= nyquist {
		errs = append(errs, fmt.Errorf("FREQ_MAX %.0f Hz must be below the Nyquist frequency %.0f Hz", c.FreqMax, nyquist))
	}
	if err := c.Thresholds().Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.HysteresisMargin < 1 {
		errs = append(errs, fmt.Errorf("HYSTERESIS_MARGIN must be at least 1, got %g", c.HysteresisMargin))
	}
	if c.GapTolerance < 0 {
		errs = append(errs, fmt.Errorf("GAP_TOLERANCE must not be negative, got %d", c.GapTolerance))
	}
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("COOLDOWN must not be negative, got %s", c.Cooldown))
	}
	if c.EnvelopeAttack <= 0 || c.EnvelopeAttack > 1 {
		errs = append(errs, fmt.Errorf("ENVELOPE_ATTACK must be in (0, 1], got %g", c.EnvelopeAttack))
	}
	if c.EnvelopeRelease <= 0 || c.EnvelopeRelease > 1 {
		errs = append(errs, fmt.Errorf("ENVELOPE_RELEASE must be in (0, 1], got %g", c.EnvelopeRelease))
	}

	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_ATTEMPTS must be at least 1, got %d", c.RetryAttempts))
	}
	if c.BarkSendInterval <= 0 {
		errs = append(errs, fmt.Errorf("BARK_SEND_INTERVAL must be positive, got %s", c.BarkSendInterval))
	}
	if c.RetryBackoffInitial <= 0 || c.RetryBackoffMax < c.RetryBackoffInitial {
		errs = append(errs, fmt.Errorf("retry backoff must satisfy 0 < RETRY_BACKOFF_INITIAL <= RETRY_BACKOFF_MAX, got %s and %s",
			c.RetryBackoffInitial, c.RetryBackoffMax))
	}
	if c.SettingsCheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("SETTINGS_CHECK_INTERVAL must be positive, got %s", c.SettingsCheckInterval))
	}

	switch c.AudioSource {
	case AudioMicrophone, AudioSynthetic:
	case AudioWAV:
		if c.WAVPath == "" {
			errs = append(errs, errors.New("AUDIO_SOURCE=wav requires WAV_PATH"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUDIO_SOURCE %q is invalid; valid values: microphone, wav, synthetic", c.AudioSource))
	}

	switch c.SettingsSource {
	case SettingsNone:
	case SettingsChannel:
		if c.SettingsChannel == "" {
			errs = append(errs, errors.New("SETTINGS_SOURCE=channel requires CHANNEL or SETTINGS_CHANNEL"))
		}
	case SettingsMQTT:
		if c.MQTTBroker == "" {
			errs = append(errs, errors.New("SETTINGS_SOURCE=mqtt requires MQTT_BROKER"))
		}
	case SettingsFile:
		if c.SettingsFile == "" {
			errs = append(errs, errors.New("SETTINGS_SOURCE=file requires SETTINGS_FILE"))
		}
	default:
		errs = append(errs, fmt.Errorf("SETTINGS_SOURCE %q is invalid; valid values: channel, mqtt, file, none", c.SettingsSource))
	}

	if (c.PushoverAppToken == "") != (c.PushoverUserToken == "") {
		errs = append(errs, errors.New("PUSHOVER_APP_TOKEN and PUSHOVER_USER_TOKEN must be set together"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Thresholds returns the initial detection thresholds
func (c *Config) Thresholds() models.Thresholds {
	return models.Thresholds{
		BarkThreshold:   c.VolumeThreshold,
		NoiseFloor:      c.NoiseFloor,
		FreqMin:         c.FreqMin,
		FreqMax:         c.FreqMax,
		DurationMin:     c.DurationMin,
		DurationMax:     c.DurationMax,
		BuzzerFrequency: c.BuzzerFrequency,
		BuzzerLinger:    c.BuzzerLingeringTime,
	}
}

// NotificationsEnabled reports whether push notification tokens are set
func (c *Config) NotificationsEnabled() bool {
	return c.PushoverAppToken != "" && c.PushoverUserToken != ""
}

func deviceTopic(topic, deviceID string) string {
	return strings.ReplaceAll(topic, "{device_id}", deviceID)
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "barkd"
	}
	return name
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// env parses typed values and remembers the ones it had to replace
type env struct {
	warnings []string
}

func (e *env) warn(key string, err error) {
	e.warnings = append(e.warnings, fmt.Sprintf("failed to parse %s, using default: %v", key, err))
}

func (e *env) getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		e.warn(key, err)
		return defaultValue
	}
	return intValue
}

func (e *env) getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		e.warn(key, err)
		return defaultValue
	}
	return floatValue
}

func (e *env) getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		e.warn(key, err)
		return defaultValue
	}
	return boolValue
}

// getEnvDuration accepts a Go duration ("90s") or a bare number in unit
func (e *env) getEnvDuration(key string, defaultValue, unit time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(n * float64(unit))
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.warn(key, err)
		return defaultValue
	}
	return d
}
