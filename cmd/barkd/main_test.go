package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hslarson/Dog-Bark-Detector/internal/services"
	"github.com/hslarson/Dog-Bark-Detector/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMetricsMux(t *testing.T) {
	srv := httptest.NewServer(metricsMux())
	defer srv.Close()

	for _, path := range []string{"/metrics", "/healthz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestNetworkWithoutEndpoints(t *testing.T) {
	cfg := &config.Config{SettingsSource: config.SettingsNone}
	n, err := openNetwork(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer n.Close()

	assert.Nil(t, n.uplink())
	assert.Nil(t, n.notifier())
	assert.Nil(t, n.link())
	assert.Nil(t, n.settingsSource(cfg))
}

func TestNetworkChannelAndPushover(t *testing.T) {
	cfg := &config.Config{
		DeviceID:          "porch",
		ChannelURL:        "http://127.0.0.1:1",
		WriteAPIKey:       "w",
		SettingsChannel:   "42",
		SettingsSource:    config.SettingsChannel,
		PushoverAppToken:  "a",
		PushoverUserToken: "u",
	}
	n, err := openNetwork(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer n.Close()

	require.NotNil(t, n.uplink())
	assert.Equal(t, "channel", n.uplink().Name())
	assert.NotNil(t, n.notifier())
	assert.NotNil(t, n.settingsSource(cfg))
	assert.Nil(t, n.link())
}

func TestNetworkFileSettings(t *testing.T) {
	cfg := &config.Config{SettingsSource: config.SettingsFile, SettingsFile: "settings.yaml"}
	n, err := openNetwork(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	var src services.SettingsSource = n.settingsSource(cfg)
	assert.NotNil(t, src)
}

func TestOpenAudioSynthetic(t *testing.T) {
	cfg := &config.Config{AudioSource: config.AudioSynthetic, SamplingFrequency: 10000}
	src, closeFn, err := openAudio(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer closeFn()

	buf := make([]int16, 256)
	require.NoError(t, src.Read(buf))
}

func TestBarkdReturnsExitCode(t *testing.T) {
	t.Setenv("DEVICE_ID", "porch")
	t.Setenv("LOG_LEVEL", "error")

	t.Run("bad config", func(t *testing.T) {
		t.Setenv("SAMPLES", "300")
		assert.Equal(t, 1, barkd())
	})

	t.Run("startup failure returns instead of exiting", func(t *testing.T) {
		t.Setenv("AUDIO_SOURCE", "wav")
		t.Setenv("WAV_PATH", filepath.Join(t.TempDir(), "missing.wav"))
		assert.Equal(t, 1, barkd())
	})

	t.Run("finished input exits cleanly", func(t *testing.T) {
		t.Setenv("AUDIO_SOURCE", "wav")
		t.Setenv("WAV_PATH", writeSilentWAV(t, 10000, 2560))
		assert.Equal(t, 0, barkd())
	})
}

// writeSilentWAV writes a mono 16-bit PCM file of n zero samples
func writeSilentWAV(t *testing.T, rate, n int) string {
	t.Helper()
	dataLen := n * 2
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))

	path := filepath.Join(t.TempDir(), "silence.wav")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}
