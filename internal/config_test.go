package internal

import (
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_FromEnviron(t *testing.T) {
	req := require.New(t)
	t.Setenv("PORT", "8080")
	t.Setenv("CONNECTION_BUFFER_SIZE", "64")
	t.Setenv("DELIVERY_TIMEOUT", "2s")
	t.Setenv("AUTH_TOKEN_DURATION", "24h")
	t.Setenv("AUTH_TOKEN_SECRET", "0123456789abcdef")
	t.Setenv("BADGER_IN_MEMORY", "true")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)
	req.NoError(config.Validate())

	req.Equal("0.0.0.0:8080", config.Address())
	req.Empty(config.GRPCHealthAddress())
	req.Equal(2*time.Second, config.DeliveryTimeout)
	req.Equal(time.Second, config.TypingIdleTimeout)
	req.Equal("INFO", config.LogLevel)
	req.Equal(int64(65536), config.MaxFrameSize)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		BadgerFilepath:       "/tmp/relay",
		ConnectionBufferSize: 8,
		DeliveryTimeout:      time.Second,
		ReadTimeout:          time.Minute,
		AuthTokenSecret:      "0123456789abcdef",
		MaxFrameSize:         1024,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		description string
		modify      func(c *Config)
	}{
		{"Should fail without any storage", func(c *Config) { c.BadgerFilepath = "" }},
		{"Should fail with an empty connection buffer", func(c *Config) { c.ConnectionBufferSize = 0 }},
		{"Should fail with a short token secret", func(c *Config) { c.AuthTokenSecret = "short" }},
		{"Should fail without a delivery timeout", func(c *Config) { c.DeliveryTimeout = 0 }},
		{"Should fail with no frame size", func(c *Config) { c.MaxFrameSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			config := valid
			tt.modify(&config)
			require.Error(t, config.Validate())
		})
	}
}
