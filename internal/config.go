package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,required=true"`
	GRPCHealthPort       int           `env:"GRPC_HEALTH_PORT,default=0"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH"`
	BadgerInMemory       bool          `env:"BADGER_IN_MEMORY,default=false"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,required=true"`
	EventTimeout         time.Duration `env:"EVENT_TIMEOUT,default=5s"`
	TypingIdleTimeout    time.Duration `env:"TYPING_IDLE_TIMEOUT,default=1s"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	AuthTokenSecret      string        `env:"AUTH_TOKEN_SECRET,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ReadTimeout          time.Duration `env:"READ_TIMEOUT,default=60s"`
	MaxFrameSize         int64         `env:"MAX_FRAME_SIZE,default=65536"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Validate checks what struct tags can't express.
func (c Config) Validate() error {
	if !c.BadgerInMemory && c.BadgerFilepath == "" {
		return fmt.Errorf("BADGER_FILEPATH is required unless BADGER_IN_MEMORY is set")
	}
	if c.ConnectionBufferSize <= 0 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	}
	if len(c.AuthTokenSecret) < 16 {
		return fmt.Errorf("AUTH_TOKEN_SECRET must be at least 16 characters")
	}
	if c.DeliveryTimeout <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT and READ_TIMEOUT must be positive")
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("MAX_FRAME_SIZE must be positive, got %d", c.MaxFrameSize)
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCHealthAddress is empty when the gRPC health server is disabled.
func (c Config) GRPCHealthAddress() string {
	if c.GRPCHealthPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCHealthPort)
}
