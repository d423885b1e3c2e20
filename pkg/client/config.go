package client

import (
	"log/slog"
	"time"

	"github.com/tradewire-go/tradewire/pkg/protocol"
)

// Config holds configuration for a Client.
type Config struct {
	// URL is the WebSocket endpoint of the data feed.
	// Default: wss://data.tradingview.com/socket.io/websocket.
	URL string

	// Origin is sent as the Origin header during the WebSocket
	// handshake. The feed rejects connections without it.
	// Default: https://s.tradingview.com.
	Origin string

	// AuthToken is queued as the first outbound set_auth_token packet.
	// Default: unauthorized_user_token (anonymous access).
	AuthToken string

	// HandshakeTimeout is the maximum time for the WebSocket dial.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout is the maximum time to wait when writing a frame.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// AuthPollInterval is how long the write loop yields between checks
	// of the authenticated gate. Outbound traffic never reaches the
	// wire before the handshake heuristic completes.
	// Default: 10 milliseconds.
	AuthPollInterval time.Duration

	// Logger receives diagnostic output. Default: slog.Default().
	Logger *slog.Logger

	// Codec is the packet codec. Default: protocol.DefaultCodec.
	// Select protocol.FastCodec() here for hot decode paths; the
	// choice is made once, there is no runtime switching.
	Codec *protocol.PacketCodec

	// Metrics receives counters and gauges from the engine. Nil
	// disables metrics collection.
	Metrics *Metrics
}

// DefaultConfig returns a Config with defaults for anonymous streaming.
func DefaultConfig() *Config {
	return &Config{
		URL:              "wss://data.tradingview.com/socket.io/websocket",
		Origin:           "https://s.tradingview.com",
		AuthToken:        "unauthorized_user_token",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		AuthPollInterval: 10 * time.Millisecond,
	}
}

// normalize fills in zero values with their defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.URL == "" {
		c.URL = def.URL
	}
	if c.Origin == "" {
		c.Origin = def.Origin
	}
	if c.AuthToken == "" {
		c.AuthToken = def.AuthToken
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.AuthPollInterval <= 0 {
		c.AuthPollInterval = def.AuthPollInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Codec == nil {
		c.Codec = protocol.DefaultCodec
	}
}
