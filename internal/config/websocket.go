package config

import (
	"time"

	"panicdesk/internal/utils"
)

// ChannelConfig describes the outbound connection to the backend event channel.
type ChannelConfig struct {
	URL               string        `yaml:"url"`
	ReadBufferSize    int           `yaml:"read_buffer_size"`
	WriteBufferSize   int           `yaml:"write_buffer_size"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PongTimeout       time.Duration `yaml:"pong_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	MaxMessageSize    int64         `yaml:"max_message_size"`
	EnableCompression bool          `yaml:"enable_compression"`
}

// WebSocketConfig describes the console UI hub served by this process.
type WebSocketConfig struct {
	Path              string        `yaml:"path"`
	ReadBufferSize    int           `yaml:"read_buffer_size"`
	WriteBufferSize   int           `yaml:"write_buffer_size"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PongTimeout       time.Duration `yaml:"pong_timeout"`
	MaxConnections    int           `yaml:"max_connections"`
	EnableCompression bool          `yaml:"enable_compression"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

func loadChannelConfig() *ChannelConfig {
	return &ChannelConfig{
		URL:               getEnv("CHANNEL_URL", "ws://localhost:3000/events"),
		ReadBufferSize:    getEnvAsInt("CHANNEL_READ_BUFFER_SIZE", 4096),
		WriteBufferSize:   getEnvAsInt("CHANNEL_WRITE_BUFFER_SIZE", 1024),
		HandshakeTimeout:  getEnvAsDuration("CHANNEL_HANDSHAKE_TIMEOUT", utils.DefaultHandshakeTimeout),
		PingInterval:      getEnvAsDuration("CHANNEL_PING_INTERVAL", 54*time.Second),
		PongTimeout:       getEnvAsDuration("CHANNEL_PONG_TIMEOUT", 60*time.Second),
		WriteTimeout:      getEnvAsDuration("CHANNEL_WRITE_TIMEOUT", 10*time.Second),
		MaxMessageSize:    int64(getEnvAsInt("CHANNEL_MAX_MESSAGE_SIZE", 64*1024)),
		EnableCompression: getEnvAsBool("CHANNEL_ENABLE_COMPRESSION", false),
	}
}

func loadWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		Path:              getEnv("WEBSOCKET_PATH", "/ws"),
		ReadBufferSize:    getEnvAsInt("WEBSOCKET_READ_BUFFER_SIZE", 1024),
		WriteBufferSize:   getEnvAsInt("WEBSOCKET_WRITE_BUFFER_SIZE", 1024),
		HandshakeTimeout:  getEnvAsDuration("WEBSOCKET_HANDSHAKE_TIMEOUT", 10*time.Second),
		PingInterval:      getEnvAsDuration("WEBSOCKET_PING_INTERVAL", 54*time.Second),
		PongTimeout:       getEnvAsDuration("WEBSOCKET_PONG_TIMEOUT", 60*time.Second),
		MaxConnections:    getEnvAsInt("WEBSOCKET_MAX_CONNECTIONS", 64),
		EnableCompression: getEnvAsBool("WEBSOCKET_ENABLE_COMPRESSION", true),
		AllowedOrigins:    getEnvAsSlice("WEBSOCKET_ALLOWED_ORIGINS", []string{"*"}),
	}
}
