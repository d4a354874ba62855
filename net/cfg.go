package net

import (
	"fmt"
	"time"
)

const (
	RecvLimitNone   = ""
	RecvLimitToken  = "token"
	RecvLimitFunnel = "funnel"
)

// ServiceCfg configures a Service. It is loaded from the "service" config.
type ServiceCfg struct {
	// Name is the service name announced to discovery.
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`

	// IdleTimeout closes a channel that received nothing for this long. Zero disables it.
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`

	SendChannelSize int `mapstructure:"sendChannelSize"`
	// RecvBufferSize is the size of a single socket read.
	RecvBufferSize int `mapstructure:"recvBufferSize"`
	// MaxBufferSize sets SO_RCVBUF and SO_SNDBUF of accepted sockets when positive.
	MaxBufferSize    int `mapstructure:"maxBufferSize"`
	CompactThreshold int `mapstructure:"compactThreshold"`
	// MaxConnections rejects accepts beyond this many live channels. Zero means unlimited.
	MaxConnections int `mapstructure:"maxConnections"`

	// RecvLimitMode selects the per-channel message rate limiter: "", "token" or "funnel".
	RecvLimitMode string `mapstructure:"recvLimitMode"`
	// RecvLimit is the number of messages per second one channel may dispatch.
	RecvLimit int `mapstructure:"recvLimit"`
	// RecvBurst is the token bucket size. Ignored by the funnel limiter.
	RecvBurst int `mapstructure:"recvBurst"`
}

// GetName implements config.Config.
func (c *ServiceCfg) GetName() string {
	return "service"
}

// Validate implements config.Config.
func (c *ServiceCfg) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.SendChannelSize <= 0 {
		return fmt.Errorf("sendChannelSize must be positive")
	}
	if c.RecvBufferSize <= 0 {
		return fmt.Errorf("recvBufferSize must be positive")
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("maxConnections must not be negative")
	}
	switch c.RecvLimitMode {
	case RecvLimitNone:
	case RecvLimitToken, RecvLimitFunnel:
		if c.RecvLimit <= 0 {
			return fmt.Errorf("recvLimit must be positive when recvLimitMode is %q", c.RecvLimitMode)
		}
	default:
		return fmt.Errorf("unknown recvLimitMode %q", c.RecvLimitMode)
	}
	return nil
}

// ApplyDefaults implements config.Defaulter.
func (c *ServiceCfg) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "neton"
	}
	if c.SendChannelSize == 0 {
		c.SendChannelSize = 256
	}
	if c.RecvBufferSize == 0 {
		c.RecvBufferSize = 8192
	}
	if c.CompactThreshold == 0 {
		c.CompactThreshold = DefaultCompactThreshold
	}
	if c.RecvBurst == 0 {
		c.RecvBurst = c.RecvLimit
	}
}

// DefaultServiceCfg returns a ServiceCfg with every default applied.
func DefaultServiceCfg() *ServiceCfg {
	cfg := &ServiceCfg{}
	cfg.ApplyDefaults()
	return cfg
}

// ClientCfg configures Client and AsyncClient. It is loaded from the "client" config.
type ClientCfg struct {
	// LocalAddr optionally binds the local end, e.g. "0.0.0.0:0".
	LocalAddr    string        `mapstructure:"localAddr"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`

	RecvBufferSize   int `mapstructure:"recvBufferSize"`
	CompactThreshold int `mapstructure:"compactThreshold"`

	// OpTimeout bounds AsyncClient.Connect and AsyncClient.Send.
	OpTimeout time.Duration `mapstructure:"opTimeout"`
}

// GetName implements config.Config.
func (c *ClientCfg) GetName() string {
	return "client"
}

// Validate implements config.Config.
func (c *ClientCfg) Validate() error {
	if c.RecvBufferSize <= 0 {
		return fmt.Errorf("recvBufferSize must be positive")
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.OpTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// ApplyDefaults implements config.Defaulter.
func (c *ClientCfg) ApplyDefaults() {
	if c.RecvBufferSize == 0 {
		c.RecvBufferSize = 8192
	}
	if c.CompactThreshold == 0 {
		c.CompactThreshold = DefaultCompactThreshold
	}
	if c.OpTimeout == 0 {
		c.OpTimeout = 1000 * time.Millisecond
	}
}

// DefaultClientCfg returns a ClientCfg with every default applied.
func DefaultClientCfg() *ClientCfg {
	cfg := &ClientCfg{}
	cfg.ApplyDefaults()
	return cfg
}
