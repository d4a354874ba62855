// Package discovery announces running services to a Consul agent.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/lcx/neton/config"
	"github.com/lcx/neton/log"
	"github.com/lcx/neton/metrics"
)

// Registration describes one service instance.
type Registration struct {
	ID      string
	Name    string
	Address string
	Port    int
	Tags    []string
	Meta    map[string]string
}

// ConsulCfg configures ConsulRegistrar. It is loaded from the "discovery" config.
type ConsulCfg struct {
	// Address of the Consul agent HTTP API, e.g. "127.0.0.1:8500".
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
	// ServiceName overrides the name of registrations that carry none.
	ServiceName string   `mapstructure:"serviceName"`
	Tags        []string `mapstructure:"tags"`
	// CheckTCP adds a TCP health check against the registered address.
	CheckTCP        bool          `mapstructure:"checkTCP"`
	CheckInterval   time.Duration `mapstructure:"checkInterval"`
	DeregisterAfter time.Duration `mapstructure:"deregisterAfter"`
}

// GetName implements config.Config.
func (c *ConsulCfg) GetName() string {
	return "discovery"
}

// Validate implements config.Config.
func (c *ConsulCfg) Validate() error {
	if c.Address == "" {
		return errors.New("address cannot be empty")
	}
	if c.CheckTCP && c.CheckInterval <= 0 {
		return errors.New("checkInterval must be positive when checkTCP is enabled")
	}
	return nil
}

// ApplyDefaults implements config.Defaulter.
func (c *ConsulCfg) ApplyDefaults() {
	if c.Address == "" {
		c.Address = "127.0.0.1:8500"
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = 10 * time.Second
	}
	if c.DeregisterAfter == 0 {
		c.DeregisterAfter = time.Minute
	}
}

// ConsulRegistrar registers services with the local Consul agent.
type ConsulRegistrar struct {
	cfg    *ConsulCfg
	client *api.Client
}

// NewConsulRegistrar creates a registrar talking to cfg.Address.
func NewConsulRegistrar(cfg *ConsulCfg) (*ConsulRegistrar, error) {
	if cfg == nil {
		return nil, errors.New("consul config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consul config: %w", err)
	}
	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address
	apiCfg.Token = cfg.Token
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &ConsulRegistrar{cfg: cfg, client: client}, nil
}

// NewConsulRegistrarWithConfigManager loads the "discovery" config.
func NewConsulRegistrarWithConfigManager(configManager config.ConfigManager) (*ConsulRegistrar, error) {
	cfg := &ConsulCfg{}
	if err := configManager.LoadConfig("discovery", cfg); err != nil {
		return nil, fmt.Errorf("failed to load discovery config: %w", err)
	}
	return NewConsulRegistrar(cfg)
}

func (r *ConsulRegistrar) serviceRegistration(reg Registration) *api.AgentServiceRegistration {
	name := reg.Name
	if name == "" {
		name = r.cfg.ServiceName
	}
	tags := append(append([]string(nil), r.cfg.Tags...), reg.Tags...)
	asr := &api.AgentServiceRegistration{
		ID:      reg.ID,
		Name:    name,
		Address: reg.Address,
		Port:    reg.Port,
		Tags:    tags,
		Meta:    reg.Meta,
	}
	if r.cfg.CheckTCP {
		host := reg.Address
		if host == "" {
			host = "127.0.0.1"
		}
		asr.Check = &api.AgentServiceCheck{
			TCP:                            net.JoinHostPort(host, strconv.Itoa(reg.Port)),
			Interval:                       r.cfg.CheckInterval.String(),
			DeregisterCriticalServiceAfter: r.cfg.DeregisterAfter.String(),
		}
	}
	return asr
}

// Register announces reg to the agent.
func (r *ConsulRegistrar) Register(ctx context.Context, reg Registration) error {
	if reg.ID == "" {
		return errors.New("registration id cannot be empty")
	}
	opts := api.ServiceRegisterOpts{}.WithContext(ctx)
	if err := r.client.Agent().ServiceRegisterOpts(r.serviceRegistration(reg), opts); err != nil {
		metrics.IncrCounterWithDimGroup("discovery", "register_total", 1, metrics.Dimension{"result": "failure"})
		return fmt.Errorf("consul register %s: %w", reg.ID, err)
	}
	metrics.IncrCounterWithDimGroup("discovery", "register_total", 1, metrics.Dimension{"result": "success"})
	log.Info().Str("id", reg.ID).Str("name", reg.Name).Int("port", reg.Port).Msg("service registered")
	return nil
}

// Deregister withdraws the instance id.
func (r *ConsulRegistrar) Deregister(ctx context.Context, id string) error {
	q := (&api.QueryOptions{}).WithContext(ctx)
	if err := r.client.Agent().ServiceDeregisterOpts(id, q); err != nil {
		metrics.IncrCounterWithDimGroup("discovery", "deregister_total", 1, metrics.Dimension{"result": "failure"})
		return fmt.Errorf("consul deregister %s: %w", id, err)
	}
	metrics.IncrCounterWithDimGroup("discovery", "deregister_total", 1, metrics.Dimension{"result": "success"})
	log.Info().Str("id", id).Msg("service deregistered")
	return nil
}
