package net

import "github.com/lcx/neton/log"

// ClientOption configures a Client or AsyncClient.
//
//	client := NewClient(cfg, registry, WithExecutor(loop))
type ClientOption func(*Client)

// WithExecutor delivers the client's events through exec instead of on the
// goroutine that produced them. Pass an *EventLoop to receive callbacks from
// the application's own tick.
func WithExecutor(exec Executor) ClientOption {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithClientLogger sets the logger the client's peer logger writes through.
func WithClientLogger(logger *log.GameLogger) ClientOption {
	return func(c *Client) {
		c.parentLogger = logger
	}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRegistrar announces the service to discovery on Start and withdraws it
// on Stop.
func WithRegistrar(r Registrar) ServiceOption {
	return func(s *Service) {
		s.registrar = r
	}
}

// WithServiceExecutor delivers service and channel events through exec.
func WithServiceExecutor(exec Executor) ServiceOption {
	return func(s *Service) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// WithServiceLogger sets the logger channel peer loggers write through.
func WithServiceLogger(logger *log.GameLogger) ServiceOption {
	return func(s *Service) {
		s.parentLogger = logger
	}
}
