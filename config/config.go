/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package config

import (
	"bytes"
	"io/ioutil"
	"time"

	"github.com/jackal-xmpp/bosh/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	defaultWait   = 60
	defaultHold   = 1
	defaultWindow = 5

	defaultBreakerMaxRequests         = 1
	defaultBreakerInterval            = time.Minute
	defaultBreakerTimeout             = 30 * time.Second
	defaultBreakerConsecutiveFailures = 5

	defaultPingInterval = 60 * time.Second
)

// Breaker represents the HTTP transport circuit breaker configuration.
type Breaker struct {
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

// HTTP represents the HTTP transport configuration.
type HTTP struct {
	InsecureSkipVerify bool    `yaml:"insecure_skip_verify"`
	Breaker            Breaker `yaml:"breaker"`
}

// Metrics represents the metrics endpoint configuration.
// A zero port disables the endpoint.
type Metrics struct {
	Port int `yaml:"port"`
}

// Ping represents the XEP-0199 keepalive ping configuration.
// A zero interval disables pings.
type Ping struct {
	Interval time.Duration `yaml:"interval"`
}

// Config represents a BOSH client configuration.
type Config struct {
	Service  string     `yaml:"service"`
	JID      string     `yaml:"jid"`
	Password string     `yaml:"password"`
	Wait     int        `yaml:"wait"`
	Hold     int        `yaml:"hold"`
	Window   int        `yaml:"window"`
	PIDFile  string     `yaml:"pid_path"`
	Logger   log.Config `yaml:"logger"`
	HTTP     HTTP       `yaml:"http"`
	Metrics  Metrics    `yaml:"metrics"`
	Ping     *Ping      `yaml:"ping"`
}

type configProxyType Config

// UnmarshalYAML satisfies Unmarshaler interface.
func (cfg *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	p := configProxyType{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	if len(p.Service) == 0 {
		return errors.New("config: service URL must be specified")
	}
	if len(p.JID) == 0 {
		return errors.New("config: jid must be specified")
	}
	if p.Wait == 0 {
		p.Wait = defaultWait
	}
	if p.Hold == 0 {
		p.Hold = defaultHold
	}
	if p.Window == 0 {
		p.Window = defaultWindow
	}
	if p.Window < 2 {
		return errors.Errorf("config: window must be at least 2, got %d", p.Window)
	}
	b := &p.HTTP.Breaker
	if b.MaxRequests == 0 {
		b.MaxRequests = defaultBreakerMaxRequests
	}
	if b.Interval == 0 {
		b.Interval = defaultBreakerInterval
	}
	if b.Timeout == 0 {
		b.Timeout = defaultBreakerTimeout
	}
	if b.ConsecutiveFailures == 0 {
		b.ConsecutiveFailures = defaultBreakerConsecutiveFailures
	}
	if p.Ping != nil && p.Ping.Interval == 0 {
		p.Ping.Interval = defaultPingInterval
	}
	*cfg = Config(p)
	return nil
}

// FromFile loads a configuration from a specified file.
func FromFile(configFile string, cfg *Config) error {
	b, err := ioutil.ReadFile(configFile)
	if err != nil {
		return errors.Wrapf(err, "config: reading %s", configFile)
	}
	return yaml.Unmarshal(b, cfg)
}

// FromBuffer loads a configuration from a specified byte buffer.
func FromBuffer(buf *bytes.Buffer, cfg *Config) error {
	return yaml.Unmarshal(buf.Bytes(), cfg)
}
