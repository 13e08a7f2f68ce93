package reactor

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT             = 8080
	DEFAULT_MAX_REQUEST_SIZE = 1 << 20
)

// Config is the process configuration consumed by the reactor and the HTTP
// server, loadable from a TOML file.
type Config struct {
	Threads          int     `toml:"threads"`
	ServerTimeoutSec int     `toml:"server_timeout"`
	ClientTimeoutMs  int     `toml:"client_timeout"`
	Port             int     `toml:"port"`
	Backlog          int     `toml:"backlog"`
	InheritedFd      int     `toml:"inherited_fd"`
	MaxRequestSize   int     `toml:"max_request_size"`
	PinThreads       bool    `toml:"pin_threads"`
	ExclusiveAccept  bool    `toml:"exclusive_accept"`
	AcceptRate       float64 `toml:"accept_rate"`
	AcceptBurst      int     `toml:"accept_burst"`
	LogLevel         string  `toml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Threads:          0,
		ServerTimeoutSec: int(DEFAULT_SERVER_TIMEOUT / time.Second),
		ClientTimeoutMs:  int(DEFAULT_CLIENT_TIMEOUT / time.Millisecond),
		Port:             DEFAULT_PORT,
		Backlog:          DEFAULT_BACKLOG,
		InheritedFd:      -1,
		MaxRequestSize:   DEFAULT_MAX_REQUEST_SIZE,
		LogLevel:         "info",
	}
}

// LoadConfig reads path over the defaults. Keys missing from the file keep
// their default value.
func LoadConfig(path string) (Config, error) {
	var cfg = DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.ServerTimeoutSec) * time.Second
}

func (c Config) ClientTimeout() time.Duration {
	return time.Duration(c.ClientTimeoutMs) * time.Millisecond
}

// NewEP builds a reactor from the configuration. The standard logrus logger
// is set to LogLevel.
func (c Config) NewEP() (*EP, error) {
	var ep = New(c.ServerTimeout(), c.ClientTimeout())
	ep.SetThreads(c.Threads)
	ep.SetPinThreads(c.PinThreads)
	ep.SetExclusiveAccept(c.ExclusiveAccept)
	if c.LogLevel != "" {
		var level, err = logrus.ParseLevel(c.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		logrus.SetLevel(level)
	}
	return ep, nil
}

// NewAcceptor opens the configured listener for slots.
func (c Config) NewAcceptor(ep *EP, slots SlotTable) (*Acceptor, error) {
	var a = NewAcceptor(ep, slots)
	if err := a.Init(c.InheritedFd, c.Port, c.Backlog); err != nil {
		return nil, err
	}
	a.SetRateLimit(c.AcceptRate, c.AcceptBurst)
	return a, nil
}
