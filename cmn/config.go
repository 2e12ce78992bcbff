// Package cmn provides common types shared by the corelib messaging packages
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package cmn

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dac1976/corelib-go/cmn/nlog"
)

// env overrides (checked by ApplyEnv)
const (
	EnvMaxUnsent   = "CORELIB_MAX_UNSENT"
	EnvDialTimeout = "CORELIB_DIAL_TIMEOUT"
	EnvNagleOff    = "CORELIB_NAGLE_OFF"
)

const dfltDialTimeout = 10 * time.Second

type (
	// TransportConf parameterizes clients, servers, and pools.
	TransportConf struct {
		MaxUnsentMsgs int           `json:"max_unsent_msgs" yaml:"max_unsent_msgs"`
		DialTimeout   time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
		NagleOff      bool          `json:"nagle_off" yaml:"nagle_off"`
	}
	Config struct {
		Transport TransportConf `json:"transport" yaml:"transport"`
	}
)

func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConf{
			MaxUnsentMsgs: MaxUnsentAsyncMsgCount,
			DialTimeout:   dfltDialTimeout,
		},
	}
}

func (c *TransportConf) SendOption() SendOption {
	if c.NagleOff {
		return NagleOff
	}
	return NagleOn
}

// LoadConfig reads a JSON or YAML config (by extension), fills in defaults,
// and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	config := DefaultConfig()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = jsoniter.Unmarshal(data, config)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse config %q", path)
	}
	config.ApplyEnv()
	config.Validate()
	return config, nil
}

func (c *Config) ApplyEnv() {
	if a := os.Getenv(EnvMaxUnsent); a != "" {
		if v, err := strconv.Atoi(a); err != nil {
			nlog.Errorln(EnvMaxUnsent, err)
		} else {
			c.Transport.MaxUnsentMsgs = v
		}
	}
	if a := os.Getenv(EnvDialTimeout); a != "" {
		if d, err := time.ParseDuration(a); err != nil {
			nlog.Errorln(EnvDialTimeout, err)
		} else {
			c.Transport.DialTimeout = d
		}
	}
	if a := os.Getenv(EnvNagleOff); a != "" {
		c.Transport.NagleOff = a != "false" && a != "0"
	}
}

func (c *Config) Validate() {
	if c.Transport.MaxUnsentMsgs <= 0 {
		c.Transport.MaxUnsentMsgs = MaxUnsentAsyncMsgCount
	}
	if c.Transport.DialTimeout <= 0 {
		c.Transport.DialTimeout = dfltDialTimeout
	}
}
