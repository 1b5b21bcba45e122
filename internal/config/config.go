// Package config loads userdesk settings from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Session backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the resolved configuration for a userdesk command.
type Config struct {
	Server      string
	StrictLogin bool
	Timeout     time.Duration
	Session     Session
	Cache       Cache
	Console     Console
}

// File is the YAML config file. Booleans are pointers so an explicit false
// can override a flag.
type File struct {
	Server      string        `yaml:"server"`
	StrictLogin *bool         `yaml:"strict_login"`
	Timeout     time.Duration `yaml:"timeout"`
	Session     Session       `yaml:"session"`
	Cache       FileCache     `yaml:"cache"`
	Console     Console       `yaml:"console"`
}

// FileCache is the cache section of File.
type FileCache struct {
	Enabled *bool  `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Session selects where the token slot lives.
type Session struct {
	Backend       string        `yaml:"backend"`
	Dir           string        `yaml:"dir"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	TTL           time.Duration `yaml:"ttl"`
}

// Cache configures HTTP caching of API reads.
type Cache struct {
	Enabled bool
	Dir     string
}

// Console configures the local web console.
type Console struct {
	Listen      string   `yaml:"listen"`
	LoginPath   string   `yaml:"login_path"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Load reads a YAML config file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg File
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return &cfg, nil
}

// Merge overrides c with every value set in file. The config file
// takes precedence over flags.
func (c *Config) Merge(file *File) {
	if file == nil {
		return
	}

	if file.Server != "" {
		c.Server = file.Server
	}
	if file.StrictLogin != nil {
		c.StrictLogin = *file.StrictLogin
	}
	if file.Timeout != 0 {
		c.Timeout = file.Timeout
	}

	if file.Session.Backend != "" {
		c.Session.Backend = file.Session.Backend
	}
	if file.Session.Dir != "" {
		c.Session.Dir = file.Session.Dir
	}
	if file.Session.RedisAddr != "" {
		c.Session.RedisAddr = file.Session.RedisAddr
	}
	if file.Session.RedisPassword != "" {
		c.Session.RedisPassword = file.Session.RedisPassword
	}
	if file.Session.RedisDB != 0 {
		c.Session.RedisDB = file.Session.RedisDB
	}
	if file.Session.RedisPrefix != "" {
		c.Session.RedisPrefix = file.Session.RedisPrefix
	}
	if file.Session.TTL != 0 {
		c.Session.TTL = file.Session.TTL
	}

	if file.Cache.Enabled != nil {
		c.Cache.Enabled = *file.Cache.Enabled
	}
	if file.Cache.Dir != "" {
		c.Cache.Dir = file.Cache.Dir
	}

	if file.Console.Listen != "" {
		c.Console.Listen = file.Console.Listen
	}
	if file.Console.LoginPath != "" {
		c.Console.LoginPath = file.Console.LoginPath
	}
	if len(file.Console.CORSOrigins) > 0 {
		c.Console.CORSOrigins = file.Console.CORSOrigins
	}
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c.Server == "" {
		return errors.New("server URL is required (--server or USERDESK_SERVER)")
	}
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server URL %q must be an absolute http(s) URL", c.Server)
	}

	switch c.Session.Backend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.Session.RedisAddr == "" {
			return errors.New("redis address is required for the redis session backend (--redis-addr or USERDESK_REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("unknown session backend %q (file, redis or memory)", c.Session.Backend)
	}

	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}

	if c.Session.TTL < 0 {
		return errors.New("session TTL must not be negative")
	}

	return nil
}
