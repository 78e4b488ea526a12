package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/bind"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/errs"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/frame"
)

// ReplySourceKind represents where the reply bytes come from
type ReplySourceKind string

const (
	ReplySourceMemory     ReplySourceKind = "memory"
	ReplySourceFile       ReplySourceKind = "file"
	ReplySourceKubernetes ReplySourceKind = "kubernetes"
)

// ReplyMode represents how a reply is derived from a message
type ReplyMode string

const (
	ReplyModeFixed ReplyMode = "fixed"
	ReplyModeEcho  ReplyMode = "echo"
)

// Config holds all application configuration
type Config struct {
	// Core
	Debug     bool
	LogFormat string // text, json

	// Server
	Port           int
	Backlog        int
	MaxMessageSize int
	Framing        frame.Mode
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// Reply
	ReplyMode         ReplyMode
	ReplySource       ReplySourceKind
	ReplyText         string
	ReplyFile         string
	ReplyConfigMap    string
	ReplyConfigMapKey string
	ReplyAutoCreate   bool // Seed a missing file or ConfigMap with ReplyText

	// Kubernetes (only for the kubernetes reply source)
	Namespace      string
	KubeConfigPath string
	KubeContext    string

	// Lifecycle
	ShutdownPolicy  core.ShutdownPolicy
	ShutdownTimeout time.Duration

	// Health API
	HealthServerEnabled bool
	HealthServerPort    string
	RecentMessages      int

	ConfigFile string
}

// Args are values taken from the command line. They take precedence over
// the environment, which takes precedence over the settings file.
type Args struct {
	Port       string
	ConfigFile string
	Debug      bool
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		LogFormat:           "text",
		Backlog:             bind.DefaultBacklog,
		MaxMessageSize:      frame.DefaultMaxSize,
		Framing:             frame.ModeLine,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        10 * time.Second,
		ReplyMode:           ReplyModeFixed,
		ReplyText:           core.DefaultReply,
		ReplyConfigMapKey:   "reply",
		ShutdownPolicy:      core.ShutdownDrain,
		ShutdownTimeout:     10 * time.Second,
		HealthServerEnabled: true,
		HealthServerPort:    "8080",
		RecentMessages:      16,
	}
}

// Load builds the configuration from defaults, the optional settings file,
// the environment and the command line, in increasing precedence. Every
// failure is a fatal configuration error.
func Load(args Args) (*Config, error) {
	cfg := Default()

	cfg.ConfigFile = args.ConfigFile
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = os.Getenv("CONFIG_FILE")
	}
	filePort := 0
	if cfg.ConfigFile != "" {
		port, err := cfg.applyFile(cfg.ConfigFile)
		if err != nil {
			return nil, errs.Configuration("load "+cfg.ConfigFile, err)
		}
		filePort = port
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, errs.Configuration("read environment", err)
	}
	if args.Debug {
		cfg.Debug = true
	}

	// Port: argument, then LISTEN_PORT, then settings file
	switch {
	case args.Port != "":
		port, err := bind.ParsePort(args.Port)
		if err != nil {
			return nil, err
		}
		cfg.Port = port
	case os.Getenv("LISTEN_PORT") != "":
		port, err := bind.ParsePort(os.Getenv("LISTEN_PORT"))
		if err != nil {
			return nil, err
		}
		cfg.Port = port
	case filePort != 0:
		port, err := bind.ParsePort(strconv.Itoa(filePort))
		if err != nil {
			return nil, err
		}
		cfg.Port = port
	default:
		return nil, errs.Configuration("parse port", errors.New("no port provided"))
	}

	if cfg.ReplySource == "" {
		cfg.ReplySource = cfg.determineReplySource()
	}
	if cfg.ReplySource == ReplySourceKubernetes && cfg.Namespace == "" {
		cfg.Namespace = determineNamespace()
	}

	if err := cfg.validate(); err != nil {
		return nil, errs.Configuration("validate", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	env := &envReader{}

	// Core
	c.Debug = env.boolean("DEBUG", c.Debug)
	c.LogFormat = env.str("LOG_FORMAT", c.LogFormat)

	// Server
	c.Backlog = env.integer("BACKLOG", c.Backlog)
	c.MaxMessageSize = env.integer("MAX_MESSAGE_SIZE", c.MaxMessageSize)
	c.Framing = frame.Mode(strings.ToLower(env.str("FRAMING", string(c.Framing))))
	c.ReadTimeout = env.duration("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = env.duration("WRITE_TIMEOUT", c.WriteTimeout)

	// Reply
	c.ReplyMode = ReplyMode(strings.ToLower(env.str("REPLY_MODE", string(c.ReplyMode))))
	c.ReplySource = parseReplySource(env.str("REPLY_SOURCE", string(c.ReplySource)))
	c.ReplyText = env.str("REPLY_TEXT", c.ReplyText)
	c.ReplyFile = env.str("REPLY_FILE", c.ReplyFile)
	c.ReplyConfigMap = env.str("REPLY_CONFIGMAP", c.ReplyConfigMap)
	c.ReplyConfigMapKey = env.str("REPLY_CONFIGMAP_KEY", c.ReplyConfigMapKey)
	c.ReplyAutoCreate = env.boolean("REPLY_AUTO_CREATE", c.ReplyAutoCreate)

	// Kubernetes
	c.Namespace = env.str("NAMESPACE", c.Namespace)
	c.KubeConfigPath = env.str("KUBECONFIG", c.KubeConfigPath)
	c.KubeContext = env.str("KUBE_CONTEXT", c.KubeContext)

	// Lifecycle
	c.ShutdownPolicy = core.ShutdownPolicy(strings.ToLower(env.str("SHUTDOWN_POLICY", string(c.ShutdownPolicy))))
	c.ShutdownTimeout = env.duration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	// Health API
	c.HealthServerEnabled = env.boolean("HEALTH_SERVER_ENABLED", c.HealthServerEnabled)
	c.HealthServerPort = env.str("HEALTH_SERVER_PORT", c.HealthServerPort)
	c.RecentMessages = env.integer("RECENT_MESSAGES", c.RecentMessages)

	return errors.Join(env.errs...)
}

// validate ensures configuration is coherent
func (c *Config) validate() error {
	var problems []error

	if c.Backlog < 1 {
		problems = append(problems, fmt.Errorf("BACKLOG must be positive, got %d", c.Backlog))
	}
	if c.MaxMessageSize < 1 || c.MaxMessageSize > frame.MaxSize {
		problems = append(problems, fmt.Errorf("MAX_MESSAGE_SIZE must be between 1 and %d, got %d", frame.MaxSize, c.MaxMessageSize))
	}
	if _, err := frame.ParseMode(string(c.Framing)); err != nil {
		problems = append(problems, fmt.Errorf("FRAMING: %w", err))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		problems = append(problems, fmt.Errorf("READ_TIMEOUT and WRITE_TIMEOUT must not be negative"))
	}
	if !contains([]string{"text", "json"}, strings.ToLower(c.LogFormat)) {
		problems = append(problems, fmt.Errorf("unsupported LOG_FORMAT: %s (supported: text, json)", c.LogFormat))
	}

	switch c.ReplyMode {
	case ReplyModeFixed, ReplyModeEcho:
	default:
		problems = append(problems, fmt.Errorf("unsupported REPLY_MODE: %s (supported: fixed, echo)", c.ReplyMode))
	}

	// Reply source validation only matters for fixed replies
	if c.ReplyMode == ReplyModeFixed {
		switch c.ReplySource {
		case ReplySourceMemory:
		case ReplySourceFile:
			if c.ReplyFile == "" {
				problems = append(problems, fmt.Errorf("REPLY_FILE must be set when using the file reply source"))
			}
		case ReplySourceKubernetes:
			if c.ReplyConfigMap == "" {
				problems = append(problems, fmt.Errorf("REPLY_CONFIGMAP must be set when using the kubernetes reply source"))
			}
			if c.ReplyConfigMapKey == "" {
				problems = append(problems, fmt.Errorf("REPLY_CONFIGMAP_KEY must not be empty"))
			}
		default:
			problems = append(problems, fmt.Errorf("unsupported REPLY_SOURCE: %s (supported: memory, file, kubernetes)", c.ReplySource))
		}
	}

	switch c.ShutdownPolicy {
	case core.ShutdownDrain, core.ShutdownAbort:
	default:
		problems = append(problems, fmt.Errorf("unsupported SHUTDOWN_POLICY: %s (supported: drain, abort)", c.ShutdownPolicy))
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout))
	}

	if c.HealthServerEnabled {
		port, err := strconv.Atoi(c.HealthServerPort)
		if err != nil || port < 1 || port > 65535 {
			problems = append(problems, fmt.Errorf("invalid HEALTH_SERVER_PORT: %q", c.HealthServerPort))
		} else if port == c.Port {
			problems = append(problems, fmt.Errorf("HEALTH_SERVER_PORT must differ from the listen port %d", c.Port))
		}
	}
	if c.RecentMessages < 0 {
		problems = append(problems, fmt.Errorf("RECENT_MESSAGES must not be negative, got %d", c.RecentMessages))
	}

	return errors.Join(problems...)
}

// Helper functions

type envReader struct {
	errs []error
}

func (r *envReader) str(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (r *envReader) boolean(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s %q: not a boolean", key, value))
		return defaultValue
	}
	return boolValue
}

func (r *envReader) integer(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s %q: not an integer", key, value))
		return defaultValue
	}
	return intValue
}

func (r *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s %q: %w", key, value, err))
		return defaultValue
	}
	return d
}

func parseReplySource(s string) ReplySourceKind {
	switch strings.ToLower(s) {
	case "":
		return ""
	case "memory", "in-memory", "static":
		return ReplySourceMemory
	case "file", "filesystem":
		return ReplySourceFile
	case "kubernetes", "k8s", "configmap":
		return ReplySourceKubernetes
	default:
		return ReplySourceKind(s)
	}
}

func (c *Config) determineReplySource() ReplySourceKind {
	// Auto-detect based on configuration
	if c.ReplyFile != "" {
		return ReplySourceFile
	}
	if c.ReplyConfigMap != "" {
		return ReplySourceKubernetes
	}
	return ReplySourceMemory
}

func determineNamespace() string {
	// Kubernetes downward API
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		return ns
	}

	// Read from service account (in-cluster)
	if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		return strings.TrimSpace(string(data))
	}

	return "default"
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
