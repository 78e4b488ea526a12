package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/frame"
)

// fileConfig is the YAML settings file. Absent keys leave the default in
// place, so every field is a pointer.
type fileConfig struct {
	Debug          *bool   `yaml:"debug"`
	LogFormat      *string `yaml:"log_format"`
	Port           *int    `yaml:"port"`
	Backlog        *int    `yaml:"backlog"`
	MaxMessageSize *int    `yaml:"max_message_size"`
	Framing        *string `yaml:"framing"`
	ReadTimeout    *string `yaml:"read_timeout"`
	WriteTimeout   *string `yaml:"write_timeout"`
	RecentMessages *int    `yaml:"recent_messages"`

	Reply struct {
		Mode         *string `yaml:"mode"`
		Source       *string `yaml:"source"`
		Text         *string `yaml:"text"`
		File         *string `yaml:"file"`
		ConfigMap    *string `yaml:"configmap"`
		ConfigMapKey *string `yaml:"configmap_key"`
		AutoCreate   *bool   `yaml:"auto_create"`
	} `yaml:"reply"`

	Kubernetes struct {
		Namespace  *string `yaml:"namespace"`
		KubeConfig *string `yaml:"kubeconfig"`
		Context    *string `yaml:"context"`
	} `yaml:"kubernetes"`

	Shutdown struct {
		Policy  *string `yaml:"policy"`
		Timeout *string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Enabled *bool `yaml:"enabled"`
		Port    *int  `yaml:"port"`
	} `yaml:"health"`
}

// applyFile overlays the settings file at path onto c and returns the port
// it names, or 0. The port is returned rather than set so the command line
// and environment can still take precedence.
func (c *Config) applyFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var fc fileConfig
	if err := yaml.UnmarshalWithOptions(data, &fc, yaml.Strict()); err != nil {
		return 0, fmt.Errorf("parse settings: %w", err)
	}

	setBool(&c.Debug, fc.Debug)
	setString(&c.LogFormat, fc.LogFormat)
	setInt(&c.Backlog, fc.Backlog)
	setInt(&c.MaxMessageSize, fc.MaxMessageSize)
	setInt(&c.RecentMessages, fc.RecentMessages)
	if fc.Framing != nil {
		c.Framing = frame.Mode(strings.ToLower(*fc.Framing))
	}

	if fc.Reply.Mode != nil {
		c.ReplyMode = ReplyMode(strings.ToLower(*fc.Reply.Mode))
	}
	if fc.Reply.Source != nil {
		c.ReplySource = parseReplySource(*fc.Reply.Source)
	}
	setString(&c.ReplyText, fc.Reply.Text)
	setString(&c.ReplyFile, fc.Reply.File)
	setString(&c.ReplyConfigMap, fc.Reply.ConfigMap)
	setString(&c.ReplyConfigMapKey, fc.Reply.ConfigMapKey)
	setBool(&c.ReplyAutoCreate, fc.Reply.AutoCreate)

	setString(&c.Namespace, fc.Kubernetes.Namespace)
	setString(&c.KubeConfigPath, fc.Kubernetes.KubeConfig)
	setString(&c.KubeContext, fc.Kubernetes.Context)

	if fc.Shutdown.Policy != nil {
		c.ShutdownPolicy = core.ShutdownPolicy(strings.ToLower(*fc.Shutdown.Policy))
	}

	setBool(&c.HealthServerEnabled, fc.Health.Enabled)
	if fc.Health.Port != nil {
		c.HealthServerPort = strconv.Itoa(*fc.Health.Port)
	}

	durations := []struct {
		key string
		src *string
		dst *time.Duration
	}{
		{"read_timeout", fc.ReadTimeout, &c.ReadTimeout},
		{"write_timeout", fc.WriteTimeout, &c.WriteTimeout},
		{"shutdown.timeout", fc.Shutdown.Timeout, &c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", d.key, *d.src, err)
		}
		*d.dst = v
	}

	if fc.Port == nil {
		return 0, nil
	}
	if *fc.Port == 0 {
		return 0, fmt.Errorf("invalid port 0")
	}
	return *fc.Port, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
