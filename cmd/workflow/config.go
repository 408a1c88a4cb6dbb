package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/intrafind/ihub-apps-sub010/llm"
)

const (
	appName   = "workflow"
	envPrefix = "WORKFLOW"
)

// Config holds the CLI configuration. Values come from flags, WORKFLOW_*
// environment variables and an optional workflow.yaml, in that order of
// precedence.
type Config struct {
	Store struct {
		Type string `mapstructure:"type"` // memory, file, sqlite, postgres, mysql
		Dir  string `mapstructure:"dir"`
		DSN  string `mapstructure:"dsn"`
	} `mapstructure:"store"`

	DefinitionsDir string `mapstructure:"definitions_dir"`
	NodeLogsDir    string `mapstructure:"node_logs_dir"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // text or json
	} `mapstructure:"log"`

	Engine struct {
		MaxIterations int           `mapstructure:"max_iterations"`
		NodeTimeout   time.Duration `mapstructure:"node_timeout"`
	} `mapstructure:"engine"`

	Script struct {
		Engine string `mapstructure:"engine"` // expr or risor
	} `mapstructure:"script"`

	LLM struct {
		Provider         string `mapstructure:"provider"` // empty or openai
		llm.OpenAIConfig `mapstructure:",squash"`
	} `mapstructure:"llm"`
}

func setDefaults(v *viper.Viper) {
	home := filepath.Join(".", "."+appName)
	v.SetDefault("store.type", "file")
	v.SetDefault("store.dir", filepath.Join(home, "executions"))
	v.SetDefault("store.dsn", "")
	v.SetDefault("definitions_dir", filepath.Join(home, "definitions"))
	v.SetDefault("node_logs_dir", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("engine.max_iterations", 0)
	v.SetDefault("engine.node_timeout", "0s")
	v.SetDefault("script.engine", "expr")
	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.token", "")
	v.SetDefault("llm.base_url", "")
}

// loadConfig reads the configuration. A missing config file is not an error
// unless one was named explicitly.
func loadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(appName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, appName))
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return &cfg, nil
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}
