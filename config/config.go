// Package config resolves settings from flags, the environment and config
// files, and sets up logging.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

/*
Settings are resolved with the following precedence (highest first):

1. Command line flags
2. Environment variables (INTERPRETER_*, and OPENAI_API_KEY for api_key)
3. Local project config (./.interpreter.yaml)
4. Global user config ($XDG_CONFIG_HOME/interpreter/config.yaml)
5. Defaults

A .env file in the working directory is loaded into the environment first.
Variables already set are not overridden.
*/

const (
	appName       = "interpreter"
	envPrefix     = "INTERPRETER"
	localFileName = ".interpreter.yaml"
	redacted      = "[REDACTED]"
)

// Settings is the resolved configuration.
type Settings struct {
	APIKey            string               `mapstructure:"api_key" yaml:"api_key" json:"api_key,omitempty" jsonschema:"description=OpenAI API key. OPENAI_API_KEY is used when unset"`
	BaseURL           string               `mapstructure:"base_url" yaml:"base_url" json:"base_url,omitempty" validate:"omitempty,url" jsonschema:"description=Endpoint of an OpenAI compatible service"`
	Provider          string               `mapstructure:"provider" yaml:"provider" json:"provider" validate:"required" jsonschema:"description=Registered completion provider,default=openai"`
	Model             string               `mapstructure:"model" yaml:"model" json:"model" validate:"required" jsonschema:"description=Chat model,default=gpt-4-0613"`
	Temperature       float64              `mapstructure:"temperature" yaml:"temperature" json:"temperature" validate:"gte=0,lte=2" jsonschema:"description=Sampling temperature,default=0.2"`
	MaxTokens         int                  `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens,omitempty" validate:"gte=0" jsonschema:"description=Response length cap. 0 leaves it to the service"`
	MaxOutputChars    int                  `mapstructure:"max_output_chars" yaml:"max_output_chars" json:"max_output_chars" validate:"gt=0" jsonschema:"description=Characters of code output sent back to the model,default=2000"`
	AutoRun           bool                 `mapstructure:"auto_run" yaml:"auto_run" json:"auto_run" jsonschema:"description=Run code without asking for approval"`
	SystemMessageFile string               `mapstructure:"system_message_file" yaml:"system_message_file" json:"system_message_file,omitempty" jsonschema:"description=Markdown file replacing the built-in system message"`
	Python            string               `mapstructure:"python" yaml:"python" json:"python" validate:"required" jsonschema:"description=Python interpreter of the persistent session,default=python3"`
	Command           []string             `mapstructure:"command" yaml:"command,omitempty" json:"command,omitempty" jsonschema:"description=One-shot command the code is appended to (e.g. [sh -c]). Unset runs code in a persistent Python session"`
	Timeout           time.Duration        `mapstructure:"timeout" yaml:"-" json:"timeout" validate:"gt=0" jsonschema:"type=string,description=Time limit of one run (e.g. 2m),default=2m"`
	History           bool                 `mapstructure:"history" yaml:"history" json:"history" jsonschema:"description=Save conversations,default=true"`
	DBPath            string               `mapstructure:"db_path" yaml:"db_path" json:"db_path" validate:"required" jsonschema:"description=Conversation database"`
	Log               Log                  `mapstructure:"log" yaml:"log" json:"log"`
	MCPServers        map[string]MCPServer `mapstructure:"mcp_servers" yaml:"mcp_servers,omitempty" json:"mcp_servers,omitempty" validate:"dive" jsonschema:"description=MCP servers whose tools are offered to the model"`
}

// MCPServer is an external MCP server started over stdio.
type MCPServer struct {
	Command string   `mapstructure:"command" yaml:"command" json:"command" validate:"required" jsonschema:"description=Executable to start"`
	Args    []string `mapstructure:"args" yaml:"args,omitempty" json:"args,omitempty"`
}

// Log configures logging.
type Log struct {
	Level string `mapstructure:"level" yaml:"level" json:"level" validate:"oneof=DEBUG INFO WARN ERROR" jsonschema:"enum=DEBUG,enum=INFO,enum=WARN,enum=ERROR,default=WARN"`
	File  string `mapstructure:"file" yaml:"file" json:"file,omitempty" jsonschema:"description=Log file. Logs go to stderr when unset"`
}

// flagKeys maps settings keys to the command line flags that override them.
var flagKeys = map[string]string{
	"model":               "model",
	"temperature":         "temperature",
	"max_output_chars":    "max-output-chars",
	"auto_run":            "yes",
	"log.level":           "log-level",
	"log.file":            "log-file",
	"system_message_file": "system-message",
}

// Options controls where Load looks.
type Options struct {
	// File replaces the global and local config files when set.
	File string
	// Flags are bound over the other sources. Flags missing from the set
	// are skipped.
	Flags *pflag.FlagSet
	// NoHistory disables conversation saving.
	NoHistory bool
}

// Load resolves the settings and validates them.
func Load(opts Options) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api_key", envPrefix+"_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding environment: %w", err)
	}

	if err := readFiles(v, opts.File); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		for key, name := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if opts.NoHistory {
		s.History = false
	}
	s.Log.Level = strings.ToUpper(s.Log.Level)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("provider", "openai")
	v.SetDefault("model", "gpt-4-0613")
	v.SetDefault("temperature", 0.2)
	v.SetDefault("max_tokens", 0)
	v.SetDefault("max_output_chars", 2000)
	v.SetDefault("auto_run", false)
	v.SetDefault("system_message_file", "")
	v.SetDefault("python", "python3")
	v.SetDefault("command", []string{})
	v.SetDefault("timeout", 2*time.Minute)
	v.SetDefault("history", true)
	v.SetDefault("db_path", filepath.Join(DataDir(), "history.db"))
	v.SetDefault("log.level", "WARN")
	v.SetDefault("log.file", "")
}

// readFiles reads the global config then merges the local one over it.
// Missing files are skipped unless named explicitly.
func readFiles(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", explicit, err)
		}
		return nil
	}

	for _, path := range []string{filepath.Join(ConfigDir(), "config.yaml"), localFileName} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	return nil
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("config validation error: %w", err)
	}
	return nil
}

// YAML renders the settings with secrets redacted.
func (s *Settings) YAML() ([]byte, error) {
	c := *s
	if c.APIKey != "" {
		c.APIKey = redacted
	}
	view := struct {
		Settings `yaml:",inline"`
		Timeout  string `yaml:"timeout"`
	}{c, c.Timeout.String()}
	out, err := yaml.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("error converting to YAML: %w", err)
	}
	return out, nil
}

// ConfigDir is where the global config file lives.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir is where the conversation database and input history live.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func xdgDir(env, fallback string) string {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		base = filepath.Join(home, fallback)
	}
	return filepath.Join(base, appName)
}
