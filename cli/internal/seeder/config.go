// Package seeder generates fake leads and posts them to the public intake API.
package seeder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Version   string           `mapstructure:"version" yaml:"version"`
	Defaults  DefaultsConfig   `mapstructure:"defaults" yaml:"defaults"`
	Questions []QuestionConfig `mapstructure:"questions" yaml:"questions"`
}

type DefaultsConfig struct {
	APIURL      string        `mapstructure:"api_url" yaml:"api_url"`
	ClientID    string        `mapstructure:"client_id" yaml:"client_id"`
	AccountID   string        `mapstructure:"account_id" yaml:"account_id"`
	ProgramIDs  []string      `mapstructure:"program_ids" yaml:"program_ids"`
	LocationIDs []string      `mapstructure:"location_ids" yaml:"location_ids"`
	Count       int           `mapstructure:"count" yaml:"count"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	// DuplicateRate is the share of leads that reuse an earlier idempotency key.
	DuplicateRate  float64 `mapstructure:"duplicate_rate" yaml:"duplicate_rate"`
	ConsentVersion string  `mapstructure:"consent_version" yaml:"consent_version"`
	Seed           int64   `mapstructure:"seed" yaml:"seed"`
}

// QuestionConfig lists the answer values the generator may pick for a question.
type QuestionConfig struct {
	ID     string   `mapstructure:"id" yaml:"id"`
	Values []string `mapstructure:"values" yaml:"values"`
}

// LoadConfig loads configuration with cascade: flags > ./seeder.yaml > ~/.leadctl/seeder.yaml > defaults
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("seeder")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SEEDER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".leadctl"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "1.0")

	v.SetDefault("defaults.api_url", "http://localhost:8080")
	v.SetDefault("defaults.count", 100)
	v.SetDefault("defaults.concurrency", 4)
	v.SetDefault("defaults.interval", 0)
	v.SetDefault("defaults.duplicate_rate", 0.05)
	v.SetDefault("defaults.consent_version", "tcpa-v1")
	v.SetDefault("defaults.seed", 0)

	// Tenant ids have no sensible default.
	v.SetDefault("defaults.client_id", "")
	v.SetDefault("defaults.account_id", "")
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	d := c.Defaults
	if d.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if d.ClientID == "" || d.AccountID == "" {
		return fmt.Errorf("client_id and account_id are required")
	}
	if d.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", d.Count)
	}
	if d.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", d.Concurrency)
	}
	if d.DuplicateRate < 0 || d.DuplicateRate > 1 {
		return fmt.Errorf("duplicate_rate must be within [0, 1], got %v", d.DuplicateRate)
	}
	for _, q := range c.Questions {
		if q.ID == "" || len(q.Values) == 0 {
			return fmt.Errorf("question entries need an id and at least one value")
		}
	}
	return nil
}
