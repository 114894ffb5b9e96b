package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Scanner struct {
		MaxConcurrency int      `yaml:"max_concurrency"`
		MaxBytes       int64    `yaml:"max_bytes"`
		MaxPixelArea   int      `yaml:"max_pixel_area"`
		AllowList      []string `yaml:"allow_list"`
		TessdPath      string   `yaml:"tessd_path"`
		ConvertPath    string   `yaml:"convert_path"`
	} `yaml:"scanner"`
	BasicAPI struct {
		URL string `yaml:"url"`
	} `yaml:"basic_api"`
	PremiumAPI struct {
		URL         string  `yaml:"url"`
		FeedbackURL string  `yaml:"feedback_url"`
		Username    string  `yaml:"username"`
		Password    string  `yaml:"password"`
		MinFeedback float64 `yaml:"min_feedback_confidence"`
	} `yaml:"premium_api"`
	LabelAPI struct {
		URL string `yaml:"url"`
		Key string `yaml:"key"`
	} `yaml:"label_api"`
}

// LoadConfig reads configuration from the specified YAML file.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()
	if config.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required")
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Scanner.MaxConcurrency == 0 {
		c.Scanner.MaxConcurrency = 64
	}
	if c.Scanner.MaxBytes == 0 {
		c.Scanner.MaxBytes = 8 * 1024 * 1024
	}
	if c.Scanner.MaxPixelArea == 0 {
		c.Scanner.MaxPixelArea = 33554432
	}
	if c.Scanner.TessdPath == "" {
		c.Scanner.TessdPath = "./tessd"
	}
	if c.Scanner.ConvertPath == "" {
		c.Scanner.ConvertPath = "/usr/bin/convert"
	}
	if c.PremiumAPI.MinFeedback == 0 {
		c.PremiumAPI.MinFeedback = 0.75
	}
}
