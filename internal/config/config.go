package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
)

type Config struct {
	ListenAddr                 string
	LogLevel                   string
	MaxUploadBytes             int64
	GeminiAPIKey               string
	GeminiBaseURL              string
	TranscriptionModel         string
	TranscriptionFallbackModel string
	StyleModel                 string
	MinutesModel               string
	MinutesPromptFile          string
	UpstreamTimeout            time.Duration
	Storage                    StorageConfig
}

// StorageConfig is only usable when region, bucket and both keys are set.
type StorageConfig struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

type envConfig struct {
	ListenAddr                 string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel                   string `env:"LOG_LEVEL" envDefault:"info"`
	MaxUploadBytes             int64  `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"`
	GeminiAPIKey               string `env:"GEMINI_API_KEY"`
	GeminiBaseURL              string `env:"GEMINI_BASE_URL"`
	TranscriptionModel         string `env:"TRANSCRIPTION_MODEL" envDefault:"gemini-2.5-flash"`
	TranscriptionFallbackModel string `env:"TRANSCRIPTION_FALLBACK_MODEL" envDefault:"gemini-2.0-flash"`
	StyleModel                 string `env:"STYLE_MODEL" envDefault:"gemini-2.5-flash"`
	MinutesModel               string `env:"MINUTES_MODEL" envDefault:"gemini-2.5-flash"`
	MinutesPromptFile          string `env:"MINUTES_PROMPT_FILE"`
	UpstreamTimeoutSeconds     int    `env:"UPSTREAM_TIMEOUT_SECONDS" envDefault:"300"`
	AWSRegion                  string `env:"AWS_REGION"`
	S3UploadBucket             string `env:"S3_UPLOAD_BUCKET"`
	AWSAccessKeyID             string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey         string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Endpoint                 string `env:"S3_ENDPOINT"`
}

func Load() (Config, error) {
	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:                 strings.TrimSpace(raw.ListenAddr),
		LogLevel:                   strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		MaxUploadBytes:             raw.MaxUploadBytes,
		GeminiAPIKey:               strings.TrimSpace(raw.GeminiAPIKey),
		GeminiBaseURL:              strings.TrimRight(strings.TrimSpace(raw.GeminiBaseURL), "/"),
		TranscriptionModel:         strings.TrimSpace(raw.TranscriptionModel),
		TranscriptionFallbackModel: strings.TrimSpace(raw.TranscriptionFallbackModel),
		StyleModel:                 strings.TrimSpace(raw.StyleModel),
		MinutesModel:               strings.TrimSpace(raw.MinutesModel),
		MinutesPromptFile:          strings.TrimSpace(raw.MinutesPromptFile),
		UpstreamTimeout:            time.Duration(raw.UpstreamTimeoutSeconds) * time.Second,
		Storage: StorageConfig{
			Region:          strings.TrimSpace(raw.AWSRegion),
			Bucket:          strings.TrimSpace(raw.S3UploadBucket),
			AccessKeyID:     strings.TrimSpace(raw.AWSAccessKeyID),
			SecretAccessKey: strings.TrimSpace(raw.AWSSecretAccessKey),
			Endpoint:        strings.TrimRight(strings.TrimSpace(raw.S3Endpoint), "/"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.TranscriptionModel == "" {
		return errors.New("TRANSCRIPTION_MODEL must not be empty")
	}
	if c.StyleModel == "" {
		return errors.New("STYLE_MODEL must not be empty")
	}
	if c.MinutesModel == "" {
		return errors.New("MINUTES_MODEL must not be empty")
	}
	if c.UpstreamTimeout <= 0 {
		return errors.New("UPSTREAM_TIMEOUT_SECONDS must be > 0")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	return nil
}

// AIEnabled reports whether a Gemini credential is configured. Without one
// every AI-dependent component runs in mock mode.
func (c Config) AIEnabled() bool {
	return c.GeminiAPIKey != ""
}

// TranscriptionModels returns the ordered model chain used per audio file.
func (c Config) TranscriptionModels() []string {
	models := []string{c.TranscriptionModel}
	if c.TranscriptionFallbackModel != "" && c.TranscriptionFallbackModel != c.TranscriptionModel {
		models = append(models, c.TranscriptionFallbackModel)
	}
	return models
}

// Enabled reports whether all four required storage settings are present.
func (s StorageConfig) Enabled() bool {
	return s.Region != "" && s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// Partial reports whether some but not all required storage settings are set.
func (s StorageConfig) Partial() bool {
	set := 0
	for _, v := range []string{s.Region, s.Bucket, s.AccessKeyID, s.SecretAccessKey} {
		if v != "" {
			set++
		}
	}
	return set > 0 && set < 4
}

// LoadPrompt returns the contents of path, or fallback when path is empty.
func LoadPrompt(path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %s is empty", path)
	}
	return prompt, nil
}
