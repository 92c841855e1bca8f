package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/guardrails/internal/platform/env"
)

// Config of the S3-compatible object store. An empty endpoint disables the
// s3:// backend.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("GUARDRAIL_S3_USE_SSL", true)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  strings.TrimSpace(env.String("GUARDRAIL_S3_ENDPOINT", "")),
		AccessKey: env.String("GUARDRAIL_S3_ACCESS_KEY", ""),
		SecretKey: env.String("GUARDRAIL_S3_SECRET_KEY", ""),
		Region:    env.String("GUARDRAIL_S3_REGION", "us-east-1"),
		UseSSL:    useSSL,
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("GUARDRAIL_S3_ENDPOINT is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("GUARDRAIL_S3_ACCESS_KEY is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("GUARDRAIL_S3_SECRET_KEY is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("GUARDRAIL_S3_REGION is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
