// Package objectstore configures the MinIO client backing the data lake
// and the quarantine area.
package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/parcelflow-labs/parcelflow-go/internal/platform/env"
)

type Config struct {
	Endpoint         string
	AccessKey        string
	SecretKey        string
	Region           string
	UseSSL           bool
	BucketLake       string
	BucketQuarantine string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("PARCELFLOW_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:         env.String("PARCELFLOW_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:        env.String("PARCELFLOW_MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey:        env.String("PARCELFLOW_MINIO_SECRET_KEY", "minioadmin"),
		Region:           env.String("PARCELFLOW_MINIO_REGION", "us-east-1"),
		UseSSL:           useSSL,
		BucketLake:       env.String("PARCELFLOW_MINIO_BUCKET_LAKE", "data-lake"),
		BucketQuarantine: env.String("PARCELFLOW_MINIO_BUCKET_QUARANTINE", "quarantine"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketLake) == "" {
		return errors.New("lake bucket is required")
	}
	if strings.TrimSpace(c.BucketQuarantine) == "" {
		return errors.New("quarantine bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
