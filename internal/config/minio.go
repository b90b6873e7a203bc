package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// MinioConfig locates the blob store that holds archived streams.
type MinioConfig struct {
	Endpoint string `env:"MINIO_ENDPOINT, required"`
	Username string `env:"MINIO_USERNAME, required"`
	Password string `env:"MINIO_PASSWORD, required"`
	Bucket   string `env:"MINIO_BUCKET, default=soundcodec"`
	Secure   bool   `env:"MINIO_SECURE, default=false"`
}

func NewMinioConfigFromEnv() (*MinioConfig, error) {
	return NewMinioConfig(context.Background(), nil)
}

func NewMinioConfig(ctx context.Context, l envconfig.Lookuper) (*MinioConfig, error) {
	return load[MinioConfig](ctx, l)
}
