// Package config loads worker configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

// Config holds everything the worker reads from the environment. The R2
// block mirrors the job platform's storage contract; the WAN22 block covers
// knobs for the external generator runtime.
type Config struct {
	// R2 object storage. Upload is optional: when any of the first four
	// values is missing the worker skips the upload step entirely.
	R2BucketName      string `env:"R2_BUCKET_NAME"`
	R2EndpointURL     string `env:"R2_ENDPOINT_URL"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY"`
	R2UploadDirectory string `env:"R2_UPLOAD_DIRECTORY" envDefault:"video-outputs"`
	R2PresignedExpiry int    `env:"R2_PRESIGNED_EXPIRY" envDefault:"86400"` // seconds

	// Wan2.2 runtime locations inside the image.
	Wan22Dir        string        `env:"WAN22_DIR" envDefault:"/opt/wan22"`
	ModelDir        string        `env:"WAN22_MODEL_DIR" envDefault:"/opt/models/wan22-ti2v-5b"`
	PythonBin       string        `env:"WAN22_PYTHON" envDefault:"python"`
	GenerateTimeout time.Duration `env:"WAN22_GENERATE_TIMEOUT" envDefault:"3h"`
	// Overrides the default output discovery locations when set.
	OutputDirs []string `env:"WAN22_OUTPUT_DIRS" envSeparator:","`

	// Generator backend: "exec" runs generate.py in-process via the python
	// interpreter, "docker" runs it as a one-shot GPU container.
	Runner      string `env:"WAN22_RUNNER" envDefault:"exec"`
	DockerImage string `env:"WAN22_DOCKER_IMAGE" envDefault:"e-dream-ai/wan22-ti2v-5b:latest"`
	GPUs        string `env:"WAN22_GPUS" envDefault:"all"`

	// Serve mode.
	Addr          string        `env:"WORKER_ADDR" envDefault:":8000"`
	ScratchMaxAge time.Duration `env:"WORKER_SCRATCH_MAX_AGE" envDefault:"24h"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// R2Configured reports whether all credentials needed for the upload step
// are present.
func (c *Config) R2Configured() bool {
	return c.R2BucketName != "" && c.R2EndpointURL != "" &&
		c.R2AccessKeyID != "" && c.R2SecretAccessKey != ""
}

// PresignExpiry returns the configured presigned URL lifetime.
func (c *Config) PresignExpiry() time.Duration {
	return time.Duration(c.R2PresignedExpiry) * time.Second
}
