package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackzampolin/pdfocr/internal/raster"
	"github.com/jackzampolin/pdfocr/internal/recognize"
)

// DPI bounds accepted for rendering.
const (
	MinDPI = 36
	MaxDPI = 1200
)

// Config holds pdfocr configuration.
// Stored at: {home}/config.yaml
type Config struct {
	LogLevel   string        `mapstructure:"log_level" yaml:"log_level"`
	Rasterizer RasterizerCfg `mapstructure:"rasterizer" yaml:"rasterizer"`
	Recognizer RecognizerCfg `mapstructure:"recognizer" yaml:"recognizer"`
	Batch      BatchCfg      `mapstructure:"batch" yaml:"batch"`
	Watch      WatchCfg      `mapstructure:"watch" yaml:"watch"`
}

// RasterizerCfg configures page rendering.
type RasterizerCfg struct {
	Binary string `mapstructure:"binary" yaml:"binary"` // pdftoppm executable name or path
	DPI    int    `mapstructure:"dpi" yaml:"dpi"`
}

// RecognizerCfg selects and tunes the OCR engine.
type RecognizerCfg struct {
	Engine              string        `mapstructure:"engine" yaml:"engine"` // tesseract | paddle | openai
	AngleClassification bool          `mapstructure:"angle_classification" yaml:"angle_classification"`
	Languages           []string      `mapstructure:"languages" yaml:"languages"`
	UseGPU              bool          `mapstructure:"use_gpu" yaml:"use_gpu"`
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout"`       // remote engines only, 0 = none
	RateLimit           int           `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per minute, 0 = unlimited
	Paddle              PaddleCfg     `mapstructure:"paddle" yaml:"paddle"`
	OpenAI              OpenAICfg     `mapstructure:"openai" yaml:"openai"`
}

// PaddleCfg configures the PaddleOCR serving engine.
type PaddleCfg struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// OpenAICfg configures the vision engine.
type OpenAICfg struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
}

// BatchCfg configures directory parsing.
type BatchCfg struct {
	Recursive bool `mapstructure:"recursive" yaml:"recursive"`
}

// WatchCfg configures the inbox watcher.
type WatchCfg struct {
	OutputDir      string        `mapstructure:"output_dir" yaml:"output_dir"` // "" = {home}/results
	SettleAttempts uint          `mapstructure:"settle_attempts" yaml:"settle_attempts"`
	SettleDelay    time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	opts := recognize.DefaultOptions()
	return &Config{
		LogLevel: "info",
		Rasterizer: RasterizerCfg{
			Binary: raster.DefaultBinary,
			DPI:    raster.DefaultDPI,
		},
		Recognizer: RecognizerCfg{
			Engine:              recognize.EngineTesseract,
			AngleClassification: opts.AngleClassification,
			Languages:           opts.Languages,
			UseGPU:              opts.UseGPU,
			Paddle: PaddleCfg{
				Endpoint: recognize.PaddleDefaultEndpoint,
			},
			OpenAI: OpenAICfg{
				APIKey: "${OPENAI_API_KEY}",
				Model:  recognize.VisionDefaultModel,
			},
		},
		Batch: BatchCfg{
			Recursive: true,
		},
		Watch: WatchCfg{
			SettleAttempts: 10,
			SettleDelay:    500 * time.Millisecond,
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(recognize.EngineNames, c.Recognizer.Engine) {
		errs = append(errs, fmt.Errorf("recognizer.engine: unknown engine %q (want one of: %s)",
			c.Recognizer.Engine, strings.Join(recognize.EngineNames, ", ")))
	}
	if c.Rasterizer.DPI < MinDPI || c.Rasterizer.DPI > MaxDPI {
		errs = append(errs, fmt.Errorf("rasterizer.dpi: %d is outside [%d, %d]", c.Rasterizer.DPI, MinDPI, MaxDPI))
	}
	if strings.TrimSpace(c.Rasterizer.Binary) == "" {
		errs = append(errs, errors.New("rasterizer.binary: must not be empty"))
	}
	if c.Recognizer.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("recognizer.rate_limit: %d must not be negative", c.Recognizer.RateLimit))
	}
	if c.Recognizer.Timeout < 0 {
		errs = append(errs, fmt.Errorf("recognizer.timeout: %s must not be negative", c.Recognizer.Timeout))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// RecognizeConfig converts the recognizer section for recognize.New.
// It resolves ${ENV_VAR} references in the API key.
func (c *Config) RecognizeConfig() recognize.Config {
	r := c.Recognizer
	return recognize.Config{
		Engine: r.Engine,
		Options: recognize.Options{
			AngleClassification: r.AngleClassification,
			Languages:           slices.Clone(r.Languages),
			UseGPU:              r.UseGPU,
		},
		Timeout:   r.Timeout,
		RateLimit: r.RateLimit,
		Paddle: recognize.PaddleConfig{
			Endpoint: r.Paddle.Endpoint,
		},
		OpenAI: recognize.VisionConfig{
			APIKey:  ResolveEnvVars(r.OpenAI.APIKey),
			BaseURL: r.OpenAI.BaseURL,
			Model:   r.OpenAI.Model,
		},
	}
}

// PopplerConfig converts the rasterizer section for raster.NewPoppler.
func (c *Config) PopplerConfig(scratchDir string) raster.PopplerConfig {
	return raster.PopplerConfig{
		Binary:     c.Rasterizer.Binary,
		DPI:        c.Rasterizer.DPI,
		ScratchDir: scratchDir,
	}
}
