package recognize

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackzampolin/pdfocr/internal/api"
)

const (
	PaddleName            = "paddleocr"
	PaddleDefaultEndpoint = "http://127.0.0.1:8080/ocr"

	// paddleFileTypeImage selects image input in the PaddleX serving protocol.
	paddleFileTypeImage = 1
)

// PaddleConfig configures the PaddleOCR serving engine.
type PaddleConfig struct {
	Endpoint  string
	Timeout   time.Duration
	RateLimit int
	Logger    *slog.Logger
}

// PaddleEngine sends page images to a PaddleX OCR serving endpoint.
type PaddleEngine struct {
	client  *api.Client
	opts    Options
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewPaddleEngine creates an engine bound to cfg.Endpoint. The serving API
// has no per-request device switch, so UseGPU is rejected; run a GPU build of
// the server instead.
func NewPaddleEngine(cfg PaddleConfig, opts Options) (*PaddleEngine, error) {
	if opts.UseGPU {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, PaddleName, ErrAcceleratorUnsupported)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = PaddleDefaultEndpoint
	}
	if err := validateEndpoint(cfg.Endpoint); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PaddleEngine{
		client:  api.NewClient(cfg.Endpoint, cfg.Timeout),
		opts:    opts,
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger.With("engine", PaddleName),
	}, nil
}

// Name returns the parser label.
func (e *PaddleEngine) Name() string {
	return PaddleName
}

// Recognize posts the image and converts the first OCR result's lines.
func (e *PaddleEngine) Recognize(ctx context.Context, img []byte) ([]Detection, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := paddleRequest{
		File:                   base64.StdEncoding.EncodeToString(img),
		FileType:               paddleFileTypeImage,
		UseTextlineOrientation: e.opts.AngleClassification,
		Visualize:              false,
	}

	start := time.Now()
	var resp paddleResponse
	if err := e.client.Post(ctx, "", req, &resp); err != nil {
		return nil, fmt.Errorf("PaddleOCR request failed: %w", err)
	}
	if resp.ErrorCode != 0 {
		return nil, fmt.Errorf("PaddleOCR error (%d): %s", resp.ErrorCode, resp.ErrorMsg)
	}

	raw, err := resp.detections()
	if err != nil {
		return nil, err
	}
	e.logger.Debug("page recognized", "lines", len(raw), "log_id", resp.LogID, "duration", time.Since(start))
	return Normalize(raw)
}

// CheckPaddle validates the endpoint configuration. The server itself is not contacted.
func CheckPaddle(cfg PaddleConfig, opts Options) error {
	if opts.UseGPU {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, PaddleName, ErrAcceleratorUnsupported)
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = PaddleDefaultEndpoint
	}
	if err := validateEndpoint(endpoint); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	return nil
}

// PaddleX serving API types

type paddleRequest struct {
	File                   string `json:"file"`
	FileType               int    `json:"fileType"`
	UseTextlineOrientation bool   `json:"useTextlineOrientation"`
	Visualize              bool   `json:"visualize"`
}

type paddleResponse struct {
	LogID     string        `json:"logId"`
	ErrorCode int           `json:"errorCode"`
	ErrorMsg  string        `json:"errorMsg"`
	Result    *paddleResult `json:"result"`
}

type paddleResult struct {
	OCRResults []paddleOCRResult `json:"ocrResults"`
}

type paddleOCRResult struct {
	PrunedResult paddlePrunedResult `json:"prunedResult"`
}

type paddlePrunedResult struct {
	RecTexts  []string       `json:"rec_texts"`
	RecScores []float64      `json:"rec_scores"`
	RecPolys  [][][2]float64 `json:"rec_polys"`
}

// detections flattens the first OCR result. A missing or empty result means no text.
func (r *paddleResponse) detections() ([]RawDetection, error) {
	if r.Result == nil || len(r.Result.OCRResults) == 0 {
		return nil, nil
	}
	p := r.Result.OCRResults[0].PrunedResult
	if len(p.RecScores) != len(p.RecTexts) || len(p.RecPolys) != len(p.RecTexts) {
		return nil, fmt.Errorf("PaddleOCR returned mismatched result lengths: %d texts, %d scores, %d boxes",
			len(p.RecTexts), len(p.RecScores), len(p.RecPolys))
	}

	raw := make([]RawDetection, len(p.RecTexts))
	for i, text := range p.RecTexts {
		raw[i] = RawDetection{
			Text:       text,
			Confidence: p.RecScores[i],
			Points:     p.RecPolys[i],
		}
	}
	return raw, nil
}

var _ Engine = (*PaddleEngine)(nil)
