package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	VisionName         = "openai-vision"
	VisionDefaultModel = "gpt-4o-mini"

	// visionAPIKeyEnv is consulted when no key is configured.
	visionAPIKeyEnv = "OPENAI_API_KEY"
)

// visionSchema is both the response_format sent to the model and the local validator.
const visionSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["lines"],
  "properties": {
    "lines": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["text", "confidence", "box"],
        "properties": {
          "text": {"type": "string"},
          "confidence": {"type": "number"},
          "box": {
            "type": "array",
            "minItems": 4,
            "maxItems": 4,
            "items": {
              "type": "array",
              "minItems": 2,
              "maxItems": 2,
              "items": {"type": "number"}
            }
          }
        }
      }
    }
  }
}`

const visionSystemPrompt = `You are an OCR engine. Transcribe every line of text visible in the image exactly as written, in reading order.
For each line report the text, your confidence between 0 and 1, and the bounding box as four [x, y] pixel corners in clockwise order starting at the top-left.
Do not translate, correct, or summarize. Return an empty list when the image contains no text.`

// VisionConfig configures the OpenAI vision engine.
type VisionConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	RateLimit int
	Logger    *slog.Logger
}

// VisionEngine transcribes page images with an OpenAI-compatible vision model
// using structured output.
type VisionEngine struct {
	client  openai.Client
	model   string
	opts    Options
	schema  *jsonschema.Schema
	format  map[string]any
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewVisionEngine creates a vision engine. Requests are not retried.
func NewVisionEngine(cfg VisionConfig, opts Options) (*VisionEngine, error) {
	if opts.UseGPU {
		return nil, fmt.Errorf("%s: %w", VisionName, ErrAcceleratorUnsupported)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(visionAPIKeyEnv)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s requires an API key", ErrUnavailable, VisionName)
	}
	if cfg.Model == "" {
		cfg.Model = VisionDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	schema, err := jsonschema.CompileString("vision-lines.json", visionSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile response schema: %w", err)
	}
	var format map[string]any
	if err := json.Unmarshal([]byte(visionSchema), &format); err != nil {
		return nil, fmt.Errorf("failed to parse response schema: %w", err)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &VisionEngine{
		client:  openai.NewClient(reqOpts...),
		model:   cfg.Model,
		opts:    opts,
		schema:  schema,
		format:  format,
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger.With("engine", VisionName, "model", cfg.Model),
	}, nil
}

// Name returns the parser label.
func (e *VisionEngine) Name() string {
	return VisionName
}

// Recognize sends the page as a data URL and validates the structured reply.
func (e *VisionEngine) Recognize(ctx context.Context, img []byte) ([]Detection, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to decode page image: %w", err)
	}
	dataURL := fmt.Sprintf("data:image/%s;base64,%s", format, base64.StdEncoding.EncodeToString(img))

	params := openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(visionSystemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(e.instructions(cfg.Width, cfg.Height)),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    dataURL,
					Detail: "high",
				}),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "ocr_lines",
					Schema: e.format,
				},
			},
		},
		Temperature: openai.Float(0),
	}

	start := time.Now()
	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("vision request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("vision response has no choices")
	}
	content := resp.Choices[0].Message.Content

	raw, err := e.parse(content)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("page recognized", "lines", len(raw), "duration", time.Since(start))
	return Normalize(raw)
}

func (e *VisionEngine) instructions(width, height int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The image is %d x %d pixels.", width, height)
	if len(e.opts.Languages) > 0 {
		fmt.Fprintf(&b, " Expected languages: %s.", strings.Join(e.opts.Languages, ", "))
	}
	if e.opts.AngleClassification {
		b.WriteString(" Some lines may be rotated; read them in their natural orientation and box them where they appear.")
	}
	return b.String()
}

type visionReply struct {
	Lines []struct {
		Text       string       `json:"text"`
		Confidence float64      `json:"confidence"`
		Box        [][2]float64 `json:"box"`
	} `json:"lines"`
}

// parse validates content against visionSchema before decoding it.
func (e *VisionEngine) parse(content string) ([]RawDetection, error) {
	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("vision response is not JSON: %w", err)
	}
	if err := e.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("vision response does not match schema: %w", err)
	}

	var reply visionReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return nil, fmt.Errorf("failed to decode vision response: %w", err)
	}
	raw := make([]RawDetection, len(reply.Lines))
	for i, l := range reply.Lines {
		raw[i] = RawDetection{Text: l.Text, Confidence: l.Confidence, Points: l.Box}
	}
	return raw, nil
}

// CheckVision verifies that an API key is available.
func CheckVision(cfg VisionConfig, opts Options) error {
	if opts.UseGPU {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, VisionName, ErrAcceleratorUnsupported)
	}
	if cfg.APIKey == "" && os.Getenv(visionAPIKeyEnv) == "" {
		return fmt.Errorf("%w: %s requires recognizer.openai.api_key or %s", ErrUnavailable, VisionName, visionAPIKeyEnv)
	}
	return nil
}

var _ Engine = (*VisionEngine)(nil)
