//go:build ocr

package recognize

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

const TesseractName = "tesseract"

// osdLanguage is the tesseract data file needed for orientation detection.
const osdLanguage = "osd"

// TesseractEngine runs tesseract in-process through gosseract.
// The underlying client is not safe for concurrent use; calls are serialized.
type TesseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
	opts   Options
}

// NewTesseractEngine initializes a tesseract client with the given options.
func NewTesseractEngine(opts Options) (*TesseractEngine, error) {
	if opts.UseGPU {
		return nil, fmt.Errorf("%s: %w", TesseractName, ErrAcceleratorUnsupported)
	}

	client := gosseract.NewClient()
	if len(opts.Languages) > 0 {
		if err := client.SetLanguage(opts.Languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set languages: %w", err)
		}
	}

	mode := gosseract.PSM_AUTO
	if opts.AngleClassification {
		mode = gosseract.PSM_AUTO_OSD
	}
	if err := client.SetPageSegMode(mode); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	return &TesseractEngine{client: client, opts: opts}, nil
}

// Name returns the parser label.
func (e *TesseractEngine) Name() string {
	return TesseractName
}

// Recognize returns one detection per text line. Tesseract reports confidence
// as a percentage, which is scaled to [0, 1]. Lines with no text are dropped.
func (e *TesseractEngine) Recognize(ctx context.Context, img []byte) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract recognition failed: %w", err)
	}

	raw := make([]RawDetection, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		raw = append(raw, RawDetection{
			Text:       text,
			Confidence: b.Confidence / 100,
			Points:     RectPoints(b.Box),
		})
	}
	return Normalize(raw)
}

// Close frees the tesseract client.
func (e *TesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}

// CheckTesseract verifies that the requested language data is installed.
func CheckTesseract(opts Options) error {
	if opts.UseGPU {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, TesseractName, ErrAcceleratorUnsupported)
	}

	available, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return fmt.Errorf("%w: failed to list tesseract languages: %v", ErrUnavailable, err)
	}
	installed := make(map[string]bool, len(available))
	for _, l := range available {
		installed[l] = true
	}

	want := append([]string(nil), opts.Languages...)
	if opts.AngleClassification {
		want = append(want, osdLanguage)
	}
	var missing []string
	for _, l := range want {
		if !installed[l] {
			missing = append(missing, l)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: tesseract language data not installed: %s", ErrUnavailable, strings.Join(missing, ", "))
	}
	return nil
}

var _ Engine = (*TesseractEngine)(nil)
