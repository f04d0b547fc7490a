// Package recognize wraps the OCR engines that turn a page image into text lines.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

// Engine names accepted in configuration.
const (
	EngineTesseract = "tesseract"
	EnginePaddle    = "paddle"
	EngineOpenAI    = "openai"
)

// EngineNames lists every engine the factory knows how to build.
var EngineNames = []string{EngineTesseract, EnginePaddle, EngineOpenAI}

var (
	// ErrUnavailable marks an engine whose runtime requirements are not met.
	// Callers treat it as a missing dependency rather than a processing failure.
	ErrUnavailable = errors.New("recognition engine unavailable")

	// ErrOCRNotEnabled is returned by the tesseract engine in builds without the ocr tag.
	ErrOCRNotEnabled = fmt.Errorf("%w: tesseract support not compiled in (rebuild with -tags ocr)", ErrUnavailable)

	// ErrAcceleratorUnsupported is returned when UseGPU is requested from an engine that runs on CPU only.
	ErrAcceleratorUnsupported = errors.New("engine does not support GPU acceleration")
)

// Point is a pixel coordinate in the page image.
type Point struct {
	X int
	Y int
}

// Quad is a text-line bounding quadrilateral, clockwise from top-left.
type Quad [4]Point

// Detection is one recognized text line.
type Detection struct {
	Text       string
	Confidence float64
	Box        Quad
}

// Engine recognizes text lines in a rendered page image.
type Engine interface {
	// Name is the label reported as the document's parser.
	Name() string

	// Recognize returns the detected lines in engine order.
	// An empty result is valid and means the page has no text.
	Recognize(ctx context.Context, img []byte) ([]Detection, error)
}

// Options are the recognition settings shared by every engine.
type Options struct {
	// AngleClassification enables rotated text line detection.
	AngleClassification bool
	// Languages are recognition language codes in tesseract naming.
	Languages []string
	// UseGPU requests hardware acceleration. Engines that cannot honor it fail construction.
	UseGPU bool
}

// DefaultOptions returns angle classification on, Chinese + English, CPU only.
func DefaultOptions() Options {
	return Options{
		AngleClassification: true,
		Languages:           []string{"chi_sim", "eng"},
		UseGPU:              false,
	}
}

// RawDetection is an engine's native output before normalization.
type RawDetection struct {
	Text       string
	Confidence float64
	Points     [][2]float64
}

// Normalize converts raw engine output into detections.
// Coordinates are truncated toward zero, confidence is clamped to [0, 1],
// and every box must have exactly four corners. Empty text is kept.
func Normalize(raw []RawDetection) ([]Detection, error) {
	out := make([]Detection, 0, len(raw))
	for i, r := range raw {
		if len(r.Points) != 4 {
			return nil, fmt.Errorf("detection %d: box has %d points, want 4", i, len(r.Points))
		}
		var box Quad
		for j, p := range r.Points {
			if math.IsNaN(p[0]) || math.IsNaN(p[1]) {
				return nil, fmt.Errorf("detection %d: box point %d is not a number", i, j)
			}
			box[j] = Point{X: int(p[0]), Y: int(p[1])}
		}
		out = append(out, Detection{
			Text:       r.Text,
			Confidence: clamp(r.Confidence),
			Box:        box,
		})
	}
	return out, nil
}

// RectPoints expands an axis-aligned rectangle into four corners, clockwise from top-left.
func RectPoints(r image.Rectangle) [][2]float64 {
	return [][2]float64{
		{float64(r.Min.X), float64(r.Min.Y)},
		{float64(r.Max.X), float64(r.Min.Y)},
		{float64(r.Max.X), float64(r.Max.Y)},
		{float64(r.Min.X), float64(r.Max.Y)},
	}
}

func clamp(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
