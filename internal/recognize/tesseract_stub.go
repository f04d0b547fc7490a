//go:build !ocr

package recognize

import "context"

const TesseractName = "tesseract"

// TesseractEngine is unavailable in builds without the ocr tag.
type TesseractEngine struct{}

// NewTesseractEngine always fails with ErrOCRNotEnabled.
func NewTesseractEngine(opts Options) (*TesseractEngine, error) {
	return nil, ErrOCRNotEnabled
}

func (e *TesseractEngine) Name() string { return TesseractName }

func (e *TesseractEngine) Recognize(ctx context.Context, img []byte) ([]Detection, error) {
	return nil, ErrOCRNotEnabled
}

func (e *TesseractEngine) Close() error { return nil }

// CheckTesseract always fails with ErrOCRNotEnabled.
func CheckTesseract(opts Options) error {
	return ErrOCRNotEnabled
}
