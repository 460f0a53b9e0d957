package ocr

import "context"

var defaultEngine Engine = &noopEngine{}

// DefaultEngine returns the package default OCR engine. Importing the
// tesseract subpackage replaces the initial no-op engine.
func DefaultEngine() Engine {
	return defaultEngine
}

// SetDefaultEngine sets the package default OCR engine.
func SetDefaultEngine(engine Engine) {
	defaultEngine = engine
}

type noopEngine struct{}

func (noopEngine) Name() string { return "noop" }

func (noopEngine) Recognize(_ context.Context, input Input) (Result, error) {
	return Result{InputID: input.ID}, nil
}

func (noopEngine) Availability() Availability {
	return Availability{Available: false, Reason: "no OCR engine configured"}
}
