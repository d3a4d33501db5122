package transform

import (
	"encoding/base64"
	"fmt"
	"os"
)

// Encoder turns an accepted attachment file into its transport payload.
type Encoder interface {
	EncodeFile(path, mimeType string) (string, error)
}

// TextRecognizer extracts readable text from an image file. Implementations
// wrap whatever OCR engine the host has available.
type TextRecognizer interface {
	RecognizeFile(path string) (string, error)
}

// Base64FileEncoder reads the file and emits standard base64.
type Base64FileEncoder struct{}

// EncodeFile implements Encoder.
func (Base64FileEncoder) EncodeFile(path, _ string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read attachment %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
