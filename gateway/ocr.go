package gateway

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// TesseractOCR shells out to a local tesseract binary, reading the image
// from stdin and the recognized text from stdout.
type TesseractOCR struct {
	Binary string
}

// NewTesseractOCR resolves the binary; ErrNotConfigured when tesseract is
// not installed on this deployment.
func NewTesseractOCR(binary string) (*TesseractOCR, error) {
	if strings.TrimSpace(binary) == "" {
		binary = "tesseract"
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrNotConfigured, binary)
	}
	return &TesseractOCR{Binary: resolved}, nil
}

func (o *TesseractOCR) ExtractText(ctx context.Context, image []byte) (string, error) {
	cmd := exec.CommandContext(ctx, o.Binary, "stdin", "stdout")
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("tesseract: %s: %w", detail, err)
		}
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
