// Package ocr turns submitted images into text.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrUnsupportedImage is returned for images that fail validation.
	ErrUnsupportedImage = errors.New("unsupported image")
	// ErrNoText is returned when an image contains no recognizable text.
	ErrNoText = errors.New("no text found in image")
)

// Decoder extracts text from an image.
type Decoder interface {
	Decode(ctx context.Context, image []byte) (string, error)
}

// Format is a detected image format
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatWEBP Format = "webp"
)

var signatures = []struct {
	magic  []byte
	format Format
}{
	{[]byte{0xFF, 0xD8, 0xFF}, FormatJPEG},
	{[]byte{0x89, 'P', 'N', 'G'}, FormatPNG},
	{[]byte("GIF8"), FormatGIF},
	{[]byte("BM"), FormatBMP},
}

// embeddedThreats are markup fragments that have no business inside an image.
var embeddedThreats = [][]byte{
	[]byte("<script"), []byte("javascript:"), []byte("<iframe"),
	[]byte("<embed"), []byte("<object"), []byte("document.cookie"),
}

// DetectFormat identifies an image by its magic bytes.
func DetectFormat(data []byte) (Format, bool) {
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.format, true
		}
	}
	if len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return FormatWEBP, true
	}
	return "", false
}

// ValidateImage checks size, format and embedded markup.
func ValidateImage(data []byte, maxBytes int) (Format, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty", ErrUnsupportedImage)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrUnsupportedImage, len(data), maxBytes)
	}
	format, ok := DetectFormat(data)
	if !ok {
		return "", fmt.Errorf("%w: unknown format", ErrUnsupportedImage)
	}
	lower := bytes.ToLower(data)
	for _, threat := range embeddedThreats {
		if bytes.Contains(lower, threat) {
			return "", fmt.Errorf("%w: embedded markup", ErrUnsupportedImage)
		}
	}
	return format, nil
}

// TesseractDecoder shells out to the tesseract CLI
type TesseractDecoder struct {
	Binary    string        // Path or name of the tesseract executable
	Languages string        // e.g. "aze+eng"
	Timeout   time.Duration // Per image
}

// NewTesseractDecoder returns a decoder with defaults filled in.
func NewTesseractDecoder(binary, languages string, timeout time.Duration) *TesseractDecoder {
	if binary == "" {
		binary = "tesseract"
	}
	if languages == "" {
		languages = "aze+eng"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TesseractDecoder{Binary: binary, Languages: languages, Timeout: timeout}
}

// Decode feeds the image on stdin and reads text from stdout.
func (d *TesseractDecoder) Decode(ctx context.Context, image []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Binary, "stdin", "stdout", "-l", d.Languages)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("run %s: %w", d.Binary, err)
		}
		return "", fmt.Errorf("run %s: %w: %s", d.Binary, err, msg)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// Available reports whether the tesseract binary can be found.
func (d *TesseractDecoder) Available() bool {
	_, err := exec.LookPath(d.Binary)
	return err == nil
}
