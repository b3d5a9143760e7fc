// Package imaging decodes the image formats pastiche accepts and encodes
// filter output. Every format decoder is registered here so callers only need
// this import.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds decoding when no explicit limit is given.
const DefaultMaxPixels int64 = 50_000_000

var (
	// ErrEmpty is returned for zero-length input.
	ErrEmpty = errors.New("empty image data")
	// ErrTooLarge is returned when the header announces more pixels than allowed.
	ErrTooLarge = errors.New("image too large")
)

// Config is the header-level description of an encoded image.
type Config struct {
	Width  int    `json:"w"`
	Height int    `json:"h"`
	Format string `json:"format"`
}

// Pixels is the pixel count announced by the header.
func (c Config) Pixels() int64 {
	return int64(c.Width) * int64(c.Height)
}

// CheckPixels fails with ErrTooLarge when c exceeds limit. A limit <= 0 means
// DefaultMaxPixels.
func (c Config) CheckPixels(limit int64) error {
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if c.Pixels() > limit {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, c.Width, c.Height, limit)
	}
	return nil
}

// DecodeConfig reads only the image header.
func DecodeConfig(data []byte) (Config, error) {
	if len(data) == 0 {
		return Config{}, ErrEmpty
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Config{}, fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)
	}
	return Config{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Decode fully decodes data after checking the header against maxPixels, so
// a forged header cannot force a huge allocation. maxPixels <= 0 means
// DefaultMaxPixels.
func Decode(data []byte, maxPixels int64) (image.Image, string, error) {
	cfg, err := DecodeConfig(data)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.CheckPixels(maxPixels); err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Sniff returns the registered format name for data, or "" when unknown.
func Sniff(data []byte) string {
	cfg, err := DecodeConfig(data)
	if err != nil {
		return ""
	}
	return cfg.Format
}

var pngEncoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// EncodePNG encodes img as PNG. Output is byte-identical for identical pixels.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Extension maps a format name to the file extension used on disk.
func Extension(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png", "gif", "bmp", "tiff", "webp":
		return "." + format
	default:
		return ".bin"
	}
}

// ContentType maps a format name to its MIME type.
func ContentType(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png", "gif", "bmp", "tiff", "webp":
		return "image/" + format
	default:
		return "application/octet-stream"
	}
}
