package imaging_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"pastiche/internal/imaging"
	"pastiche/internal/testsupport"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	return img
}

func TestDecodeConfigPNG(t *testing.T) {
	data, err := imaging.EncodePNG(testImage(7, 5))
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	cfg, err := imaging.DecodeConfig(data)
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Width != 7 || cfg.Height != 5 || cfg.Format != "png" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestDecodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(9, 3), nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	img, format, err := imaging.Decode(buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format != "jpeg" || img.Bounds().Dx() != 9 || img.Bounds().Dy() != 3 {
		t.Fatalf("unexpected decode result %s %v", format, img.Bounds())
	}
	if imaging.Extension(format) != ".jpg" {
		t.Fatalf("unexpected extension %q", imaging.Extension(format))
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := imaging.DecodeConfig([]byte("not an image")); err == nil {
		t.Fatal("expected error for garbage input")
	}
	if _, err := imaging.DecodeConfig(nil); !errors.Is(err, imaging.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if imaging.Sniff([]byte("nope")) != "" {
		t.Fatal("expected empty sniff for garbage")
	}
}

func TestEncodePNGDeterministic(t *testing.T) {
	img := testImage(16, 16)
	a, err := imaging.EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}
	b, err := imaging.EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical encodings")
	}
}

func TestDecodeRefusesOversizedHeader(t *testing.T) {
	data := testsupport.PNGHeader(1_000_000, 1_000_000)

	cfg, err := imaging.DecodeConfig(data)
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Pixels() != 1_000_000_000_000 {
		t.Fatalf("unexpected pixel count %d", cfg.Pixels())
	}
	if err := cfg.CheckPixels(0); !errors.Is(err, imaging.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, _, err := imaging.Decode(data, 0); !errors.Is(err, imaging.ErrTooLarge) {
		t.Fatalf("expected Decode to stop at the header, got %v", err)
	}
}

func TestCheckPixelsLimit(t *testing.T) {
	cfg := imaging.Config{Width: 10, Height: 10}
	if err := cfg.CheckPixels(100); err != nil {
		t.Fatalf("limit is inclusive: %v", err)
	}
	if err := cfg.CheckPixels(99); !errors.Is(err, imaging.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}
