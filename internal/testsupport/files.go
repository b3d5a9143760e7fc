package testsupport

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Gradient returns a w x h image whose colours depend on seed, so distinct
// seeds give visibly different pictures.
func Gradient(w, h int, seed uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x*255)/max(w-1, 1)) ^ seed,
				G: uint8((y*255)/max(h-1, 1)) + seed,
				B: uint8(((x+y)*127)/max(w+h-2, 1)) + seed/2,
				A: 255,
			})
		}
	}
	return img
}

// PNGBytes encodes Gradient(w, h, seed) as PNG.
func PNGBytes(t testing.TB, w, h int, seed uint8) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, Gradient(w, h, seed)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// WritePNG writes PNGBytes(w, h, seed) to path and returns the bytes.
func WritePNG(t testing.TB, path string, w, h int, seed uint8) []byte {
	t.Helper()

	data := PNGBytes(t, w, h, seed)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return data
}

// StyleDir lays out a style directory with two filters: "vangogh", a single
// reference image at the top level, and "sketch", a sub-directory carrying a
// filter.toml manifest and one reference.
func StyleDir(t testing.TB, dir string) {
	t.Helper()

	WritePNG(t, filepath.Join(dir, "vangogh.png"), 32, 24, 200)
	WritePNG(t, filepath.Join(dir, "sketch", "paper.png"), 16, 16, 30)
	manifest := "kind = \"sketch\"\nstrength = 0.8\ndescription = \"pencil sketch\"\n"
	if err := os.WriteFile(filepath.Join(dir, "sketch", "filter.toml"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

// PNGHeader returns a PNG signature and IHDR chunk announcing w x h RGBA
// pixels with no image data. It decodes as a header only.
func PNGHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolour with alpha

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}
