package filters

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"pastiche/internal/imaging"
	"pastiche/internal/services"
)

// Apply runs desc against encoded input and returns the PNG-encoded result.
// The output has the input's pixel dimensions. The same descriptor and input
// bytes always produce the same output bytes. Undecodable or oversized input
// and panics inside a transform surface as services.ErrFilterExecution.
// Inputs are bounded by imaging.DefaultMaxPixels; see ApplyWithLimit.
func Apply(desc Descriptor, input []byte) ([]byte, error) {
	return ApplyWithLimit(desc, input, 0)
}

// LimitedApply returns Apply bound to maxPixels, for use as a pool apply func.
func LimitedApply(maxPixels int64) func(Descriptor, []byte) ([]byte, error) {
	return func(desc Descriptor, input []byte) ([]byte, error) {
		return ApplyWithLimit(desc, input, maxPixels)
	}
}

// ApplyWithLimit is Apply with an explicit pixel ceiling checked against the
// header before any pixel data is decoded.
func ApplyWithLimit(desc Descriptor, input []byte, maxPixels int64) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = services.Wrap(services.ErrFilterExecution, "filters", "apply",
				fmt.Sprintf("%s: transform panicked", desc.Name), fmt.Errorf("%v", r))
		}
	}()

	img, _, err := imaging.Decode(input, maxPixels)
	if err != nil {
		return nil, services.Wrap(services.ErrFilterExecution, "filters", "apply", desc.Name+": decode input", err)
	}
	src := toNRGBA(img)
	profile := desc.Profile
	if profile == nil {
		profile = buildProfile(nil)
	}

	var styled *image.NRGBA
	switch desc.Kind {
	case KindTransfer, "":
		styled = colorTransfer(src, profile)
	case KindPalette:
		styled = paletteMap(src, profile)
	case KindSketch:
		styled = sketch(src, profile)
	default:
		return nil, services.Wrap(services.ErrFilterExecution, "filters", "apply",
			fmt.Sprintf("%s: unsupported kind %q", desc.Name, desc.Kind), nil)
	}

	strength := desc.Strength
	if strength <= 0 || strength > 1 {
		strength = 1
	}
	if strength < 1 {
		blend(styled, src, strength)
	}

	encoded, err := imaging.EncodePNG(styled)
	if err != nil {
		return nil, services.Wrap(services.ErrFilterExecution, "filters", "apply", desc.Name+": encode output", err)
	}
	return encoded, nil
}

// colorTransfer matches each RGB channel's mean and deviation to the profile.
func colorTransfer(src *image.NRGBA, p *Profile) *image.NRGBA {
	mean, std := channelStats(src)
	scale := [3]float64{}
	for i := range scale {
		if std[i] < 1e-6 {
			scale[i] = 0
		} else {
			scale[i] = p.StdDev[i] / std[i]
		}
	}
	dst := image.NewNRGBA(src.Bounds())
	forEachPixel(src, func(x, y int, c color.NRGBA) {
		v := [3]float64{float64(c.R), float64(c.G), float64(c.B)}
		for i := range v {
			v[i] = (v[i]-mean[i])*scale[i] + p.Mean[i]
		}
		dst.SetNRGBA(x, y, color.NRGBA{R: clamp8(v[0]), G: clamp8(v[1]), B: clamp8(v[2]), A: c.A})
	})
	return dst
}

// paletteMap replaces each pixel with the nearest profile palette colour.
func paletteMap(src *image.NRGBA, p *Profile) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	cache := make(map[[3]uint8]color.NRGBA)
	forEachPixel(src, func(x, y int, c color.NRGBA) {
		key := [3]uint8{c.R, c.G, c.B}
		match, ok := cache[key]
		if !ok {
			match = nearest(p.Palette, c)
			cache[key] = match
		}
		match.A = c.A
		dst.SetNRGBA(x, y, match)
	})
	return dst
}

func nearest(palette []color.NRGBA, c color.NRGBA) color.NRGBA {
	best := palette[0]
	bestDist := math.MaxInt
	for _, candidate := range palette {
		dr := int(c.R) - int(candidate.R)
		dg := int(c.G) - int(candidate.G)
		db := int(c.B) - int(candidate.B)
		if d := dr*dr + dg*dg + db*db; d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

// sketch draws Sobel edge strokes over the profile's mean colour as paper.
func sketch(src *image.NRGBA, p *Profile) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	lum := make([]float64, w*h)
	forEachPixel(src, func(x, y int, c color.NRGBA) {
		lum[(y-b.Min.Y)*w+(x-b.Min.X)] = 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
	})
	at := func(x, y int) float64 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return lum[y*w+x]
	}

	paper := p.Mean
	dst := image.NewNRGBA(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) + at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) + at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			ink := math.Min(math.Hypot(gx, gy)/4, 255) / 255
			shade := 1 - ink
			a := src.NRGBAAt(b.Min.X+x, b.Min.Y+y).A
			dst.SetNRGBA(b.Min.X+x, b.Min.Y+y, color.NRGBA{
				R: clamp8(paper[0] * shade),
				G: clamp8(paper[1] * shade),
				B: clamp8(paper[2] * shade),
				A: a,
			})
		}
	}
	return dst
}

// blend mixes styled towards original in place: styled*s + original*(1-s).
func blend(styled, original *image.NRGBA, s float64) {
	forEachPixel(styled, func(x, y int, c color.NRGBA) {
		o := original.NRGBAAt(x, y)
		styled.SetNRGBA(x, y, color.NRGBA{
			R: clamp8(float64(c.R)*s + float64(o.R)*(1-s)),
			G: clamp8(float64(c.G)*s + float64(o.G)*(1-s)),
			B: clamp8(float64(c.B)*s + float64(o.B)*(1-s)),
			A: c.A,
		})
	})
}

func channelStats(img *image.NRGBA) (mean, std [3]float64) {
	var sum, sumSq [3]float64
	n := 0.0
	forEachPixel(img, func(_, _ int, c color.NRGBA) {
		v := [3]float64{float64(c.R), float64(c.G), float64(c.B)}
		for i := range v {
			sum[i] += v[i]
			sumSq[i] += v[i] * v[i]
		}
		n++
	})
	if n == 0 {
		return mean, std
	}
	for i := range mean {
		mean[i] = sum[i] / n
		std[i] = math.Sqrt(math.Max(sumSq[i]/n-mean[i]*mean[i], 0))
	}
	return mean, std
}

func clamp8(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}
