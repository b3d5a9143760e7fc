package filters

import (
	"image"
	"image/color"
	"math"
	"sort"

	"golang.org/x/image/draw"
)

const (
	// profileMaxSide bounds the longest side of a reference before profiling.
	profileMaxSide = 128
	paletteSize    = 8
)

// Profile is the colour summary of a filter's reference images.
type Profile struct {
	Mean    [3]float64
	StdDev  [3]float64
	Palette []color.NRGBA
}

// downsample scales img so its longest side is at most maxSide.
func downsample(img image.Image, maxSide int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxSide || h > maxSide {
		if w >= h {
			h = max(1, h*maxSide/w)
			w = maxSide
		} else {
			w = max(1, w*maxSide/h)
			h = maxSide
		}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// buildProfile summarises the given reference images. Pixels from all
// references contribute equally.
func buildProfile(refs []*image.NRGBA) *Profile {
	var (
		sum   [3]float64
		sumSq [3]float64
		n     float64
		hist  = make(map[uint16]*bucket)
	)
	for _, img := range refs {
		forEachPixel(img, func(_, _ int, c color.NRGBA) {
			v := [3]float64{float64(c.R), float64(c.G), float64(c.B)}
			for i := range v {
				sum[i] += v[i]
				sumSq[i] += v[i] * v[i]
			}
			n++

			key := uint16(c.R>>4)<<8 | uint16(c.G>>4)<<4 | uint16(c.B>>4)
			bk := hist[key]
			if bk == nil {
				bk = &bucket{key: key}
				hist[key] = bk
			}
			bk.count++
			bk.sum[0] += uint64(c.R)
			bk.sum[1] += uint64(c.G)
			bk.sum[2] += uint64(c.B)
		})
	}

	p := &Profile{}
	if n == 0 {
		for i := range p.Mean {
			p.Mean[i] = 255
		}
		p.Palette = []color.NRGBA{{R: 255, G: 255, B: 255, A: 255}, {A: 255}}
		return p
	}
	for i := range p.Mean {
		p.Mean[i] = sum[i] / n
		variance := sumSq[i]/n - p.Mean[i]*p.Mean[i]
		p.StdDev[i] = math.Sqrt(math.Max(variance, 0))
	}

	buckets := make([]*bucket, 0, len(hist))
	for _, bk := range hist {
		buckets = append(buckets, bk)
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].count != buckets[j].count {
			return buckets[i].count > buckets[j].count
		}
		return buckets[i].key < buckets[j].key
	})
	for _, bk := range buckets[:min(paletteSize, len(buckets))] {
		p.Palette = append(p.Palette, bk.mean())
	}
	return p
}

type bucket struct {
	key   uint16
	count uint64
	sum   [3]uint64
}

func (b *bucket) mean() color.NRGBA {
	return color.NRGBA{
		R: uint8(b.sum[0] / b.count),
		G: uint8(b.sum[1] / b.count),
		B: uint8(b.sum[2] / b.count),
		A: 255,
	}
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func forEachPixel(img *image.NRGBA, fn func(x, y int, c color.NRGBA)) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			fn(x, y, img.NRGBAAt(x, y))
		}
	}
}
