package imaging

import (
	"fmt"
	"image"
	"image/color"
)

// Method selects how a grayscale image is split into ink and paper
type Method string

const (
	MethodNone     Method = "none"
	MethodGlobal   Method = "global"
	MethodOtsu     Method = "otsu"
	MethodAdaptive Method = "adaptive"
)

// Binarization configures Binarize
type Binarization struct {
	Method Method
	// Level is the fixed cut for MethodGlobal. Pixels darker than Level are ink.
	Level uint8
	// Block is the odd neighborhood width for MethodAdaptive.
	Block int
	// Offset is subtracted from the neighborhood mean for MethodAdaptive.
	Offset float64
}

// DefaultBinarization matches the adaptive 11/2 setting used for table masks
func DefaultBinarization() Binarization {
	return Binarization{Method: MethodAdaptive, Level: 128, Block: 11, Offset: 2}
}

// Binarize returns a mask where ink pixels are Ink and everything else is Paper
func Binarize(g *image.Gray, cfg Binarization) (*image.Gray, error) {
	if g == nil || g.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	switch cfg.Method {
	case MethodGlobal:
		return cut(g, func(v uint8, _, _ int) bool { return v < cfg.Level }), nil
	case MethodOtsu:
		t := OtsuLevel(g)
		return cut(g, func(v uint8, _, _ int) bool { return v <= t }), nil
	case MethodAdaptive, "":
		block := cfg.Block
		if block < 3 {
			block = 11
		}
		if block%2 == 0 {
			block++
		}
		mean := localMean(g, block/2)
		w := g.Bounds().Dx()
		return cut(g, func(v uint8, x, y int) bool {
			return float64(v) <= mean[y*w+x]-cfg.Offset
		}), nil
	default:
		return nil, fmt.Errorf("unknown binarization method %q", cfg.Method)
	}
}

// cut builds a mask from a per-pixel ink predicate. x and y are relative
// to the image origin.
func cut(g *image.Gray, ink func(v uint8, x, y int) bool) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if ink(g.GrayAt(x, y).Y, x-b.Min.X, y-b.Min.Y) {
				out.SetGray(x, y, color.Gray{Y: Ink})
			}
		}
	}
	return out
}

// OtsuLevel returns the threshold that maximizes between-class variance
func OtsuLevel(g *image.Gray) uint8 {
	var hist [256]int
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[g.GrayAt(x, y).Y]++
		}
	}
	total := b.Dx() * b.Dy()

	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i * n)
	}

	var (
		sumBack    float64
		weightBack int
		best       float64
		level      uint8
	)
	for t := 0; t < 256; t++ {
		weightBack += hist[t]
		if weightBack == 0 {
			continue
		}
		weightFore := total - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(t * hist[t])
		meanBack := sumBack / float64(weightBack)
		meanFore := (sumAll - sumBack) / float64(weightFore)
		between := float64(weightBack) * float64(weightFore) * (meanBack - meanFore) * (meanBack - meanFore)
		if between > best {
			best = between
			level = uint8(t)
		}
	}
	return level
}

// localMean returns the mean of the (2r+1)² window around every pixel,
// clipped at the image edges, using a summed-area table.
func localMean(g *image.Gray, r int) []float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	integral := make([]int, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row int
		for x := 0; x < w; x++ {
			row += int(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + row
		}
	}

	mean := make([]float64, w*h)
	for y := 0; y < h; y++ {
		y0, y1 := max(y-r, 0), min(y+r+1, h)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-r, 0), min(x+r+1, w)
			sum := integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] - integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean[y*w+x] = float64(sum) / float64((y1-y0)*(x1-x0))
		}
	}
	return mean
}
