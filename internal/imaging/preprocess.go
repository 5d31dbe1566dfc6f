package imaging

import (
	"fmt"
	"image"
	"sort"
)

// Preprocess describes the cleanup applied to a raster before OCR
type Preprocess struct {
	Grayscale bool
	// Denoise is the median filter width, 0 to skip
	Denoise int
	// Blur is the Gaussian kernel width, 0 to skip
	Blur int
	// Threshold binarizes the image unless its Method is MethodNone
	Threshold Binarization
	// Dilate grows ink by this many pixels after thresholding
	Dilate int
}

var presets = map[string]Preprocess{
	"raw": {
		Threshold: Binarization{Method: MethodNone},
	},
	"binary": {
		Grayscale: true,
		Threshold: Binarization{Method: MethodGlobal, Level: 128},
	},
	"otsu": {
		Grayscale: true,
		Blur:      5,
		Threshold: Binarization{Method: MethodOtsu},
	},
	"clean": {
		Grayscale: true,
		Denoise:   5,
		Threshold: Binarization{Method: MethodOtsu},
		Dilate:    1,
	},
}

// Preset returns a named preprocessing recipe
func Preset(name string) (Preprocess, error) {
	p, ok := presets[name]
	if !ok {
		return Preprocess{}, fmt.Errorf("unknown preprocess preset %q (available: %v)", name, PresetNames())
	}
	return p, nil
}

// PresetNames lists the preset names in sorted order
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply runs the recipe. Thresholded output is black ink on white paper.
func (p Preprocess) Apply(img image.Image) (image.Image, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	thresholded := p.Threshold.Method != MethodNone && p.Threshold.Method != ""
	if !p.Grayscale && !thresholded && p.Denoise == 0 && p.Blur == 0 {
		return img, nil
	}

	g := Grayscale(img)
	g = MedianBlur(g, p.Denoise)
	g = GaussianBlur(g, p.Blur)
	if !thresholded {
		return g, nil
	}

	mask, err := Binarize(g, p.Threshold)
	if err != nil {
		return nil, fmt.Errorf("binarizing: %w", err)
	}
	mask = Dilate(mask, p.Dilate, p.Dilate)
	return ToPaper(mask), nil
}
