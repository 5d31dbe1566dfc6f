package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	xdraw "golang.org/x/image/draw"
)

// Ink and Paper are the two values of a binary mask
const (
	Ink   uint8 = 255
	Paper uint8 = 0
)

// Grayscale converts img to 8-bit luma with its origin moved to (0,0)
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	if b.Empty() {
		return image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	return fromRGBA(effect.GrayscaleWithWeights(img, 0.299, 0.587, 0.114), b, image.Point{})
}

// MedianBlur replaces each pixel with the median of its k×k neighborhood.
// Edges are clamped. k is rounded up to an odd number.
func MedianBlur(g *image.Gray, k int) *image.Gray {
	if k < 2 {
		return g
	}
	return fromRGBA(effect.Median(g, float64(k/2)), g.Bounds(), g.Bounds().Min)
}

// GaussianBlur smooths with a separable Gaussian kernel of width k
func GaussianBlur(g *image.Gray, k int) *image.Gray {
	if k < 2 {
		return g
	}
	return fromRGBA(blur.Gaussian(g, float64(k/2)), g.Bounds(), g.Bounds().Min)
}

// fromRGBA copies the red channel of the b region of src into a gray image
// whose bounds start at origin. Filtered gray images carry equal channels.
func fromRGBA(src *image.RGBA, b image.Rectangle, origin image.Point) *image.Gray {
	out := image.NewGray(image.Rectangle{Min: origin, Max: origin.Add(b.Size())})
	for y := 0; y < b.Dy(); y++ {
		si := src.PixOffset(b.Min.X, b.Min.Y+y)
		di := out.PixOffset(origin.X, origin.Y+y)
		for x := 0; x < b.Dx(); x++ {
			out.Pix[di+x] = src.Pix[si+4*x]
		}
	}
	return out
}

// Dilate grows ink by rx pixels horizontally and ry pixels vertically
func Dilate(mask *image.Gray, rx, ry int) *image.Gray {
	if rx <= 0 && ry <= 0 {
		return mask
	}
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	ink := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ink[y*w+x] = mask.GrayAt(b.Min.X+x, b.Min.Y+y).Y == Ink
		}
	}
	if rx > 0 {
		ink = spread(ink, w, h, 1, w, rx)
	}
	if ry > 0 {
		ink = spread(ink, h, w, w, 1, ry)
	}

	out := image.NewGray(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ink[y*w+x] {
				out.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: Ink})
			}
		}
	}
	return out
}

// spread dilates n lines of length size by r along one axis using a running
// count. step moves along a line and stride moves between lines.
func spread(ink []bool, size, n, step, stride, r int) []bool {
	out := make([]bool, len(ink))
	prefix := make([]int, size+1)
	for line := 0; line < n; line++ {
		base := line * stride
		for i := 0; i < size; i++ {
			prefix[i+1] = prefix[i]
			if ink[base+i*step] {
				prefix[i+1]++
			}
		}
		for i := 0; i < size; i++ {
			lo, hi := max(i-r, 0), min(i+r+1, size)
			out[base+i*step] = prefix[hi]-prefix[lo] > 0
		}
	}
	return out
}

// ToPaper renders a mask as black ink on white paper for OCR engines
func ToPaper(mask *image.Gray) *image.Gray {
	b := mask.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.GrayAt(x, y).Y == Ink {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of img inside r. Images that cannot share pixels
// are copied.
func Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}

// Upscale enlarges img so its height is at least minHeight. Images already
// tall enough are returned unchanged.
func Upscale(img image.Image, minHeight int) image.Image {
	b := img.Bounds()
	if b.Dy() == 0 || b.Dy() >= minHeight {
		return img
	}
	scale := float64(minHeight) / float64(b.Dy())
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(b.Dx())*scale+0.5), minHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
