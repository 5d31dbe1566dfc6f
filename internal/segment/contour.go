package segment

import (
	"image"
	"sort"

	"github.com/zombor/invoice-extract/internal/imaging"
)

// Contour is the bounding box of one outer connected ink component
type Contour struct {
	Rect image.Rectangle
	// Area is the bounding-box area in pixels
	Area int
}

// FindContours labels 8-connected ink components of mask in raster order of
// their first pixel and returns the outer ones. A component whose box lies
// inside another component's box is treated as a hole child and dropped.
// Rectangles are in the mask's coordinate space.
func FindContours(mask *image.Gray) []Contour {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	seen := make([]bool, w*h)
	var (
		boxes []image.Rectangle
		stack []int
	)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if seen[i] || mask.GrayAt(b.Min.X+x, b.Min.Y+y).Y != imaging.Ink {
				continue
			}
			seen[i] = true
			box := image.Rect(x, y, x+1, y+1)
			stack = append(stack[:0], i)
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				px, py := p%w, p/w
				box = box.Union(image.Rect(px, py, px+1, py+1))
				for dy := -1; dy <= 1; dy++ {
					ny := py + dy
					if ny < 0 || ny >= h {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						nx := px + dx
						if nx < 0 || nx >= w {
							continue
						}
						n := ny*w + nx
						if seen[n] || mask.GrayAt(b.Min.X+nx, b.Min.Y+ny).Y != imaging.Ink {
							continue
						}
						seen[n] = true
						stack = append(stack, n)
					}
				}
			}
			boxes = append(boxes, box.Add(b.Min))
		}
	}

	contours := make([]Contour, 0, len(boxes))
	for i, r := range boxes {
		if nested(i, r, boxes) {
			continue
		}
		contours = append(contours, Contour{Rect: r, Area: r.Dx() * r.Dy()})
	}
	return contours
}

// nested reports whether box i lies inside some other box. Of two identical
// boxes the earlier one is kept.
func nested(i int, r image.Rectangle, boxes []image.Rectangle) bool {
	for j, o := range boxes {
		if j == i || !r.In(o) {
			continue
		}
		if r == o && j > i {
			continue
		}
		return true
	}
	return false
}

// FilterAndOrder keeps contours with area strictly greater than minArea. With
// sortByArea the survivors are stably ordered by area, largest first;
// otherwise discovery order is kept.
func FilterAndOrder(contours []Contour, minArea int, sortByArea bool) []Contour {
	kept := make([]Contour, 0, len(contours))
	for _, c := range contours {
		if c.Area > minArea {
			kept = append(kept, c)
		}
	}
	if sortByArea {
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].Area > kept[j].Area })
	}
	return kept
}
