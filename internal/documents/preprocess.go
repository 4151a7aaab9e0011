package documents

import (
	"image"
	"image/draw"
)

// fallbackThreshold binarizes pages whose histogram gives Otsu nothing to split
const fallbackThreshold = 150

// toGray converts any image to 8-bit grayscale
func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)
	return gray
}

// otsuThreshold picks the level that maximises between-class variance.
// ok is false when every pixel has the same value.
func otsuThreshold(img *image.Gray) (level uint8, ok bool) {
	var hist [256]int
	for _, p := range img.Pix {
		hist[p]++
	}
	total := len(img.Pix)
	if total == 0 {
		return 0, false
	}

	var sum float64
	distinct := 0
	for i, n := range hist {
		sum += float64(i * n)
		if n > 0 {
			distinct++
		}
	}
	if distinct < 2 {
		return 0, false
	}

	var sumB, best float64
	wB := 0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = uint8(t)
		}
	}
	return level, true
}

// binarize maps pixels above the threshold to white and the rest to black.
// The threshold is Otsu's level, or fallbackThreshold for flat images.
func binarize(img *image.Gray) *image.Gray {
	level, ok := otsuThreshold(img)
	if !ok {
		level = fallbackThreshold
	}
	out := image.NewGray(img.Rect)
	for i, p := range img.Pix {
		if p > level {
			out.Pix[i] = 255
		}
	}
	return out
}

// medianFilter3 applies a 3x3 median filter with clamped edges
func medianFilter3(img *image.Gray) *image.Gray {
	b := img.Rect
	out := image.NewGray(b)
	var win [9]uint8
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				yy := clamp(y+dy, b.Min.Y, b.Max.Y-1)
				for dx := -1; dx <= 1; dx++ {
					xx := clamp(x+dx, b.Min.X, b.Max.X-1)
					win[n] = img.GrayAt(xx, yy).Y
					n++
				}
			}
			// insertion sort; nine elements
			for i := 1; i < len(win); i++ {
				for j := i; j > 0 && win[j-1] > win[j]; j-- {
					win[j-1], win[j] = win[j], win[j-1]
				}
			}
			out.Pix[out.PixOffset(x, y)] = win[4]
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PrepareForOCR runs grayscale, binarization and denoising on a rendered page
func PrepareForOCR(src image.Image) *image.Gray {
	return medianFilter3(binarize(toGray(src)))
}
