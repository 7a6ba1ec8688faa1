package captcha

import (
	"image"

	"golang.org/x/image/draw"
)

// variants returns the preprocessed copies of src tried by the enhanced pass,
// cheapest first.
func variants(src image.Image) []image.Image {
	gray := toGray(src)
	return []image.Image{
		gray,
		binarize(gray, otsuThreshold(gray)),
		invert(gray),
		upscale(gray, 2),
	}
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// otsuThreshold picks the gray level that best separates foreground from background.
func otsuThreshold(g *image.Gray) uint8 {
	var hist [256]int
	for _, p := range g.Pix {
		hist[p]++
	}
	total := len(g.Pix)
	if total == 0 {
		return 128
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}

	var sumB, best float64
	var weightB int
	threshold := uint8(128)
	for i, n := range hist {
		weightB += n
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(i * n)
		meanB := sumB / float64(weightB)
		meanF := (sum - sumB) / float64(weightF)
		between := float64(weightB) * float64(weightF) * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			threshold = uint8(i)
		}
	}
	return threshold
}

func binarize(g *image.Gray, threshold uint8) *image.Gray {
	dst := image.NewGray(g.Bounds())
	for i, p := range g.Pix {
		if p > threshold {
			dst.Pix[i] = 255
		}
	}
	return dst
}

func invert(g *image.Gray) *image.Gray {
	dst := image.NewGray(g.Bounds())
	for i, p := range g.Pix {
		dst.Pix[i] = 255 - p
	}
	return dst
}

func upscale(g *image.Gray, factor int) *image.Gray {
	b := g.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), g, b, draw.Src, nil)
	return dst
}

