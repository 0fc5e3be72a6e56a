package processor

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

// ToNRGBA flattens img over black into an opaque NRGBA copy whose bounds
// start at the origin.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Darken scales every channel by factor.
func Darken(img image.Image, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp(float64(c.R) * factor),
			G: clamp(float64(c.G) * factor),
			B: clamp(float64(c.B) * factor),
			A: c.A,
		}
	})
}

// AutoContrast stretches each color channel so its darkest value becomes 0
// and its brightest 255.
func AutoContrast(img *image.NRGBA) *image.NRGBA {
	hist := histograms(img)
	var luts [3][256]uint8
	for ch := 0; ch < 3; ch++ {
		luts[ch] = autoContrastLUT(&hist[ch])
	}
	return applyLUTs(img, &luts)
}

// Equalize flattens the histogram of each color channel.
func Equalize(img *image.NRGBA) *image.NRGBA {
	hist := histograms(img)
	var luts [3][256]uint8
	for ch := 0; ch < 3; ch++ {
		luts[ch] = equalizeLUT(&hist[ch])
	}
	return applyLUTs(img, &luts)
}

// IsMostlyWhite samples border pixels every 20px, 5px inside the edges, and
// reports whether their mean brightness is above 60%.
func IsMostlyWhite(img *image.NRGBA) bool {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 5 || h <= 5 {
		return false
	}

	count := 1
	sum := 0
	add := func(x, y int) {
		i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
		sum += int(img.Pix[i]) + int(img.Pix[i+1]) + int(img.Pix[i+2])
		count++
	}
	for x := 0; x < w; x += 20 {
		add(x, 5)
		add(x, h-5)
	}
	for y := 0; y < h; y += 20 {
		add(5, y)
		add(w-5, y)
	}
	return 100*(float64(sum)/(255*3))/float64(count) > 60
}

// DarkenBorders fades each edge of img to black over size pixels, in place.
func DarkenBorders(img *image.NRGBA, size int) *image.NRGBA {
	if size <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	factors := make([]float64, size)
	for i := range factors {
		m := 256 - 256*float64(i)/float64(size)
		if m > 255 {
			m = 255
		}
		factors[i] = 1 - m/255
	}
	edge := func(pos, length int) float64 {
		f := 1.0
		if pos < size {
			f *= factors[pos]
		}
		if d := length - 1 - pos; d < size {
			f *= factors[d]
		}
		return f
	}

	for y := 0; y < h; y++ {
		fy := edge(y, h)
		for x := 0; x < w; x++ {
			f := fy * edge(x, w)
			if f == 1 {
				continue
			}
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			img.Pix[i] = uint8(float64(img.Pix[i]) * f)
			img.Pix[i+1] = uint8(float64(img.Pix[i+1]) * f)
			img.Pix[i+2] = uint8(float64(img.Pix[i+2]) * f)
		}
	}
	return img
}

// LuminanceMask is the auto-contrasted grayscale of img, as an alpha mask.
func LuminanceMask(img *image.NRGBA) *image.Alpha {
	b := img.Bounds()
	mask := image.NewAlpha(image.Rect(0, 0, b.Dx(), b.Dy()))
	var hist [256]int
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			l := luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
			mask.Pix[mask.PixOffset(x, y)] = l
			hist[l]++
		}
	}
	lut := autoContrastLUT(&hist)
	for i, v := range mask.Pix {
		mask.Pix[i] = lut[v]
	}
	return mask
}

// InvertedLuminanceMask is 255 minus the plain grayscale of img.
func InvertedLuminanceMask(img *image.NRGBA) *image.Alpha {
	b := img.Bounds()
	mask := image.NewAlpha(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			mask.Pix[mask.PixOffset(x, y)] = 255 - luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		}
	}
	return mask
}

func InvertMask(mask *image.Alpha) *image.Alpha {
	for i, v := range mask.Pix {
		mask.Pix[i] = 255 - v
	}
	return mask
}

// PasteMasked blends src onto dst at offset, weighting by mask. Parts
// falling outside dst are clipped.
func PasteMasked(dst *image.NRGBA, src image.Image, at image.Point, mask *image.Alpha) {
	sb := src.Bounds()
	r := image.Rectangle{Min: at, Max: at.Add(sb.Size())}
	draw.DrawMask(dst, r, src, sb.Min, mask, mask.Bounds().Min, draw.Over)
}

// Multiply combines two images of the same size channel by channel.
func Multiply(a, b *image.NRGBA) *image.NRGBA {
	out := imaging.Clone(a)
	bb := b.Bounds()
	for y := 0; y < out.Bounds().Dy() && y < bb.Dy(); y++ {
		for x := 0; x < out.Bounds().Dx() && x < bb.Dx(); x++ {
			i := out.PixOffset(x, y)
			j := b.PixOffset(bb.Min.X+x, bb.Min.Y+y)
			out.Pix[i] = uint8(int(out.Pix[i]) * int(b.Pix[j]) / 255)
			out.Pix[i+1] = uint8(int(out.Pix[i+1]) * int(b.Pix[j+1]) / 255)
			out.Pix[i+2] = uint8(int(out.Pix[i+2]) * int(b.Pix[j+2]) / 255)
		}
	}
	return out
}

var (
	embossKernel = [9]float64{-1, 0, 0, 0, 1, 0, 0, 0, 0}
	smoothKernel = [9]float64{1, 1, 1, 1, 5, 1, 1, 1, 1}
)

// Emboss multiplies img by its smoothed relief and equalizes the result.
// A positive blend mixes that much of the relief back in.
func Emboss(img *image.NRGBA, blend float64) *image.NRGBA {
	relief := imaging.Convolve3x3(img, embossKernel, &imaging.ConvolveOptions{Bias: 128})
	relief = imaging.Convolve3x3(relief, smoothKernel, &imaging.ConvolveOptions{Normalize: true})
	out := Equalize(Multiply(img, relief))
	if blend > 0 {
		out = imaging.Overlay(out, relief, image.Point{}, blend)
	}
	return out
}

func histograms(img *image.NRGBA) [3][256]int {
	var hist [3][256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := img.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			hist[0][img.Pix[i]]++
			hist[1][img.Pix[i+1]]++
			hist[2][img.Pix[i+2]]++
			i += 4
		}
	}
	return hist
}

func applyLUTs(img *image.NRGBA, luts *[3][256]uint8) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		out.Pix[i] = luts[0][out.Pix[i]]
		out.Pix[i+1] = luts[1][out.Pix[i+1]]
		out.Pix[i+2] = luts[2][out.Pix[i+2]]
	}
	return out
}

func autoContrastLUT(h *[256]int) [256]uint8 {
	var lut [256]uint8
	lo, hi := 0, 255
	for lo < 256 && h[lo] == 0 {
		lo++
	}
	for hi >= 0 && h[hi] == 0 {
		hi--
	}
	if hi <= lo {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}
	scale := 255.0 / float64(hi-lo)
	offset := -float64(lo) * scale
	for i := range lut {
		lut[i] = clamp(float64(i)*scale + offset)
	}
	return lut
}

func equalizeLUT(h *[256]int) [256]uint8 {
	var lut [256]uint8
	for i := range lut {
		lut[i] = uint8(i)
	}

	total, last, nonZero := 0, 0, 0
	for _, v := range h {
		if v > 0 {
			total += v
			last = v
			nonZero++
		}
	}
	if nonZero <= 1 {
		return lut
	}
	step := (total - last) / 255
	if step == 0 {
		return lut
	}
	n := step / 2
	for i := range lut {
		v := n / step
		if v > 255 {
			v = 255
		}
		lut[i] = uint8(v)
		n += h[i]
	}
	return lut
}

func luma(r, g, b uint8) uint8 {
	return uint8((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
}

func clamp(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
