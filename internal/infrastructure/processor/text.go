package processor

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	PlaceholderText = "Please wait while the first images are being downloaded..."
	LogoText        = "gobbler"

	glyphWidth  = 7
	glyphHeight = 13
)

// TextSize is the pixel size of text drawn with DrawText at scale.
func TextSize(text string, scale int) (int, int) {
	return len(text) * glyphWidth * scale, glyphHeight * scale
}

// DrawText renders text with the 7x13 bitmap font, each font pixel blown up
// to a scale x scale block. The top-left corner is at (x, y).
func DrawText(dst *image.NRGBA, text string, x, y, scale int, col color.Color) {
	if scale < 1 {
		scale = 1
	}
	w, h := TextSize(text, 1)
	glyphs := image.NewAlpha(image.Rect(0, 0, w, h))

	drawer := &font.Drawer{
		Dst:  glyphs,
		Src:  image.Opaque,
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: 0, Y: fixed.I(basicfont.Face7x13.Ascent)},
	}
	drawer.DrawString(text)

	c := color.NRGBAModel.Convert(col).(color.NRGBA)
	bounds := dst.Bounds()
	for sy := 0; sy < h; sy++ {
		for sx := 0; sx < w; sx++ {
			if glyphs.AlphaAt(sx, sy).A == 0 {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					p := image.Pt(x+sx*scale+dx, y+sy*scale+dy)
					if p.In(bounds) {
						dst.SetNRGBA(p.X, p.Y, c)
					}
				}
			}
		}
	}
}

// Placeholder is the black canvas shown before the first images arrive.
func Placeholder(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	DrawText(img, PlaceholderText, 30, 30, 1, color.NRGBA{R: 230, G: 230, B: 230, A: 255})
	return img
}

// DrawLogo stamps the logo text into the lower right corner.
func DrawLogo(img *image.NRGBA) {
	b := img.Bounds()
	w, h := TextSize(LogoText, 1)
	DrawText(img, LogoText, b.Max.X-w-4, b.Max.Y-h-2, 1, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
}
