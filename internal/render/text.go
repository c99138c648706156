package render

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	textColor   = color.RGBA{R: 32, G: 32, B: 32, A: 255}
	mutedColor  = color.RGBA{R: 140, G: 140, B: 140, A: 255}
	borderColor = color.RGBA{R: 210, G: 210, B: 210, A: 255}
	blankColor  = color.RGBA{R: 238, G: 238, B: 238, A: 255}
)

// drawTextCentered draws s centered horizontally in rect, on the vertical
// middle of rect, using the fixed 7x13 face.
func drawTextCentered(dst draw.Image, rect image.Rectangle, s string, col color.Color) {
	face := basicfont.Face7x13
	dr := &font.Drawer{Dst: dst, Src: image.NewUniform(col), Face: face}
	tw := dr.MeasureString(s).Ceil()
	x := rect.Min.X + (rect.Dx()-tw)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	ascent := face.Metrics().Ascent.Ceil()
	y := rect.Min.Y + (rect.Dy()+ascent)/2
	dr.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	dr.DrawString(s)
}

// fill paints rect with a solid color.
func fill(dst draw.Image, rect image.Rectangle, col color.Color) {
	draw.Draw(dst, rect, image.NewUniform(col), image.Point{}, draw.Src)
}

// outline draws a one-pixel border just inside rect.
func outline(dst draw.Image, rect image.Rectangle, col color.Color) {
	fill(dst, image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+1), col)
	fill(dst, image.Rect(rect.Min.X, rect.Max.Y-1, rect.Max.X, rect.Max.Y), col)
	fill(dst, image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+1, rect.Max.Y), col)
	fill(dst, image.Rect(rect.Max.X-1, rect.Min.Y, rect.Max.X, rect.Max.Y), col)
}

// blank returns a flat panel used when drawing a plot failed.
func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, img.Bounds(), blankColor)
	return img
}

// drawImage copies src into rect of dst.
func drawImage(dst draw.Image, rect image.Rectangle, src image.Image) {
	draw.Draw(dst, rect, src, src.Bounds().Min, draw.Src)
}
