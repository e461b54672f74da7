package thumbs

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/maauso/clipstitch/internal/media"
)

const (
	placeholderSize = 100
	discDiameter    = 30
)

var (
	placeholderBackground = color.NRGBA{R: 128, G: 128, B: 128, A: 77}
	placeholderGlyph      = color.NRGBA{R: 255, G: 255, B: 255, A: 153}
)

// Placeholder is the stand-in for a frame that could not be sampled: a
// translucent grey square with a centred white disc and the source kind
// written underneath. The same kind always yields the same pixels.
func Placeholder(kind media.Kind) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, placeholderSize, placeholderSize))
	disc := over(placeholderGlyph, placeholderBackground)

	c := float64(placeholderSize) / 2
	r := float64(discDiameter) / 2
	for y := 0; y < placeholderSize; y++ {
		for x := 0; x < placeholderSize; x++ {
			dx, dy := float64(x)+0.5-c, float64(y)+0.5-c
			if dx*dx+dy*dy <= r*r {
				img.SetNRGBA(x, y, disc)
			} else {
				img.SetNRGBA(x, y, placeholderBackground)
			}
		}
	}

	if label := string(kind); label != "" {
		face := basicfont.Face7x13
		d := &font.Drawer{Dst: img, Src: image.NewUniform(placeholderGlyph), Face: face}
		w := d.MeasureString(label).Ceil()
		d.Dot = fixed.P((placeholderSize-w)/2, int(c+r)+face.Ascent+4)
		d.DrawString(label)
	}
	return img
}

// over composites src on top of dst.
func over(src, dst color.NRGBA) color.NRGBA {
	px := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	px.SetNRGBA(0, 0, dst)
	draw.Draw(px, px.Bounds(), image.NewUniform(src), image.Point{}, draw.Over)
	return px.NRGBAAt(0, 0)
}
