package matrix

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/teslashibe/go-cvstream/pkg/engine"
)

// ArrayFromImage converts img into an 8-bit array with the engine's channel
// order: 1 = gray, 3 = BGR, 4 = BGRA.
func ArrayFromImage(img image.Image, channels int) (Array, error) {
	switch channels {
	case 1, 3, 4:
	default:
		return nil, fmt.Errorf("%w: cannot build %d-channel array from an image", ErrShapeMismatch, channels)
	}

	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrShapeMismatch)
	}

	arr := make(Array, b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := make([][]float64, b.Dx())
		for x := 0; x < b.Dx(); x++ {
			i := nrgba.PixOffset(x+b.Min.X, y+b.Min.Y)
			r, g, bl, a := nrgba.Pix[i], nrgba.Pix[i+1], nrgba.Pix[i+2], nrgba.Pix[i+3]

			switch channels {
			case 1:
				// ITU-R 601 luma, as used by image/color.GrayModel.
				lum := (19595*uint32(r) + 38470*uint32(g) + 7471*uint32(bl) + 1<<15) >> 16
				row[x] = []float64{float64(lum)}
			case 3:
				row[x] = []float64{float64(bl), float64(g), float64(r)}
			case 4:
				row[x] = []float64{float64(bl), float64(g), float64(r), float64(a)}
			}
		}
		arr[y] = row
	}
	return arr, nil
}

// FromImage builds a CV_8UC<channels> matrix from img.
func (c *Codec) FromImage(img image.Image, channels int) (engine.Matrix, error) {
	label := fmt.Sprintf("CV_8UC%d", channels)
	tag, ok := c.types.Lookup(label)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedType, label)
	}

	arr, err := ArrayFromImage(img, channels)
	if err != nil {
		return nil, err
	}
	return c.FromArray(arr, tag.Code)
}
