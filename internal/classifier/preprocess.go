package classifier

import (
	"bytes"
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// InputSize is the square edge, in pixels, the model expects.
const InputSize = 128

// Preprocess decodes an image, resizes it to InputSize×InputSize and returns an
// NHWC float32 RGB tensor scaled to [0,1] together with the original dimensions.
func Preprocess(data []byte) ([]float32, int, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, 0, 0, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	// Resize always yields NRGBA, so alpha is dropped and grayscale is expanded below.
	resized := imaging.Resize(img, InputSize, InputSize, imaging.CatmullRom)

	tensor := make([]float32, InputSize*InputSize*3)
	for y := 0; y < InputSize; y++ {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+InputSize*4]
		for x := 0; x < InputSize; x++ {
			dst := (y*InputSize + x) * 3
			src := x * 4
			tensor[dst] = float32(row[src]) / 255
			tensor[dst+1] = float32(row[src+1]) / 255
			tensor[dst+2] = float32(row[src+2]) / 255
		}
	}
	return tensor, width, height, nil
}
