package inference

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

var (
	imageNetMean = [3]float32{0.485, 0.456, 0.406}
	imageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// DecodeImage reads an image from disk, applying any EXIF orientation
func DecodeImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("image %s has no pixels", path)
	}
	return img, nil
}

// Preprocess resizes img to width x height, drops any alpha channel and
// returns an ImageNet-normalised tensor in NCHW layout with batch size 1.
func Preprocess(img image.Image, width, height int) []float32 {
	// Clone normalises every source format to non-premultiplied RGBA
	resized := imaging.Clone(resize.Resize(uint(width), uint(height), imaging.Clone(img), resize.Bilinear))

	plane := width * height
	tensor := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+3]
			idx := y*width + x
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255.0
				tensor[c*plane+idx] = (v - imageNetMean[c]) / imageNetStd[c]
			}
		}
	}

	return tensor
}
