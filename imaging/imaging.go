// Package imaging converts the image shapes accepted at the application
// boundary into one canonical in-memory representation: a tightly packed
// 8-bit RGB pixel buffer.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
)

// Image is the canonical representation used by every component. Pixels are
// interleaved RGB, row major, no padding. An Image is never mutated after
// construction.
type Image struct {
	Width  int
	Height int
	Pix    []uint8 // 3*Width*Height bytes, RGB order
}

// UnsupportedInputError reports that a value handed to Normalize was not one
// of the accepted image shapes. Kind holds the Go type of the offending
// value.
type UnsupportedInputError struct {
	Kind string
}

func (e *UnsupportedInputError) Error() string {
	return fmt.Sprintf("unsupported image input type %s", e.Kind)
}

// Normalize accepts a file path, an encoded JPEG/PNG byte buffer, a decoded
// image.Image or an already canonical *Image and returns the canonical form.
// Any other value fails with *UnsupportedInputError.
func Normalize(src any) (*Image, error) {
	switch v := src.(type) {
	case string:
		return FromFile(v)
	case []byte:
		return FromBytes(v)
	case image.Image:
		return FromImage(v), nil
	case *Image:
		return v, nil
	default:
		return nil, &UnsupportedInputError{Kind: fmt.Sprintf("%T", src)}
	}
}

// FromFile reads and decodes the image at path. This is the only place the
// package touches the filesystem.
func FromFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", path, err)
	}
	return FromBytes(data)
}

// FromBytes decodes an encoded JPEG or PNG buffer.
func FromBytes(data []byte) (*Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return FromImage(img), nil
}

// FromImage converts any decoded image to canonical RGB.
func FromImage(img image.Image) *Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	out := &Image{Width: w, Height: h, Pix: make([]uint8, 3*w*h)}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out.Pix[i] = uint8(r >> 8)
			out.Pix[i+1] = uint8(g >> 8)
			out.Pix[i+2] = uint8(b >> 8)
			i += 3
		}
	}

	return out
}

// ToImage returns the canonical pixels as a stdlib image for encoding or
// further processing.
func (im *Image) ToImage() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, im.Width, im.Height))
	for p, i := 0, 0; i < len(im.Pix); i += 3 {
		out.Pix[p] = im.Pix[i]
		out.Pix[p+1] = im.Pix[i+1]
		out.Pix[p+2] = im.Pix[i+2]
		out.Pix[p+3] = 0xFF
		p += 4
	}
	return out
}

// EncodeJPEG encodes the image as a JPEG file in memory.
func (im *Image) EncodeJPEG() ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, im.ToImage(), &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// FitWithin scales the image down to fit inside maxW x maxH while keeping
// the aspect ratio. Images that already fit are returned unchanged.
func (im *Image) FitWithin(maxW, maxH int) *Image {
	if im.Width <= maxW && im.Height <= maxH {
		return im
	}
	resized := resize.Thumbnail(uint(maxW), uint(maxH), im.ToImage(), resize.Lanczos3)
	return FromImage(resized)
}

// Tensor resizes the image to size x size and returns normalized pixels in
// CHW order, the layout vision encoders expect. Each channel value is scaled
// to [0,1] then standardized with the per-channel mean and std.
func (im *Image) Tensor(size int, mean, std [3]float32) []float32 {
	resized := resize.Resize(uint(size), uint(size), im.ToImage(), resize.Lanczos3)
	canon := FromImage(resized)

	plane := size * size
	out := make([]float32, 3*plane)
	for p := 0; p < plane; p++ {
		for c := 0; c < 3; c++ {
			v := float32(canon.Pix[3*p+c]) / 255.0
			out[c*plane+p] = (v - mean[c]) / std[c]
		}
	}
	return out
}
