package face

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	// ErrNoFace is returned when no face could be found in an image.
	ErrNoFace = errors.New("no face detected")
	// ErrInvalidImage is returned when an image payload cannot be decoded.
	ErrInvalidImage = errors.New("invalid image data")
)

// DecodeDataURL decodes a base64 image. Both raw base64 and data URLs
// ("data:image/jpeg;base64,...") are accepted.
func DecodeDataURL(payload string) (image.Image, error) {
	if i := strings.IndexByte(payload, ','); i >= 0 {
		payload = payload[i+1:]
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrInvalidImage
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// DecodeAll decodes every payload and drops the ones that fail.
func DecodeAll(payloads []string) []image.Image {
	out := make([]image.Image, 0, len(payloads))
	for _, p := range payloads {
		if img, err := DecodeDataURL(p); err == nil {
			out = append(out, img)
		}
	}
	return out
}

// ToGray converts img to an 8-bit grayscale image anchored at the origin.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Crop copies the region r of gray into a new image anchored at the origin.
func Crop(gray *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(gray.Bounds())
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), gray, r.Min, draw.Src)
	return dst
}
