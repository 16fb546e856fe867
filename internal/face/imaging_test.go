package face

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodeDataURL(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	src.Set(1, 1, color.RGBA{R: 255, A: 255})
	b64 := encodePNG(t, src)

	for name, payload := range map[string]string{
		"raw":      b64,
		"data url": "data:image/png;base64," + b64,
	} {
		t.Run(name, func(t *testing.T) {
			img, err := DecodeDataURL(payload)
			require.NoError(t, err)
			assert.Equal(t, 4, img.Bounds().Dx())
			assert.Equal(t, 3, img.Bounds().Dy())
		})
	}
}

func TestDecodeDataURLInvalid(t *testing.T) {
	for _, payload := range []string{"", "data:image/png;base64,", "!!!not-base64", base64.StdEncoding.EncodeToString([]byte("plain text"))} {
		_, err := DecodeDataURL(payload)
		assert.ErrorIs(t, err, ErrInvalidImage, payload)
	}
}

func TestDecodeAllDropsBrokenPayloads(t *testing.T) {
	good := encodePNG(t, image.NewGray(image.Rect(0, 0, 2, 2)))
	imgs := DecodeAll([]string{good, "garbage", good})
	assert.Len(t, imgs, 2)
}

func TestToGrayAnchorsAtOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 9, 8))
	src.Set(5, 5, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	g := ToGray(src)
	assert.Equal(t, image.Rect(0, 0, 4, 3), g.Bounds())
	assert.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), g.GrayAt(1, 1).Y)
}

func TestCropClipsToBounds(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 10, 10))
	g.SetGray(9, 9, color.Gray{Y: 7})

	c := Crop(g, image.Rect(5, 5, 20, 20))
	assert.Equal(t, image.Rect(0, 0, 5, 5), c.Bounds())
	assert.Equal(t, uint8(7), c.GrayAt(4, 4).Y)
}
