// Package photo normalizes the picture shown for the rented asset.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

// MaxUploadSize bounds the raw upload accepted by Normalize.
const MaxUploadSize = 5 << 20

// MaxSide is the longest edge of a stored photo, in pixels.
const MaxSide = 1024

const jpegQuality = 85

// ErrUnsupported is returned for anything that is not a JPEG or PNG.
var ErrUnsupported = errors.New("photo: only JPEG and PNG are accepted")

// ErrTooLarge is returned when the upload exceeds MaxUploadSize.
var ErrTooLarge = errors.New("photo: upload too large")

// Photo is an encoded image ready to store.
type Photo struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Normalize sniffs the upload, shrinks it to fit MaxSide and re-encodes it.
// Opaque images become JPEG. Images with transparency stay PNG.
func Normalize(r io.Reader) (*Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	if len(data) > MaxUploadSize {
		return nil, ErrTooLarge
	}

	// Client-supplied content types are ignored.
	switch http.DetectContentType(data) {
	case "image/jpeg", "image/png":
	default:
		return nil, ErrUnsupported
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding photo: %w", err)
	}
	img = fit(img, MaxSide)

	var buf bytes.Buffer
	p := &Photo{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	if opaque(img) {
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
		p.MIME = "image/jpeg"
	} else {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
		p.MIME = "image/png"
	}
	p.Data = buf.Bytes()
	return p, nil
}

// fit scales img down so its longest side is at most side pixels.
func fit(img image.Image, side int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= side && h <= side {
		return img
	}

	nw, nh := side, side
	if w > h {
		nh = max(1, h*side/w)
	} else {
		nw = max(1, w*side/h)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
