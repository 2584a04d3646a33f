// Package frames feeds camera frames through a single-slot decoder and the
// scan gate.
//
// Frames are sampled, never queued: while a decode is in flight every new
// frame is dropped. A code therefore has to stay in view a little longer
// than one frame interval to be read, which is cheaper than letting decode
// latency pile up behind a queue.
package frames

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"time"
)

type PixelFormat string

const (
	FormatJPEG PixelFormat = "jpeg"
	FormatPNG  PixelFormat = "png"
	FormatGray PixelFormat = "gray" // 8-bit luminance, stride == width
	FormatNV21 PixelFormat = "nv21" // Y plane followed by interleaved VU
	FormatRGBA PixelFormat = "rgba"
)

// Frame is one camera frame. Data is shared, not copied; nobody may modify
// it after the frame has been emitted.
type Frame struct {
	Data     []byte
	Width    int
	Height   int
	Format   PixelFormat
	Rotation int // clockwise degrees to bring the sensor image upright

	Timestamp time.Time
	Seq       uint64
}

// Source emits frames until ctx is done or Stop is called. The returned
// channel is closed when the source ends.
type Source interface {
	Start(ctx context.Context) (<-chan Frame, error)
	Stop() error
}

// Decoder extracts at most one code from a frame. Implementations are
// called from one goroutine at a time.
type Decoder interface {
	Decode(f Frame) (string, bool)
}

// Image converts the frame into an upright image.
func (f Frame) Image() (image.Image, error) {
	img, err := f.raw()
	if err != nil {
		return nil, err
	}
	return Rotate(img, f.Rotation), nil
}

func (f Frame) raw() (image.Image, error) {
	switch f.Format {
	case FormatJPEG, FormatPNG, "":
		img, _, err := image.Decode(bytes.NewReader(f.Data))
		if err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", f.Format, err)
		}
		return img, nil
	case FormatGray, FormatNV21:
		n := f.Width * f.Height
		if f.Width <= 0 || f.Height <= 0 || len(f.Data) < n {
			return nil, fmt.Errorf("%s frame %dx%d: have %d bytes", f.Format, f.Width, f.Height, len(f.Data))
		}
		return &image.Gray{Pix: f.Data[:n], Stride: f.Width, Rect: image.Rect(0, 0, f.Width, f.Height)}, nil
	case FormatRGBA:
		n := f.Width * f.Height * 4
		if f.Width <= 0 || f.Height <= 0 || len(f.Data) < n {
			return nil, fmt.Errorf("rgba frame %dx%d: have %d bytes", f.Width, f.Height, len(f.Data))
		}
		return &image.RGBA{Pix: f.Data[:n], Stride: f.Width * 4, Rect: image.Rect(0, 0, f.Width, f.Height)}, nil
	default:
		return nil, fmt.Errorf("unsupported pixel format %q", f.Format)
	}
}

// Rotate turns img clockwise by deg (multiples of 90). The result is a
// grayscale copy unless deg is 0.
func Rotate(img image.Image, deg int) image.Image {
	deg = ((deg % 360) + 360) % 360
	if deg == 0 || deg%90 != 0 {
		return img
	}
	src := toGray(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()

	var dst *image.Gray
	if deg == 180 {
		dst = image.NewGray(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewGray(image.Rect(0, 0, h, w))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := src.Pix[y*src.Stride+x]
			switch deg {
			case 90:
				dst.Pix[x*dst.Stride+(h-1-y)] = v
			case 180:
				dst.Pix[(h-1-y)*dst.Stride+(w-1-x)] = v
			case 270:
				dst.Pix[(w-1-x)*dst.Stride+y] = v
			}
		}
	}
	return dst
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) && g.Stride == b.Dx() {
		return g
	}
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Rect, img, b.Min, draw.Src)
	return g
}
