package realtime

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/vp8"
)

// ErrInterframe is returned for VP8 frames that depend on earlier frames.
// Only key frames can be decoded standalone.
var ErrInterframe = errors.New("vp8: interframe")

type VP8Decoder struct {
	mu  sync.Mutex
	dec *vp8.Decoder
}

func NewVP8Decoder() *VP8Decoder {
	return &VP8Decoder{dec: vp8.NewDecoder()}
}

func IsKeyframe(data []byte) bool {
	return len(data) > 0 && data[0]&0x01 == 0
}

func (d *VP8Decoder) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame data")
	}
	if !IsKeyframe(data) {
		return nil, ErrInterframe
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.dec.Init(bytes.NewReader(data), len(data))

	fh, err := d.dec.DecodeFrameHeader()
	if err != nil {
		return nil, fmt.Errorf("decode frame header: %w", err)
	}
	if fh.Width == 0 || fh.Height == 0 {
		return nil, fmt.Errorf("invalid frame dimensions: %dx%d", fh.Width, fh.Height)
	}

	img, err := d.dec.DecodeFrame()
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}
