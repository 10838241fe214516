package service

import (
	"bytes"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ImageSizeFunc reports the pixel dimensions of an encoded image.
type ImageSizeFunc func(data []byte) (width, height int64, err error)

// DecodeImageSize reads just the image header to get dimensions.
func DecodeImageSize(data []byte) (int64, int64, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return int64(cfg.Width), int64(cfg.Height), nil
}
