// Package imaging prepares user-supplied sketches and reference photos
// for transmission: downscale to a bounded edge length, recompress, and
// iterate until the payload fits a byte budget.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrImageProcessing marks a decode or encode failure. Callers must treat
// it as non-retryable without user intervention (a different image).
var ErrImageProcessing = errors.New("image processing failed")

// OutputMIMEType is the MIME type of all preprocessor output.
const OutputMIMEType = "image/jpeg"

const (
	qualityFloor   = 40
	qualityStep    = 10
	dimensionFloor = 512
)

type Options struct {
	// MaxDimension bounds the longest edge in pixels. Images are never
	// upscaled.
	MaxDimension int
	// Quality is the starting JPEG quality (1-100).
	Quality int
	// MaxBytes is the target byte budget for the encoded output.
	MaxBytes int
}

func DefaultOptions() Options {
	return Options{MaxDimension: 1536, Quality: 85, MaxBytes: 1 << 20}
}

// Preprocess resizes and recompresses raw image bytes to fit
// opts.MaxBytes, preserving aspect ratio. Best effort: quality degrades
// first, then the maximum dimension, until either the budget is met or
// both floors are reached, in which case the smallest encoding produced
// is returned. The input is never mutated.
func Preprocess(raw []byte, opts Options) ([]byte, error) {
	if opts.MaxDimension <= 0 || opts.Quality <= 0 || opts.MaxBytes <= 0 {
		def := DefaultOptions()
		if opts.MaxDimension <= 0 {
			opts.MaxDimension = def.MaxDimension
		}
		if opts.Quality <= 0 || opts.Quality > 100 {
			opts.Quality = def.Quality
		}
		if opts.MaxBytes <= 0 {
			opts.MaxBytes = def.MaxBytes
		}
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrImageProcessing, err)
	}

	dim := opts.MaxDimension
	quality := opts.Quality

	var best []byte
	for {
		out, err := encodeScaled(src, dim, quality)
		if err != nil {
			return nil, err
		}
		if best == nil || len(out) < len(best) {
			best = out
		}
		if len(out) <= opts.MaxBytes {
			return out, nil
		}
		if quality-qualityStep >= qualityFloor {
			quality -= qualityStep
			continue
		}
		next := dim * 3 / 4
		if next >= dimensionFloor {
			dim = next
			continue
		}
		// Both floors reached; return the smallest encoding we managed.
		return best, nil
	}
}

func encodeScaled(src image.Image, maxDim, quality int) ([]byte, error) {
	scaled := scaleDown(src, maxDim)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: encode jpeg: %v", ErrImageProcessing, err)
	}
	return buf.Bytes(), nil
}

// scaleDown returns src scaled so its longest edge is at most maxDim,
// preserving aspect ratio. Images already within bounds pass through.
func scaleDown(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxDim {
		return src
	}

	scale := float64(maxDim) / float64(longest)
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
