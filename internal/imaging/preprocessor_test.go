package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"
)

// noisyImage is hard to compress, which forces the degradation loop.
func noisyImage(w, h int) image.Image {
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	return img
}

func flatImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{200, 180, 160, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, raw []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
	return img
}

func TestPreprocess_SmallImagePassesUnscaled(t *testing.T) {
	raw := encodePNG(t, flatImage(400, 300))
	out, err := Preprocess(raw, Options{MaxDimension: 1536, Quality: 85, MaxBytes: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	img := decodeJPEG(t, out)
	if img.Bounds().Dx() != 400 || img.Bounds().Dy() != 300 {
		t.Errorf("small image was rescaled to %v", img.Bounds())
	}
	if len(out) > 1<<20 {
		t.Errorf("output exceeds budget: %d bytes", len(out))
	}
}

func TestPreprocess_DownscalesLargeImage(t *testing.T) {
	raw := encodePNG(t, flatImage(3000, 1500))
	out, err := Preprocess(raw, Options{MaxDimension: 1536, Quality: 85, MaxBytes: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	img := decodeJPEG(t, out)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w > 1536 || h > 1536 {
		t.Errorf("longest edge exceeds bound: %dx%d", w, h)
	}
	// Aspect ratio is preserved (2:1 within rounding).
	if w != 1536 || h < 766 || h > 770 {
		t.Errorf("aspect ratio not preserved: %dx%d", w, h)
	}
}

func TestPreprocess_DegradesWhenOverBudget(t *testing.T) {
	raw := encodePNG(t, noisyImage(1024, 1024))

	loose, err := Preprocess(raw, Options{MaxDimension: 1024, Quality: 85, MaxBytes: 10 << 20})
	if err != nil {
		t.Fatal(err)
	}
	tight, err := Preprocess(raw, Options{MaxDimension: 1024, Quality: 85, MaxBytes: len(loose) / 2})
	if err != nil {
		t.Fatal(err)
	}
	decodeJPEG(t, tight)
	if len(tight) >= len(loose) {
		t.Errorf("tight budget produced no degradation: loose=%d tight=%d", len(loose), len(tight))
	}
}

func TestPreprocess_BothFloorsReturnsBestEffort(t *testing.T) {
	raw := encodePNG(t, noisyImage(600, 600))
	// 1 byte is unreachable; the smallest encoding produced wins.
	out, err := Preprocess(raw, Options{MaxDimension: 600, Quality: 85, MaxBytes: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Fatal("best-effort output is empty")
	}
	img := decodeJPEG(t, out)
	longest := img.Bounds().Dx()
	if img.Bounds().Dy() > longest {
		longest = img.Bounds().Dy()
	}
	if longest < 512 {
		t.Errorf("dimension degraded below floor: %d", longest)
	}
}

func TestPreprocess_InvalidInput(t *testing.T) {
	_, err := Preprocess([]byte("not an image"), DefaultOptions())
	if !errors.Is(err, ErrImageProcessing) {
		t.Errorf("expected ErrImageProcessing, got %v", err)
	}
}

func TestPreprocess_ZeroOptionsUseDefaults(t *testing.T) {
	raw := encodePNG(t, flatImage(100, 100))
	out, err := Preprocess(raw, Options{})
	if err != nil {
		t.Fatal(err)
	}
	decodeJPEG(t, out)
}
