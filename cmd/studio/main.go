// Command studio is the designer-facing CLI: it preprocesses local
// reference images, composes the instruction payload and runs a batch of
// paid generation calls against the API.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/couturelab/backend/internal/imaging"
	"github.com/couturelab/backend/internal/models"
	"github.com/couturelab/backend/internal/prompt"
	"github.com/couturelab/backend/internal/studio"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var (
		server      = flag.String("server", envOr("COUTURELAB_SERVER", "http://localhost:8080"), "API base URL")
		apiKey      = flag.String("api-key", os.Getenv("COUTURELAB_API_KEY"), "API key (clab_...)")
		model       = flag.String("model", envOr("COUTURELAB_MODEL", "gemini-2.5-flash-image"), "image model name")
		genType     = flag.String("type", models.GenTypeConcept, "generation type: sketch, concept, lookbook or tryon")
		resolution  = flag.String("resolution", models.Resolution1K, "output resolution: 1K, 2K or 4K")
		aspect      = flag.String("aspect", "3:4", "aspect ratio")
		count       = flag.Int("count", 1, "number of images to generate")
		subjectPath = flag.String("subject", "", "path to the subject image (required)")
		materialRef = flag.String("material-ref", "", "path to a material reference image")
		styleRef    = flag.String("style-ref", "", "path to a style reference image")
		poseRef     = flag.String("pose-ref", "", "path to a pose reference image")
		category    = flag.String("category", "", "garment category")
		material    = flag.String("material", "", "primary material")
		swatch      = flag.String("swatch", "", "color swatch name (switches color mode to swatch)")
		description = flag.String("description", "", "design notes (required)")
		outputMode  = flag.String("output-mode", prompt.OutputModeStudio, "studio or editorial")
		outDir      = flag.String("out", ".", "directory to write generated images into")
	)
	flag.Parse()

	if *apiKey == "" {
		fatal("an API key is required (-api-key or COUTURELAB_API_KEY)")
	}
	if *subjectPath == "" {
		fatal("-subject is required")
	}
	if *description == "" {
		fatal("-description is required")
	}

	ctx := context.Background()
	client := studio.NewClient(*server, *apiKey)

	user, err := client.Account(ctx)
	if err != nil {
		fatal("fetch account: %v", err)
	}
	balance := studio.NewBalanceCache()
	balance.Set(user.CreditBalance)
	slog.Info("authenticated", "designer", user.DisplayName, "balance", user.CreditBalance)

	inputs := prompt.Inputs{
		GenType:     *genType,
		Category:    *category,
		Material:    *material,
		Description: *description,
		OutputMode:  *outputMode,
	}
	if *swatch != "" {
		inputs.ColorMode = prompt.ColorModeSwatch
		inputs.Swatch = *swatch
	}
	if inputs.Subject, err = loadImage(*subjectPath); err != nil {
		fatal("subject: %v", err)
	}
	if *materialRef != "" {
		if inputs.MaterialRef, err = loadImage(*materialRef); err != nil {
			fatal("material ref: %v", err)
		}
	}
	if *styleRef != "" {
		if inputs.StyleRef, err = loadImage(*styleRef); err != nil {
			fatal("style ref: %v", err)
		}
	}
	if *poseRef != "" {
		if inputs.PoseRef, err = loadImage(*poseRef); err != nil {
			fatal("pose ref: %v", err)
		}
	}

	payload, err := prompt.Compose(inputs)
	if err != nil {
		fatal("compose prompt: %v", err)
	}

	req := studio.NewGenerationRequest(*model, payload, *genType, *resolution, *aspect)
	exec := studio.NewExecutor(client, balance, logger)

	result, err := exec.Run(ctx, user, req, *count)
	if err != nil {
		fatal("batch failed: %v", err)
	}

	saved, unsaved := saveImages(*outDir, *genType, *resolution, result.Images)
	for _, path := range saved {
		fmt.Println(path)
	}

	if result.Partial {
		slog.Warn("batch completed partially",
			"succeeded", result.Succeeded, "failed", result.Failed, "total", result.Total)
	}
	if b, ok := balance.Balance(); ok {
		fmt.Printf("credits remaining: %d\n", b)
	}
	if result.Partial || unsaved > 0 {
		os.Exit(2)
	}
}

// saveImages writes each generated image to outDir and returns the paths
// written plus the number of slots that could not be persisted. A failed
// slot is logged and skipped: the siblings are already paid for and must
// still reach disk.
func saveImages(outDir, genType, resolution string, images []studio.GeneratedImage) (saved []string, unsaved int) {
	for _, img := range images {
		blob, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			slog.Error("slot returned undecodable image", "index", img.Index)
			unsaved++
			continue
		}
		name := fmt.Sprintf("%s-%s-%d%s", genType, resolution, img.Index+1, extFor(blob))
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, blob, 0o644); err != nil {
			slog.Error("write image", "path", path, "error", err)
			unsaved++
			continue
		}
		saved = append(saved, path)
	}
	return saved, unsaved
}

// loadImage reads, normalizes and base64-encodes one local image.
func loadImage(path string) (*prompt.ImageInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	processed, err := imaging.Preprocess(raw, imaging.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("preprocess %s: %w", path, err)
	}
	return &prompt.ImageInput{
		MimeType: imaging.OutputMIMEType,
		Data:     base64.StdEncoding.EncodeToString(processed),
	}, nil
}

func extFor(blob []byte) string {
	if len(blob) > 8 && string(blob[1:4]) == "PNG" {
		return ".png"
	}
	return ".jpg"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "studio: "+format+"\n", args...)
	os.Exit(1)
}
