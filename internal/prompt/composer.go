// Package prompt assembles the multi-part instruction payload sent to
// the image model. Composition is a pure function of its inputs: no
// network, no persistence.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/couturelab/backend/internal/models"
)

// Color modes are mutually exclusive: a payload derives the garment
// palette from the sketch pixels, or applies one explicit swatch, never
// both.
const (
	ColorModePalette = "palette"
	ColorModeSwatch  = "swatch"
)

// Output modes steer the photographic treatment of the render.
const (
	OutputModeStudio    = "studio"
	OutputModeEditorial = "editorial"
)

var (
	ErrMissingSubject     = errors.New("subject image is required")
	ErrMissingDescription = errors.New("description is required")
	ErrColorModeConflict  = errors.New("palette and swatch color modes are mutually exclusive")
	ErrUnknownGenType     = errors.New("unknown generation type")
)

// ImageInput is one base64-encoded image supplied by the user.
type ImageInput struct {
	MimeType string
	Data     string
}

// Inputs are the typed structured inputs collected from the studio UI.
type Inputs struct {
	GenType     string
	Category    string
	Material    string
	ColorMode   string
	Swatch      string
	Description string
	OutputMode  string
	Presets     []string

	Subject     *ImageInput
	MaterialRef *ImageInput
	StyleRef    *ImageInput
	PoseRef     *ImageInput
}

// Payload is the composed result: the ordered parts list for the wire
// request (images first, subject always IMAGE 1, then the instruction
// text) plus the flat instruction string for history records.
type Payload struct {
	Parts       []models.Part
	Instruction string
}

var intro = map[string]string{
	models.GenTypeSketch:   "Render this fashion sketch as a photorealistic garment worn by a model.",
	models.GenTypeConcept:  "Produce a studio product shot of the garment concept shown in the sketch.",
	models.GenTypeLookbook: "Produce a professional lookbook photograph of the garment shown in the sketch.",
	models.GenTypeTryOn:    "Dress the person in IMAGE 1 in the referenced garment, preserving their pose, body and face.",
}

// Compose builds the instruction payload. The subject is always the
// first image part; the instruction text references image parts
// positionally ("IMAGE 1", "IMAGE 2", ...), so part order is a hard
// contract.
func Compose(in Inputs) (*Payload, error) {
	if in.Subject == nil || in.Subject.Data == "" {
		return nil, ErrMissingSubject
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, ErrMissingDescription
	}
	header, ok := intro[in.GenType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGenType, in.GenType)
	}

	colorMode := in.ColorMode
	if colorMode == "" {
		colorMode = ColorModePalette
	}
	switch colorMode {
	case ColorModePalette:
		if in.Swatch != "" {
			return nil, ErrColorModeConflict
		}
	case ColorModeSwatch:
		if in.Swatch == "" {
			return nil, fmt.Errorf("swatch color mode requires a swatch name")
		}
	default:
		return nil, fmt.Errorf("unknown color mode %q", colorMode)
	}

	var parts []models.Part
	var lines []string
	lines = append(lines, header)

	addImage := func(img *ImageInput, describe func(n int) string) {
		parts = append(parts, models.Part{InlineData: &models.InlineData{
			MimeType: img.MimeType,
			Data:     img.Data,
		}})
		lines = append(lines, describe(len(parts)))
	}

	addImage(in.Subject, func(n int) string {
		return fmt.Sprintf("IMAGE %d is the ground-truth subject; treat its silhouette and construction as authoritative.", n)
	})
	if in.MaterialRef != nil {
		// Hard constraint: the reference texture is copied exactly.
		addImage(in.MaterialRef, func(n int) string {
			return fmt.Sprintf("IMAGE %d is a material reference. Copy its exact fabric texture, weave and sheen onto the garment.", n)
		})
	}
	if in.StyleRef != nil {
		// Soft constraint: lighting and mood only, never the design.
		addImage(in.StyleRef, func(n int) string {
			return fmt.Sprintf("IMAGE %d is a style reference. Match only its lighting and mood; do not copy its garment design.", n)
		})
	}
	if in.PoseRef != nil {
		addImage(in.PoseRef, func(n int) string {
			return fmt.Sprintf("IMAGE %d is a pose reference. Pose the model exactly as shown.", n)
		})
	}

	if in.Category != "" {
		lines = append(lines, fmt.Sprintf("Garment category: %s.", in.Category))
	}
	if in.Material != "" {
		lines = append(lines, fmt.Sprintf("Primary material: %s.", in.Material))
	}

	switch colorMode {
	case ColorModePalette:
		lines = append(lines, "Derive the color palette strictly from the pixels of IMAGE 1.")
	case ColorModeSwatch:
		lines = append(lines, fmt.Sprintf("Color the garment with the %q swatch; ignore any colors present in IMAGE 1.", in.Swatch))
	}

	lines = append(lines, fmt.Sprintf("Design notes: %s", strings.TrimSpace(in.Description)))

	switch in.OutputMode {
	case OutputModeEditorial:
		lines = append(lines, "Shoot as an editorial scene with environmental context.")
	case OutputModeStudio, "":
		lines = append(lines, "Shoot on a neutral studio background with soft, even lighting.")
	default:
		lines = append(lines, fmt.Sprintf("Output treatment: %s.", in.OutputMode))
	}

	for _, p := range in.Presets {
		if s := strings.TrimSpace(p); s != "" {
			lines = append(lines, s)
		}
	}

	instruction := strings.Join(lines, " ")
	parts = append(parts, models.Part{Text: instruction})
	return &Payload{Parts: parts, Instruction: instruction}, nil
}
