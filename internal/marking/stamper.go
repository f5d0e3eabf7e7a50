package marking

import (
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Mark is a fully resolved visual mark.
type Mark struct {
	Type      MarkType
	Placement Placement
	// ImagePath is a local image file for signatures and stamps.
	ImagePath string
	// Text is the content of a date stamp.
	Text string
}

// Stamper applies marks to local PDF files with pdfcpu.
type Stamper struct {
	conf *model.Configuration
}

func NewStamper() *Stamper {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Stamper{conf: conf}
}

// Stamp writes a marked copy of inPath to outPath. The input is never modified.
func (s *Stamper) Stamp(inPath, outPath string, m Mark) error {
	if inPath == outPath {
		return fmt.Errorf("refusing to stamp %s in place", inPath)
	}
	dims, err := api.PageDimsFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to read page dimensions: %w", err)
	}
	if len(dims) == 0 {
		return fmt.Errorf("pdf %s has no pages", inPath)
	}
	pageWidth := dims[len(dims)-1].Width

	// Marks go on the last page, where the validation block lives.
	pages := []string{"l"}
	desc := describe(m, pageWidth)

	switch m.Type {
	case MarkSignature, MarkStamp:
		if m.ImagePath == "" {
			return fmt.Errorf("%s mark requires an image", m.Type)
		}
		err = api.AddImageWatermarksFile(inPath, outPath, pages, true, m.ImagePath, desc, s.conf)
	case MarkDater:
		if m.Text == "" {
			return fmt.Errorf("dater mark requires a text")
		}
		err = api.AddTextWatermarksFile(inPath, outPath, pages, true, m.Text, desc, s.conf)
	default:
		return fmt.Errorf("unknown mark type %q", m.Type)
	}
	if err != nil {
		return fmt.Errorf("pdfcpu failed to apply %s: %w", m.Type, err)
	}
	return nil
}

// describe renders a pdfcpu watermark description for the mark.
func describe(m Mark, pageWidth float64) string {
	p := m.Placement
	parts := []string{
		"pos:" + string(p.Anchor),
		fmt.Sprintf("off:%.0f %.0f", p.X, p.Y),
		"rot:0",
		"op:1",
	}
	if m.Type == MarkDater {
		parts = append(parts, "fo:Helvetica", "points:11", "fillc:#1F3A93", "scalefactor:1 abs")
		return strings.Join(parts, ", ")
	}
	scale := 0.25
	if pageWidth > 0 && p.Width > 0 {
		scale = p.Width / pageWidth
	}
	if scale > 1 {
		scale = 1
	}
	parts = append(parts, fmt.Sprintf("scalefactor:%.2f rel", scale))
	return strings.Join(parts, ", ")
}
