package report

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

const sampleMarkdown = `# Plant Analysis

Detected **2** leaves in the uploaded photo.

## Leaf 1

- Plant: *Tomato*
- Disease: Early Blight
- Confidence: 91.00%

1. Remove affected foliage
2. Apply a copper-based fungicide

---

> Keep foliage dry when watering.

` + "```\ncurl -F file=@leaf.jpg /detect\n```\n"

func TestExportPDF_ProducesDocument(t *testing.T) {
	data, err := ExportPDF(sampleMarkdown, PDFOptions{Title: "LeafScope Report"})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("output is not a PDF, starts with %q", data[:min(len(data), 8)])
	}
}

func TestExportPDF_ToleratesMarkers(t *testing.T) {
	in := "## Diagnosis ✅\n\nYour plant 🌿 shows signs of blight ⚠ and needs water 💧.\n"
	data, err := ExportPDF(in, PDFOptions{})
	if err != nil {
		t.Fatalf("markers must never fail the export: %v", err)
	}
	if len(data) == 0 {
		t.Error("empty document")
	}
}

func TestExportPDF_MissingLogoOmitted(t *testing.T) {
	data, err := ExportPDF(sampleMarkdown, PDFOptions{LogoPath: filepath.Join(t.TempDir(), "absent.png")})
	if err != nil {
		t.Fatalf("missing logo must not fail the export: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("output is not a PDF")
	}
}

func TestExportPDF_CorruptLogoOmitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	if err := os.WriteFile(path, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ExportPDF(sampleMarkdown, PDFOptions{LogoPath: path}); err != nil {
		t.Fatalf("corrupt logo must not fail the export: %v", err)
	}
}

func TestExportPDF_WithLogo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{30, 120, 40, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := ExportPDF(sampleMarkdown, PDFOptions{Title: "LeafScope Report", LogoPath: path})
	if err != nil {
		t.Fatalf("export with logo failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("output is not a PDF")
	}
}
