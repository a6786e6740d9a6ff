package report

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// PDFOptions controls the exported document chrome.
type PDFOptions struct {
	Title    string
	LogoPath string
}

const (
	bodyFont   = "Helvetica"
	codeFont   = "Courier"
	bodySize   = 11.0
	lineHeight = 5.5
)

// ExportPDF sanitizes the markdown text, converts it to a styled paginated
// document with a fixed header and footer, and returns the encoded PDF. A
// missing or unreadable logo asset is omitted, never a failure.
func ExportPDF(markdown string, opts PDFOptions) ([]byte, error) {
	if opts.Title == "" {
		opts.Title = "Plant Analysis Report"
	}

	source := []byte(Sanitize(markdown))
	doc := goldmark.New().Parser().Parse(gmtext.NewReader(source))

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(opts.Title, true)
	pdf.AliasNbPages("")
	pdf.SetAutoPageBreak(true, 22)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	logo := loadLogo(opts.LogoPath)
	if logo != nil {
		pdf.RegisterImageOptionsReader("report-logo", fpdf.ImageOptions{ImageType: logo.kind}, bytes.NewReader(logo.data))
	}

	pdf.SetHeaderFunc(func() {
		if logo != nil {
			pdf.ImageOptions("report-logo", 10, 6, 0, 12, false, fpdf.ImageOptions{ImageType: logo.kind}, 0, "")
		}
		pdf.SetFont(bodyFont, "B", 14)
		pdf.CellFormat(0, 12, tr(opts.Title), "", 0, "C", false, 0, "")
		pdf.Ln(14)
		pdf.SetLineWidth(0.4)
		pdf.Line(10, pdf.GetY(), 200, pdf.GetY())
		pdf.Ln(4)
	})

	pdf.SetFooterFunc(func() {
		pdf.SetY(-16)
		pdf.SetFont(bodyFont, "I", 8)
		pdf.CellFormat(0, 5, "Generated by LeafScope", "", 1, "L", false, 0, "")
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont(bodyFont, "", bodySize)

	renderBlocks(pdf, tr, doc, source, 0)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

type logoAsset struct {
	data []byte
	kind string
}

// loadLogo reads and validates the logo image. Any failure degrades to a
// nil logo so the export proceeds without it.
func loadLogo(path string) *logoAsset {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Logo asset unavailable, exporting without it", "path", path, "error", err)
		return nil
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		slog.Warn("Logo asset not a decodable image, exporting without it", "path", path, "error", err)
		return nil
	}

	kind := strings.ToUpper(strings.TrimPrefix(filepath.Ext(path), "."))
	if kind == "JPEG" {
		kind = "JPG"
	}
	return &logoAsset{data: data, kind: kind}
}

func renderBlocks(pdf *fpdf.Fpdf, tr func(string) string, parent ast.Node, src []byte, indent float64) {
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			size := headingSize(n.Level)
			pdf.Ln(2)
			pdf.SetFont(bodyFont, "B", size)
			pdf.SetX(10 + indent)
			pdf.MultiCell(0, size*0.55, tr(plainText(n, src)), "", "L", false)
			pdf.SetFont(bodyFont, "", bodySize)
			pdf.Ln(1)
		case *ast.Paragraph:
			pdf.SetX(10 + indent)
			writeInline(pdf, tr, n, src, "")
			pdf.Ln(lineHeight + 2)
		case *ast.TextBlock:
			pdf.SetX(10 + indent)
			writeInline(pdf, tr, n, src, "")
			pdf.Ln(lineHeight)
		case *ast.List:
			renderList(pdf, tr, n, src, indent)
			pdf.Ln(2)
		case *ast.Blockquote:
			pdf.SetFont(bodyFont, "I", bodySize)
			renderBlocks(pdf, tr, n, src, indent+6)
			pdf.SetFont(bodyFont, "", bodySize)
		case *ast.FencedCodeBlock:
			renderCode(pdf, tr, n.Lines(), src, indent)
		case *ast.CodeBlock:
			renderCode(pdf, tr, n.Lines(), src, indent)
		case *ast.ThematicBreak:
			pdf.Ln(2)
			pdf.SetLineWidth(0.2)
			pdf.Line(10+indent, pdf.GetY(), 200, pdf.GetY())
			pdf.Ln(4)
		default:
			// Unknown block kinds degrade to their plain text.
			pdf.SetX(10 + indent)
			pdf.Write(lineHeight, tr(plainText(n, src)))
			pdf.Ln(lineHeight)
		}
	}
}

func renderList(pdf *fpdf.Fpdf, tr func(string) string, list *ast.List, src []byte, indent float64) {
	number := list.Start
	if number == 0 {
		number = 1
	}

	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "- "
		if list.IsOrdered() {
			marker = fmt.Sprintf("%d. ", number)
			number++
		}

		pdf.SetX(10 + indent)
		pdf.Write(lineHeight, marker)

		for block := item.FirstChild(); block != nil; block = block.NextSibling() {
			switch b := block.(type) {
			case *ast.List:
				pdf.Ln(lineHeight)
				renderList(pdf, tr, b, src, indent+6)
			default:
				writeInline(pdf, tr, b, src, "")
			}
		}
		pdf.Ln(lineHeight)
	}
}

func renderCode(pdf *fpdf.Fpdf, tr func(string) string, lines *gmtext.Segments, src []byte, indent float64) {
	pdf.SetFont(codeFont, "", bodySize-1)
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		pdf.SetX(12 + indent)
		pdf.Write(lineHeight, tr(strings.TrimRight(string(segment.Value(src)), "\n")))
		pdf.Ln(lineHeight)
	}
	pdf.SetFont(bodyFont, "", bodySize)
	pdf.Ln(2)
}

// writeInline renders the inline children of a block, toggling bold and
// italic styles as emphasis nodes open and close.
func writeInline(pdf *fpdf.Fpdf, tr func(string) string, parent ast.Node, src []byte, style string) {
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Text:
			pdf.Write(lineHeight, tr(string(n.Segment.Value(src))))
			if n.SoftLineBreak() || n.HardLineBreak() {
				pdf.Write(lineHeight, " ")
			}
		case *ast.String:
			pdf.Write(lineHeight, tr(string(n.Value)))
		case *ast.Emphasis:
			added := "I"
			if n.Level >= 2 {
				added = "B"
			}
			next := style
			if !strings.Contains(next, added) {
				next += added
			}
			pdf.SetFont(bodyFont, next, bodySize)
			writeInline(pdf, tr, n, src, next)
			pdf.SetFont(bodyFont, style, bodySize)
		case *ast.CodeSpan:
			pdf.SetFont(codeFont, style, bodySize-1)
			writeInline(pdf, tr, n, src, style)
			pdf.SetFont(bodyFont, style, bodySize)
		case *ast.Link:
			writeInline(pdf, tr, n, src, style)
		case *ast.AutoLink:
			pdf.Write(lineHeight, tr(string(n.URL(src))))
		case *ast.Image:
			// Remote images are not fetched during export.
		default:
			pdf.Write(lineHeight, tr(plainText(n, src)))
		}
	}
}

func headingSize(level int) float64 {
	switch level {
	case 1:
		return 16
	case 2:
		return 14
	case 3:
		return 12.5
	default:
		return bodySize + 0.5
	}
}

// plainText flattens a node's text content, used for headings and
// unhandled node kinds.
func plainText(node ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
