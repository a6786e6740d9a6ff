package report

import "strings"

// MarkerLabels enumerates every pictographic marker the assistant is known
// to emit, mapped to a textual label the PDF core fonts can render.
// Sanitization is table-driven so the set stays testable and exhaustive.
var MarkerLabels = map[string]string{
	"🌿": "[Leaf]",
	"🍃": "[Leaf]",
	"🌱": "[Sprout]",
	"🪴": "[Plant]",
	"🌾": "[Crop]",
	"🦠": "[Pathogen]",
	"🔬": "[Analysis]",
	"💧": "[Water]",
	"☀":  "[Sun]",
	"✅": "[OK]",
	"✓":  "[OK]",
	"⚠":  "[Warning]",
	"❌": "[X]",
	"❤":  "<3",
	"→":  "->",
	"◀":  "<",
	"▶":  ">",
	"•":  "-",
}

// invisibleRunes are code points that carry no glyph and confuse the PDF
// encoder: variation selectors, zero-width characters, directional marks
// and the BOM.
var invisibleRunes = map[rune]bool{
	0xFE0E: true, // text variation selector
	0xFE0F: true, // emoji variation selector
	0x200B: true, // zero-width space
	0x200C: true, // zero-width non-joiner
	0x200D: true, // zero-width joiner
	0x200E: true, // left-to-right mark
	0x200F: true, // right-to-left mark
	0xFEFF: true, // byte-order mark
}

// Sanitize replaces every enumerated marker with its label and strips
// invisible code points plus any leftover pictographs outside the core
// font range. It never fails; unknown text passes through unchanged.
func Sanitize(text string) string {
	for marker, label := range MarkerLabels {
		text = strings.ReplaceAll(text, marker, label)
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if invisibleRunes[r] {
			continue
		}
		// Remaining unmapped pictographs (emoji planes and the symbol
		// blocks) have no core-font glyph; drop rather than garble.
		if r >= 0x1F000 || (r >= 0x2600 && r <= 0x27BF) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
