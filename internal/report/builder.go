package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nabta-labs/leafscope/internal/models"
)

// AllRegions selects every region for NarrativePrompt.
const AllRegions = -1

// Build derives a report from a session: regions still carrying the
// placeholder classification are excluded, and the remaining leaves get
// dense sequential IDs starting at 1.
func Build(session *models.Session) *models.Report {
	report := &models.Report{
		ImageID:             newImageID(),
		GeneratedAt:         time.Now(),
		TotalLeavesDetected: session.TotalBoxes,
		Leaves:              []models.Leaf{},
	}

	for _, region := range session.Regions {
		if !region.Classification.Classified() {
			continue
		}
		report.Leaves = append(report.Leaves, models.Leaf{
			LeafID:            len(report.Leaves) + 1,
			PlantName:         region.Classification.PlantName,
			DiseaseName:       region.Classification.DiseaseName,
			DiseasePercentage: region.Classification.DiseasePercentage,
			Severity:          region.Classification.Severity,
			Image:             region.CropImage,
		})
	}

	return report
}

// newImageID generates a timestamp-based report identifier.
func newImageID() string {
	return fmt.Sprintf("img_%s_%s", time.Now().Format("20060102T150405"), uuid.NewString()[:8])
}

// NarrativePrompt renders session results into the prompt text handed to
// the chat assistant. index selects one region; AllRegions covers every
// classified region. Pure string formatting, no network.
func NarrativePrompt(session *models.Session, index int) string {
	var b strings.Builder

	b.WriteString("The user ran an automated leaf analysis on an uploaded plant photo.\n")
	fmt.Fprintf(&b, "Leaves detected: %d.\n\n", session.TotalBoxes)

	if index == AllRegions {
		wrote := false
		for i := range session.Regions {
			region := &session.Regions[i]
			if !region.Classification.Classified() {
				continue
			}
			writeRegionSummary(&b, i+1, region)
			wrote = true
		}
		if !wrote {
			b.WriteString("No leaf received a classification.\n")
		}
		b.WriteString("\nSummarize the overall health of this plant, explain each diagnosis in plain language, and recommend treatment and prevention steps.")
		return b.String()
	}

	if index < 0 || index >= len(session.Regions) {
		b.WriteString("No leaf received a classification.\n")
		return b.String()
	}

	writeRegionSummary(&b, index+1, &session.Regions[index])
	b.WriteString("\nExplain this diagnosis in plain language and recommend treatment and prevention steps for this leaf.")
	return b.String()
}

func writeRegionSummary(b *strings.Builder, number int, region *models.RegionRecord) {
	c := region.Classification
	fmt.Fprintf(b, "Leaf %d:\n", number)
	fmt.Fprintf(b, "- Plant: %s\n", c.PlantName)
	fmt.Fprintf(b, "- Disease: %s\n", c.DiseaseName)
	fmt.Fprintf(b, "- Confidence: %.2f%%\n", c.Confidence*100)
	fmt.Fprintf(b, "- Disease coverage: %.2f%% (%s)\n", c.DiseasePercentage, c.Severity)
	if region.Segmentation.LeafPixelCount > 0 {
		fmt.Fprintf(b, "- Segmented leaf area: %d px in a %dx%d mask\n",
			region.Segmentation.LeafPixelCount, region.Segmentation.ImageWidth, region.Segmentation.ImageHeight)
	}
	b.WriteString("\n")
}
