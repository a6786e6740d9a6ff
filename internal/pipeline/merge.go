package pipeline

import (
	"encoding/base64"

	"github.com/nabta-labs/leafscope/internal/models"
	"github.com/nabta-labs/leafscope/internal/remote"
)

// mergeRegion folds the three per-region call results into one record.
// Classification fields prefer classify, fall back to classify-cam, and
// finally to the placeholder defaults; a failed call contributes nothing
// but never blocks the others. Numeric fields follow call presence, not
// value: a successful classify with confidence 0 wins over the CAM result.
func mergeRegion(box models.BoundingBox, crop []byte, cls, cam *remote.ClassificationResult, seg *remote.SegmentationResult) models.RegionRecord {
	record := models.RegionRecord{
		Box: box,
		Classification: models.Classification{
			PlantName:   pickField(cls, cam, models.PlaceholderPlant, func(r *remote.ClassificationResult) string { return r.PlantName }),
			DiseaseName: pickField(cls, cam, models.PlaceholderDisease, func(r *remote.ClassificationResult) string { return r.DiseaseName }),
			Severity:    pickField(cls, cam, models.PlaceholderSeverity, func(r *remote.ClassificationResult) string { return r.Severity }),
		},
	}

	switch {
	case cls != nil:
		record.Classification.Confidence = clampNonNegative(cls.Confidence)
		record.Classification.DiseasePercentage = clampNonNegative(cls.DiseasePercentage)
	case cam != nil:
		record.Classification.Confidence = clampNonNegative(cam.Confidence)
		record.Classification.DiseasePercentage = clampNonNegative(cam.DiseasePercentage)
	}

	if cls != nil && cls.ImageBase64 != "" {
		record.CropImage = cls.ImageBase64
	} else if len(crop) > 0 {
		record.CropImage = base64.StdEncoding.EncodeToString(crop)
	}

	if cam != nil {
		record.CamImage = cam.ImageBase64
	}

	if seg != nil {
		record.MaskImage = seg.MaskImageBase64
		record.Segmentation = models.SegmentationInfo{
			ImageWidth:     seg.ImageWidth,
			ImageHeight:    seg.ImageHeight,
			LeafPixelCount: seg.LeafPixelCount,
		}
	}

	return record
}

// pickField returns the field from classify when present, then from
// classify-cam, then the placeholder.
func pickField(cls, cam *remote.ClassificationResult, placeholder string, get func(*remote.ClassificationResult) string) string {
	if cls != nil {
		if v := get(cls); v != "" {
			return v
		}
	}
	if cam != nil {
		if v := get(cam); v != "" {
			return v
		}
	}
	return placeholder
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
