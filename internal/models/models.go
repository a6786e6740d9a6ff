package models

import "time"

// Stage is the coarse pipeline position used by the dashboard progress bar.
// Segment i of the indicator is "done" iff stage > i and "active" iff
// stage == i.
type Stage int

const (
	StageUpload Stage = iota
	StageDetect
	StageSegment
	StageClassify
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageUpload:
		return "Upload"
	case StageDetect:
		return "Detect"
	case StageSegment:
		return "Segment"
	case StageClassify:
		return "Classify"
	case StageDone:
		return "Done"
	}
	return "Unknown"
}

// Sub-stage status strings surfaced to the UI.
const (
	StatusWaiting    = "Waiting"
	StatusUploading  = "Uploading"
	StatusProcessing = "Processing"
	StatusCompleted  = "Completed"
	StatusError      = "Error"
)

// Placeholder values rendered when neither classify nor classify-cam
// supplied a field.
const (
	PlaceholderPlant    = "Awaiting Detection"
	PlaceholderDisease  = "Not Classified Yet"
	PlaceholderSeverity = "Not Determined"
)

// BoundingBox is a detected leaf region in source-image pixel coordinates.
// x2 > x1 and y2 > y1 always hold for boxes returned by the detection API.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns x2-x1.
func (b BoundingBox) Width() int { return b.X2 - b.X1 }

// Height returns y2-y1.
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

// Valid reports whether the box has positive area.
func (b BoundingBox) Valid() bool { return b.X2 > b.X1 && b.Y2 > b.Y1 }

// SegmentationInfo carries the mask metadata returned by the segment
// endpoint.
type SegmentationInfo struct {
	ImageWidth     int `json:"image_width"`
	ImageHeight    int `json:"image_height"`
	LeafPixelCount int `json:"leaf_pixel_count"`
}

// Classification is the merged classify / classify-cam result for one
// region. Confidence is kept in [0,1] as the API returns it;
// DiseasePercentage is already in percent units.
type Classification struct {
	PlantName         string  `json:"plant_name"`
	DiseaseName       string  `json:"disease_name"`
	Confidence        float64 `json:"confidence"`
	DiseasePercentage float64 `json:"disease_percentage"`
	Severity          string  `json:"severity"`
}

// Classified reports whether any real classification arrived for the
// region, as opposed to the placeholder defaults.
func (c Classification) Classified() bool {
	return c.DiseaseName != "" && c.DiseaseName != PlaceholderDisease
}

// RegionRecord is the merged analysis of one detected bounding box. Image
// fields hold base64-encoded JPEG data and are empty when the producing
// call failed.
type RegionRecord struct {
	Box            BoundingBox      `json:"box"`
	Classification Classification   `json:"classification"`
	CropImage      string           `json:"crop_image_base64,omitempty"`
	CamImage       string           `json:"cam_image_base64,omitempty"`
	MaskImage      string           `json:"mask_image_base64,omitempty"`
	Segmentation   SegmentationInfo `json:"segmentation"`
}

// Session aggregates one pipeline run. A new upload replaces the whole
// session; old and new region records are never mixed.
type Session struct {
	ID                   string         `json:"id"`
	Stage                Stage          `json:"stage"`
	UploadPercent        int            `json:"upload_percent"`
	DetectionStatus      string         `json:"detection_status"`
	SegmentationStatus   string         `json:"segmentation_status"`
	ClassificationStatus string         `json:"classification_status"`
	TotalBoxes           int            `json:"total_boxes"`
	AnnotatedImage       string         `json:"annotated_image_base64,omitempty"`
	Regions              []RegionRecord `json:"regions"`
	CurrentIndex         int            `json:"current_index"`
	Error                string         `json:"error,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

// NewSession returns a session in its initial Waiting state.
func NewSession(id string) *Session {
	return &Session{
		ID:                   id,
		Stage:                StageUpload,
		DetectionStatus:      StatusWaiting,
		SegmentationStatus:   StatusWaiting,
		ClassificationStatus: StatusWaiting,
		Regions:              []RegionRecord{},
		CreatedAt:            time.Now(),
	}
}

// Advance moves the region cursor, clamped to [0, len(regions)-1]. With no
// regions the cursor stays at 0.
func (s *Session) Advance(i int) {
	if len(s.Regions) == 0 {
		s.CurrentIndex = 0
		return
	}
	if i < 0 {
		i = 0
	}
	if i > len(s.Regions)-1 {
		i = len(s.Regions) - 1
	}
	s.CurrentIndex = i
}

// Current returns the region under the cursor, or nil when the session has
// no regions.
func (s *Session) Current() *RegionRecord {
	if len(s.Regions) == 0 {
		return nil
	}
	return &s.Regions[s.CurrentIndex]
}

// Leaf is one classified region in a report.
type Leaf struct {
	LeafID            int     `json:"leaf_id" yaml:"leafid" parquet:"leaf_id"`
	PlantName         string  `json:"plant_name" yaml:"plantname" parquet:"plant_name"`
	DiseaseName       string  `json:"disease_name" yaml:"diseasename" parquet:"disease_name"`
	DiseasePercentage float64 `json:"disease_percentage" yaml:"diseasepercentage" parquet:"disease_percentage"`
	Severity          string  `json:"severity" yaml:"severity" parquet:"severity"`
	Image             string  `json:"image_base64,omitempty" yaml:"image,omitempty" parquet:"image_base64"`
}

// Report is a derived, read-only view over a completed session, filtered
// to regions that carry a real classification.
type Report struct {
	ImageID             string    `json:"image_id" yaml:"imageid" parquet:"image_id"`
	GeneratedAt         time.Time `json:"generated_at" yaml:"generatedat" parquet:"generated_at"`
	TotalLeavesDetected int       `json:"total_leaves_detected" yaml:"totalleavesdetected" parquet:"total_leaves_detected"`
	Leaves              []Leaf    `json:"leaves" yaml:"leaves" parquet:"leaves"`
}
