package pipeline

import (
	"context"
	"encoding/base64"
	"image"
	"log/slog"
	"sync"

	"github.com/nabta-labs/leafscope/internal/leafimg"
	"github.com/nabta-labs/leafscope/internal/models"
	"github.com/nabta-labs/leafscope/internal/remote"
	"github.com/nabta-labs/leafscope/internal/storage"
)

// Runner drives one full analysis pipeline: detect over the uploaded
// image, then for every detected box a concurrent segment / classify /
// classify-cam fan-out, merged into the session's region sequence.
//
// All session mutations go through the store with the generation the run
// was started for; once a newer upload or a reset supersedes the run,
// every remaining checkpoint fails and the run winds down without touching
// the replacement session.
type Runner struct {
	client *remote.Client
	store  *storage.Store
}

func NewRunner(client *remote.Client, store *storage.Store) *Runner {
	return &Runner{
		client: client,
		store:  store,
	}
}

// Run executes the pipeline for slotID at generation gen. It blocks until
// the run completes, fails, or is superseded; callers that need it in the
// background start it in a goroutine.
func (r *Runner) Run(ctx context.Context, slotID string, gen uint64, imageData []byte, filename string) {
	update := func(fn func(*models.Session)) bool {
		applied := r.store.Update(slotID, gen, fn)
		if !applied {
			slog.Info("Pipeline run superseded, discarding results", "slot", slotID, "generation", gen)
		}
		return applied
	}

	// Entering Uploading resets everything downstream; the fresh session
	// installed by Begin already carries the initial Waiting state.
	if !update(func(s *models.Session) {
		s.DetectionStatus = models.StatusUploading
		s.Stage = models.StageUpload
	}) {
		return
	}

	detection, err := r.client.Detect(ctx, imageData, filename, func(percent int) {
		r.store.Update(slotID, gen, func(s *models.Session) {
			s.UploadPercent = percent
		})
	})
	if err != nil {
		slog.Error("Detection request failed", "slot", slotID, "error", err)
		update(func(s *models.Session) {
			s.DetectionStatus = models.StatusError
			s.Error = err.Error()
		})
		return
	}

	src, err := leafimg.Decode(imageData)
	if err != nil {
		slog.Error("Uploaded image is not decodable", "slot", slotID, "error", err)
		update(func(s *models.Session) {
			s.DetectionStatus = models.StatusError
			s.Error = err.Error()
		})
		return
	}

	if !update(func(s *models.Session) {
		s.DetectionStatus = models.StatusProcessing
		s.UploadPercent = 100
		s.TotalBoxes = detection.TotalBoxes
		s.Stage = models.StageDetect
	}) {
		return
	}

	annotated, err := leafimg.Annotate(src, detection.Boxes)
	if err != nil {
		// The preview is decorative; the pipeline continues without it.
		slog.Warn("Failed to render annotated preview", "slot", slotID, "error", err)
	} else if !update(func(s *models.Session) {
		s.AnnotatedImage = base64.StdEncoding.EncodeToString(annotated)
	}) {
		return
	}

	if len(detection.Boxes) == 0 {
		slog.Info("No leaves detected, session terminal", "slot", slotID)
		update(func(s *models.Session) {
			s.DetectionStatus = models.StatusCompleted
			s.SegmentationStatus = models.StatusCompleted
			s.ClassificationStatus = models.StatusCompleted
			s.Stage = models.StageDone
		})
		return
	}

	if !update(func(s *models.Session) {
		s.DetectionStatus = models.StatusCompleted
		s.SegmentationStatus = models.StatusProcessing
		s.Stage = models.StageSegment
	}) {
		return
	}

	if !update(func(s *models.Session) {
		s.ClassificationStatus = models.StatusProcessing
		s.Stage = models.StageClassify
	}) {
		return
	}

	// Boxes are processed in detection order, one at a time, each with an
	// internal 3-way fan-out. Results are committed in a single update so
	// readers never observe a partially-populated region list.
	regions := make([]models.RegionRecord, 0, len(detection.Boxes))
	for i, box := range detection.Boxes {
		if ctx.Err() != nil {
			slog.Info("Pipeline run cancelled", "slot", slotID, "generation", gen)
			return
		}
		regions = append(regions, r.analyzeRegion(ctx, src, box, slotID, i))
	}

	update(func(s *models.Session) {
		s.Regions = regions
		s.CurrentIndex = 0
		s.SegmentationStatus = models.StatusCompleted
		s.ClassificationStatus = models.StatusCompleted
		s.Stage = models.StageDone
	})
}

// analyzeRegion extracts one region and settles the three analysis calls.
// Each call's failure is isolated: it yields nil for that source and the
// merge degrades to placeholders, never aborting the siblings.
func (r *Runner) analyzeRegion(ctx context.Context, src image.Image, box models.BoundingBox, slotID string, index int) models.RegionRecord {
	crop, err := leafimg.ExtractRegion(src, box)
	if err != nil {
		slog.Warn("Failed to extract region, recording placeholders", "slot", slotID, "region", index, "error", err)
		return mergeRegion(box, nil, nil, nil, nil)
	}

	var (
		wg  sync.WaitGroup
		cls *remote.ClassificationResult
		cam *remote.ClassificationResult
		seg *remote.SegmentationResult
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		result, err := r.client.Classify(ctx, crop)
		if err != nil {
			slog.Warn("Classify failed for region", "slot", slotID, "region", index, "error", err)
			return
		}
		cls = result
	}()
	go func() {
		defer wg.Done()
		result, err := r.client.ClassifyCAM(ctx, crop)
		if err != nil {
			slog.Warn("Classify-CAM failed for region", "slot", slotID, "region", index, "error", err)
			return
		}
		cam = result
	}()
	go func() {
		defer wg.Done()
		result, err := r.client.Segment(ctx, crop)
		if err != nil {
			slog.Warn("Segmentation failed for region", "slot", slotID, "region", index, "error", err)
			return
		}
		seg = result
	}()
	wg.Wait()

	return mergeRegion(box, crop, cls, cam, seg)
}
