package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/nabta-labs/leafscope/internal/chat"
	"github.com/nabta-labs/leafscope/internal/config"
	"github.com/nabta-labs/leafscope/internal/models"
	"github.com/nabta-labs/leafscope/internal/remote"
)

// fakeChat records the last message and returns a canned reply.
type fakeChat struct {
	lastMessage string
	reply       string
}

func (f *fakeChat) Reply(_ context.Context, _ []chat.Turn, message string) (string, error) {
	f.lastMessage = message
	return f.reply, nil
}

func newTestHandler(t *testing.T, apiURL string) (*Handler, *fakeChat) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Port:           "0",
		AnalysisAPIURL: apiURL,
		AnalysisAPIKey: "test-key",
		RequestTimeout: 5 * time.Second,
		ChatProvider:   "cohere",
		CohereAPIKey:   "test-key",
		HistoryPath:    filepath.Join(dir, "analyses.parquet"),
		TranscriptPath: filepath.Join(dir, "transcript.json"),
	}

	h, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	fake := &fakeChat{reply: "Treat with a copper fungicide."}
	h.chat = fake
	return h, fake
}

// detectAPI answers the analysis endpoints with a fixed set of boxes.
func detectAPI(t *testing.T, boxes []models.BoundingBox) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var body any
		switch r.URL.Path {
		case "/detect":
			body = remote.DetectionResult{TotalBoxes: len(boxes), Boxes: boxes}
		case "/segment":
			body = remote.SegmentationResult{MaskImageBase64: "bWFzaw==", ImageWidth: 10, ImageHeight: 10, LeafPixelCount: 50}
		case "/classify", "/classify-cam":
			body = remote.ClassificationResult{PlantName: "Tomato", DiseaseName: "Early Blight", Confidence: 0.9, DiseasePercentage: 20, Severity: "Moderate"}
		default:
			http.NotFound(w, r)
			return
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func uploadRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 80, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 80; x++ {
			img.SetNRGBA(x, y, color.NRGBA{30, 120, 40, 255})
		}
	}
	var jpg bytes.Buffer
	if err := imaging.Encode(&jpg, img, imaging.JPEG); err != nil {
		t.Fatal(err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "leaf.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(jpg.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func waitForStage(t *testing.T, h *Handler, slot string, want models.Stage) models.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if session, ok := h.store.Snapshot(slot); ok && session.Stage == want {
			return session
		}
		time.Sleep(10 * time.Millisecond)
	}
	session, _ := h.store.Snapshot(slot)
	t.Fatalf("slot %q never reached stage %v, last: %+v", slot, want, session)
	return models.Session{}
}

func installSession(h *Handler, slot string, session *models.Session) {
	h.store.Begin(slot, session, nil)
}

func completedSession(id string) *models.Session {
	session := models.NewSession(id)
	session.Stage = models.StageDone
	session.DetectionStatus = models.StatusCompleted
	session.SegmentationStatus = models.StatusCompleted
	session.ClassificationStatus = models.StatusCompleted
	session.TotalBoxes = 1
	session.Regions = []models.RegionRecord{{
		Box: models.BoundingBox{X2: 10, Y2: 10},
		Classification: models.Classification{
			PlantName:         "Tomato",
			DiseaseName:       "Early Blight",
			Confidence:        0.9,
			DiseasePercentage: 20,
			Severity:          "Moderate",
		},
		CropImage: "Y3JvcA==",
	}}
	return session
}

func TestHandleAnalyses_UploadRunsPipeline(t *testing.T) {
	api := detectAPI(t, []models.BoundingBox{{X1: 5, Y1: 5, X2: 40, Y2: 40}})
	h, _ := newTestHandler(t, api.URL)

	rec := httptest.NewRecorder()
	h.HandleAnalyses(rec, uploadRequest(t, "/api/analyses"))

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status: got %d, body: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["slot"] != DefaultSlot {
		t.Errorf("slot: got %v", resp["slot"])
	}

	session := waitForStage(t, h, DefaultSlot, models.StageDone)
	if len(session.Regions) != 1 {
		t.Errorf("regions: got %d, want 1", len(session.Regions))
	}

	// Snapshot endpoint serves the same state.
	rec = httptest.NewRecorder()
	h.HandleAnalysisDetail(rec, httptest.NewRequest(http.MethodGet, "/api/analyses/"+DefaultSlot, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status: %d", rec.Code)
	}
	var snap models.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Stage != models.StageDone || snap.TotalBoxes != 1 {
		t.Errorf("snapshot: %+v", snap)
	}
}

func TestHandleAnalyses_RejectsEmptyUpload(t *testing.T) {
	h, _ := newTestHandler(t, "http://localhost:0")

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "empty.jpg")
	_ = part
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/analyses", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	h.HandleAnalyses(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty upload status: got %d, want 400", rec.Code)
	}
}

func TestHandleAnalysisDetail_NotFound(t *testing.T) {
	h, _ := newTestHandler(t, "http://localhost:0")

	rec := httptest.NewRecorder()
	h.HandleAnalysisDetail(rec, httptest.NewRequest(http.MethodGet, "/api/analyses/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

func TestHandleAnalysisDetail_CursorAndReset(t *testing.T) {
	h, _ := newTestHandler(t, "http://localhost:0")
	session := completedSession("run-1")
	session.Regions = append(session.Regions, session.Regions[0])
	session.TotalBoxes = 2
	installSession(h, DefaultSlot, session)

	// Move the cursor to the second region.
	body := strings.NewReader(`{"index": 1}`)
	rec := httptest.NewRecorder()
	h.HandleAnalysisDetail(rec, httptest.NewRequest(http.MethodPost, "/api/analyses/default/cursor", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("cursor status: %d, body: %s", rec.Code, rec.Body.String())
	}
	var cursor map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &cursor); err != nil {
		t.Fatal(err)
	}
	if cursor["current_index"] != 1 {
		t.Errorf("cursor: got %d, want 1", cursor["current_index"])
	}

	// Out-of-range index clamps instead of failing.
	rec = httptest.NewRecorder()
	h.HandleAnalysisDetail(rec, httptest.NewRequest(http.MethodPost, "/api/analyses/default/cursor", strings.NewReader(`{"index": 99}`)))
	json.Unmarshal(rec.Body.Bytes(), &cursor)
	if cursor["current_index"] != 1 {
		t.Errorf("clamped cursor: got %d, want 1", cursor["current_index"])
	}

	// Reset discards the session.
	rec = httptest.NewRecorder()
	h.HandleAnalysisDetail(rec, httptest.NewRequest(http.MethodDelete, "/api/analyses/default", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status: %d", rec.Code)
	}
	snap, ok := h.store.Snapshot(DefaultSlot)
	if !ok || snap.Stage != models.StageUpload || len(snap.Regions) != 0 {
		t.Errorf("session after reset: %+v", snap)
	}
}

func TestDashboardTokenEnforced(t *testing.T) {
	h, _ := newTestHandler(t, "http://localhost:0")
	h.cfg.DashboardToken = "secret"

	rec := httptest.NewRecorder()
	h.HandleAnalyses(rec, httptest.NewRequest(http.MethodGet, "/api/analyses", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without token: got %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/analyses", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.HandleAnalyses(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with token: got %d, want 200", rec.Code)
	}
}

func TestHandleChat_MessageAndTranscript(t *testing.T) {
	h, fake := newTestHandler(t, "http://localhost:0")

	body := strings.NewReader(`{"message": "What is early blight?"}`)
	rec := httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodPost, "/api/chat", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status: %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["reply"] != fake.reply {
		t.Errorf("reply: got %q", resp["reply"])
	}

	// The exchange lands in the transcript.
	rec = httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	var transcript struct {
		Turns []chat.Turn `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &transcript); err != nil {
		t.Fatal(err)
	}
	if len(transcript.Turns) != 2 {
		t.Fatalf("turns: got %d, want 2", len(transcript.Turns))
	}

	// DELETE clears it.
	rec = httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodDelete, "/api/chat", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status: %d", rec.Code)
	}
	if len(h.transcript.Turns()) != 0 {
		t.Error("transcript not cleared")
	}
}

func TestHandleChat_SlotGrounding(t *testing.T) {
	h, fake := newTestHandler(t, "http://localhost:0")
	installSession(h, DefaultSlot, completedSession("run-1"))

	body := strings.NewReader(`{"message": "How do I treat it?", "slot": "default"}`)
	rec := httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodPost, "/api/chat", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status: %d, body: %s", rec.Code, rec.Body.String())
	}

	if !strings.Contains(fake.lastMessage, "Early Blight") {
		t.Errorf("analysis context missing from prompt:\n%s", fake.lastMessage)
	}
	if !strings.Contains(fake.lastMessage, "How do I treat it?") {
		t.Errorf("user question missing from prompt:\n%s", fake.lastMessage)
	}
}

func TestHandleExportPDF(t *testing.T) {
	h, _ := newTestHandler(t, "http://localhost:0")

	body := strings.NewReader(`{"markdown": "# Diagnosis\n\nYour tomato has **early blight**.", "title": "LeafScope Report"}`)
	rec := httptest.NewRecorder()
	h.HandleExportPDF(rec, httptest.NewRequest(http.MethodPost, "/api/export/pdf", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("export status: %d, body: %s", rec.Code, rec.Body.String())
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type: %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("content disposition: %q", cd)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF")
	}
}

func TestHandleHistory_ArchiveAndList(t *testing.T) {
	h, _ := newTestHandler(t, "http://localhost:0")
	installSession(h, DefaultSlot, completedSession("run-1"))

	rec := httptest.NewRecorder()
	h.HandleHistory(rec, httptest.NewRequest(http.MethodPost, "/api/history", strings.NewReader(`{"slot": "default"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("archive status: %d, body: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.HandleHistory(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	var listing struct {
		Analyses []models.Report `json:"analyses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.Analyses) != 1 {
		t.Fatalf("archived reports: got %d, want 1", len(listing.Analyses))
	}
	if listing.Analyses[0].Leaves[0].DiseaseName != "Early Blight" {
		t.Errorf("archived leaf: %+v", listing.Analyses[0].Leaves)
	}
}
