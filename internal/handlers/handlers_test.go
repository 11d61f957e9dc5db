package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/face-service/internal/face"
	"github.com/example/face-service/internal/usecase"
)

const dimension = 128

// faceModel reports one face on any image with a dark pixel and encodes
// it from the image's mean brightness, so different photos differ.
type faceModel struct {
	encodeErr error
}

func (m *faceModel) Locate(ctx context.Context, img *face.Image) ([]face.Region, error) {
	b := img.Pixels.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if r, _, _, _ := img.Pixels.At(x, y).RGBA(); r < 0x8000 {
				return []face.Region{face.RegionFromRect(b)}, nil
			}
		}
	}
	return nil, nil
}

func (m *faceModel) Encode(ctx context.Context, img *face.Image, regions []face.Region) ([]face.Embedding, error) {
	if m.encodeErr != nil {
		return nil, m.encodeErr
	}
	b := img.Pixels.Bounds()
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.Pixels.At(x, y).RGBA()
			sum += float64(r) / 0xffff
		}
	}
	mean := sum / float64(b.Dx()*b.Dy())
	emb := make(face.Embedding, dimension)
	for i := range emb {
		emb[i] = mean / 10
	}
	return []face.Embedding{emb}, nil
}

type panickingService struct{}

func (panickingService) Extract(ctx context.Context, data []byte) (face.Embedding, error) {
	panic("boom")
}

func (panickingService) Compare(ctx context.Context, data []byte, reference string) (face.MatchResult, error) {
	panic("boom")
}

type stubOutcomes struct {
	outcome *usecase.Outcome
	err     error
}

func (s *stubOutcomes) Get(ctx context.Context, requestID string) (*usecase.Outcome, error) {
	return s.outcome, s.err
}

func (s *stubOutcomes) Duplicates(ctx context.Context, requestID string) (*usecase.DuplicateReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &usecase.DuplicateReport{Request: s.outcome}, nil
}

func (s *stubOutcomes) Summary(ctx context.Context) (*usecase.Summary, error) {
	return &usecase.Summary{TotalRequests: 3}, nil
}

func newFaceService(model *faceModel) FaceService {
	extractor := face.NewExtractor(model, model, face.WithDimension(dimension))
	return usecase.NewFaceUseCase(extractor, face.NewComparator(extractor, face.DefaultMatchThreshold), nil, zap.NewNop())
}

func newRouter(svc FaceService, opts Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, svc, opts)
	return router
}

func photo(t *testing.T, c color.Gray) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	for x := 8; x < 24; x++ {
		for y := 8; y < 24; y++ {
			img.SetGray(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func blankPhoto(t *testing.T) []byte {
	return photo(t, color.Gray{Y: 255})
}

type formPart struct {
	name     string
	filename string
	data     []byte
}

func buildMultipartBody(t *testing.T, parts ...formPart) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		if p.filename != "" {
			header.Set("Content-Disposition", `form-data; name="`+p.name+`"; filename="`+p.filename+`"`)
			header.Set("Content-Type", "application/octet-stream")
		} else {
			header.Set("Content-Disposition", `form-data; name="`+p.name+`"`)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("failed to create multipart part: %v", err)
		}
		if _, err := part.Write(p.data); err != nil {
			t.Fatalf("failed to write payload: %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func imagePart(data []byte) formPart {
	return formPart{name: "image", filename: "photo.jpg", data: data}
}

func embeddingPart(text string) formPart {
	return formPart{name: "embedding", data: []byte(text)}
}

func post(t *testing.T, router *gin.Engine, path string, parts ...formPart) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := buildMultipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json %q: %v", resp.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{}), Options{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if got := decode(t, resp)["status"]; got != "ok" {
		t.Fatalf("unexpected status field: %v", got)
	}
}

func TestExtractReturnsEmbedding(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{}), Options{})

	resp := post(t, router, "/extract", imagePart(photo(t, color.Gray{Y: 40})))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}
	out := decode(t, resp)
	if out["success"] != true {
		t.Fatalf("expected success, got %v", out)
	}
	embedding, ok := out["embedding"].([]any)
	if !ok || len(embedding) != dimension {
		t.Fatalf("expected %d values, got %v", dimension, out["embedding"])
	}
	if _, present := out["error"]; present {
		t.Fatalf("unexpected error field: %v", out)
	}
}

func TestExtractBlankImageHasNoFace(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{}), Options{})

	resp := post(t, router, "/extract", imagePart(blankPhoto(t)))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	out := decode(t, resp)
	if out["success"] != false || out["error"] != "No face detected" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestCompareWithOwnEmbeddingMatches(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{}), Options{})
	img := photo(t, color.Gray{Y: 40})

	extracted := post(t, router, "/extract", imagePart(img))
	if extracted.Code != http.StatusOK {
		t.Fatalf("extract failed: %s", extracted.Body.String())
	}
	embedding, err := json.Marshal(decode(t, extracted)["embedding"])
	if err != nil {
		t.Fatalf("failed to marshal embedding: %v", err)
	}

	resp := post(t, router, "/compare", imagePart(img), embeddingPart(string(embedding)))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}
	out := decode(t, resp)
	if out["match"] != true {
		t.Fatalf("expected match, got %v", out)
	}
	if distance, ok := out["distance"].(float64); !ok || distance > face.DefaultMatchThreshold {
		t.Fatalf("expected distance below threshold, got %v", out["distance"])
	}
}

func TestCompareDistanceGrowsWithDifference(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{}), Options{})

	extracted := post(t, router, "/extract", imagePart(photo(t, color.Gray{Y: 40})))
	embedding, err := json.Marshal(decode(t, extracted)["embedding"])
	if err != nil {
		t.Fatalf("failed to marshal embedding: %v", err)
	}

	near := decode(t, post(t, router, "/compare", imagePart(photo(t, color.Gray{Y: 50})), embeddingPart(string(embedding))))
	far := decode(t, post(t, router, "/compare", imagePart(photo(t, color.Gray{Y: 120})), embeddingPart(string(embedding))))

	if near["distance"].(float64) >= far["distance"].(float64) {
		t.Fatalf("expected near < far, got %v and %v", near["distance"], far["distance"])
	}
}

func TestCompareRejectsInvalidEmbedding(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{}), Options{})

	resp := post(t, router, "/compare", imagePart(photo(t, color.Gray{Y: 40})), embeddingPart("not-json"))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	out := decode(t, resp)
	if out["match"] != false {
		t.Fatalf("expected match false, got %v", out)
	}
	if msg, _ := out["error"].(string); !strings.HasPrefix(msg, "Invalid embedding format: ") {
		t.Fatalf("unexpected error: %q", msg)
	}
	if _, present := out["distance"]; present {
		t.Fatalf("unexpected distance on failure: %v", out)
	}
}

func TestMissingFieldsAreCallerErrors(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{}), Options{})

	tests := []struct {
		name    string
		path    string
		parts   []formPart
		message string
	}{
		{"extract without image", "/extract", []formPart{embeddingPart("[1]")}, "No image file provided"},
		{"compare without image", "/compare", []formPart{embeddingPart("[1]")}, "No image file provided"},
		{"compare without embedding", "/compare", []formPart{imagePart(photo(t, color.Gray{Y: 40}))}, "No embedding provided"},
		{"extract empty image", "/extract", []formPart{imagePart(nil)}, "Empty image"},
		{"compare empty image", "/compare", []formPart{imagePart(nil), embeddingPart("[1]")}, "Empty image"},
		{"compare empty image without embedding", "/compare", []formPart{imagePart(nil)}, "Empty image"},
		{"compare empty image with malformed embedding", "/compare", []formPart{imagePart(nil), embeddingPart("not-json")}, "Empty image"},
		{"compare empty image with short embedding", "/compare", []formPart{imagePart(nil), embeddingPart("[1,2]")}, "Empty image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, router, tt.path, tt.parts...)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
			}
			if got := decode(t, resp)["error"]; got != tt.message {
				t.Fatalf("expected %q, got %v", tt.message, got)
			}
		})
	}
}

func TestGarbageImageIsNeverInternal(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{}), Options{})

	reference, err := json.Marshal(make([]float64, dimension))
	if err != nil {
		t.Fatalf("failed to marshal reference: %v", err)
	}

	for _, path := range []string{"/extract", "/compare"} {
		resp := post(t, router, path, imagePart([]byte("definitely not an image")), embeddingPart(string(reference)))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusBadRequest, resp.Code)
		}
		if msg, _ := decode(t, resp)["error"].(string); !strings.HasPrefix(msg, "Invalid image") {
			t.Fatalf("%s: unexpected error %q", path, msg)
		}
	}
}

func TestEncoderFailureIsInternal(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{encodeErr: errors.New("model unavailable")}), Options{})

	resp := post(t, router, "/extract", imagePart(photo(t, color.Gray{Y: 40})))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, resp.Code)
	}
	if msg, _ := decode(t, resp)["error"].(string); !strings.HasPrefix(msg, "Exception: ") {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestRejectsLargeUpload(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{}), Options{MaxUploadBytes: 1024})

	resp := post(t, router, "/extract", imagePart(bytes.Repeat([]byte("a"), 4096)))

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
	out := decode(t, resp)
	if out["success"] != false || out["error"] != "Image exceeds maximum upload size" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestPanicIsAnsweredInEndpointShape(t *testing.T) {
	router := newRouter(panickingService{}, Options{})

	resp := post(t, router, "/compare", imagePart(photo(t, color.Gray{Y: 40})), embeddingPart("[1]"))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, resp.Code)
	}
	out := decode(t, resp)
	if out["match"] != false || out["error"] != "Exception: boom" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{}), Options{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "kiosk-42")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if got := resp.Header().Get(RequestIDHeader); got != "kiosk-42" {
		t.Fatalf("expected inbound request id, got %q", got)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestOutcomeRoutes(t *testing.T) {
	outcomes := &stubOutcomes{outcome: &usecase.Outcome{RequestID: "req-1", Operation: usecase.OperationExtract, Result: usecase.ResultOK}}
	router := newRouter(newFaceService(&faceModel{}), Options{Outcomes: outcomes})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/outcomes/req-1", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if got := decode(t, resp)["request_id"]; got != "req-1" {
		t.Fatalf("unexpected request id: %v", got)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/summary", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}

	outcomes.err = usecase.ErrOutcomeNotFound
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/outcomes/missing/duplicates", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
}

func TestOutcomeRoutesAbsentWithoutAudit(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{}), Options{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/summary", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(newFaceService(&faceModel{}), Options{MetricsHandler: promhttp.Handler()})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "face_service_http_requests_total") {
		t.Fatal("expected http request counter in exposition")
	}
}
