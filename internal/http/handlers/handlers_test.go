package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mrchevyceleb/vibecanvas/internal/infra"
	"github.com/mrchevyceleb/vibecanvas/internal/library"
	"github.com/mrchevyceleb/vibecanvas/internal/middleware"
	"github.com/mrchevyceleb/vibecanvas/internal/orchestrator"
	"github.com/mrchevyceleb/vibecanvas/internal/promptenhance"
	"github.com/mrchevyceleb/vibecanvas/internal/providers"
	"github.com/mrchevyceleb/vibecanvas/internal/providers/keygate"
	"github.com/mrchevyceleb/vibecanvas/internal/signedurl"
	"github.com/mrchevyceleb/vibecanvas/internal/storage"
)

type stubGenerator struct {
	result orchestrator.Result
	err    error
	last   orchestrator.Request
}

func (s *stubGenerator) Generate(_ context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	s.last = req
	return s.result, s.err
}

type stubLibrary struct {
	records  map[string]library.Record
	uploaded []library.Record
}

func (s *stubLibrary) List(_ context.Context, _ string, _ library.Filter) ([]library.Record, error) {
	var out []library.Record
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubLibrary) Get(_ context.Context, userID, id string) (library.Record, error) {
	rec, ok := s.records[id]
	if !ok || rec.UserID != userID {
		return library.Record{}, library.ErrNotFound
	}
	return rec, nil
}

func (s *stubLibrary) Blob(ctx context.Context, userID, id string) (library.Record, storage.Object, error) {
	rec, err := s.Get(ctx, userID, id)
	if err != nil {
		return library.Record{}, storage.Object{}, err
	}
	return rec, storage.Object{Data: []byte{1}, ContentType: "image/png"}, nil
}

func (s *stubLibrary) Upload(_ context.Context, userID, folderID, kind, mimeType string, data []byte) (library.Record, error) {
	rec := library.Record{ID: "up1", UserID: userID, FolderID: folderID, MediaKind: kind, StorageKey: "users/u/up1.png"}
	s.uploaded = append(s.uploaded, rec)
	return rec, nil
}

func (s *stubLibrary) Duplicate(ctx context.Context, userID, id string) (library.Record, error) {
	rec, err := s.Get(ctx, userID, id)
	if err != nil {
		return library.Record{}, err
	}
	rec.ID = rec.ID + "-copy"
	return rec, nil
}

func (s *stubLibrary) Move(ctx context.Context, userID, id, _ string) error {
	_, err := s.Get(ctx, userID, id)
	return err
}

func (s *stubLibrary) ToggleFavorite(ctx context.Context, userID, id string) (bool, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return false, err
	}
	return true, nil
}

func (s *stubLibrary) Delete(_ context.Context, _ string, ids []string) error {
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func (s *stubLibrary) CreateFolder(_ context.Context, userID, name string) (library.Folder, error) {
	return library.Folder{ID: "f1", UserID: userID, Name: name}, nil
}

func (s *stubLibrary) ListFolders(context.Context, string) ([]library.Folder, error) {
	return nil, nil
}

type stubURLs struct {
	err         error
	invalidated []string
}

func (s *stubURLs) Resolve(_ context.Context, key, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if key == "" {
		return "", signedurl.ErrNoAsset
	}
	return "https://signed.example/" + key, nil
}

func (s *stubURLs) Invalidate(key string) { s.invalidated = append(s.invalidated, key) }

type stubCreds struct{ tokens map[string]string }

func (s *stubCreds) Token(_ context.Context, provider string) (string, error) {
	return s.tokens[provider], nil
}

func (s *stubCreds) SetToken(_ context.Context, provider, token string) error {
	s.tokens[provider] = token
	return nil
}

type listAdapter struct {
	id         string
	credential string
	kind       providers.MediaKind
	configured bool
}

func (l listAdapter) Descriptor() providers.Descriptor {
	return providers.Descriptor{ID: l.id, Name: l.id, Credential: l.credential, Kind: l.kind}
}
func (l listAdapter) Configured() bool { return l.configured }
func (l listAdapter) Normalize(req providers.GenerateRequest) providers.GenerateRequest {
	return req
}
func (l listAdapter) Generate(context.Context, providers.GenerateRequest, providers.ProgressFunc) ([]providers.MediaItem, error) {
	return nil, nil
}

const testUser = "u1"

func newTestApp(gen *stubGenerator, lib *stubLibrary) *App {
	logger := infra.Logger(zerolog.New(io.Discard))
	return &App{
		Registry: providers.NewRegistry(
			listAdapter{id: "img1", kind: providers.MediaKindImage, configured: true},
			listAdapter{id: "vid1", kind: providers.MediaKindVideo},
		),
		Generator:   gen,
		Library:     lib,
		URLs:        &stubURLs{},
		Credentials: &stubCreds{tokens: map[string]string{}},
		Enhancer:    promptenhance.NewStaticEnhancer(),
		Logger:      &logger,
	}
}

func authedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.ContextWithUserID(req.Context(), testUser))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestGenerateHappyPath(t *testing.T) {
	gen := &stubGenerator{result: orchestrator.Result{Records: []library.Record{{ID: "r1", Provider: "img1"}}}}
	app := newTestApp(gen, &stubLibrary{})

	rec := httptest.NewRecorder()
	app.Generate(rec, authedRequest(http.MethodPost, "/v1/generations",
		`{"mode":"single","providerId":"img1","prompt":"a cat","aspectRatio":"16:9"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gen.last.ProviderID != "img1" || gen.last.Generate.Prompt != "a cat" {
		t.Fatalf("request not forwarded: %+v", gen.last)
	}
	var body orchestrator.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Records) != 1 || body.Records[0].ID != "r1" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestGenerateErrorMapping(t *testing.T) {
	cases := []struct {
		kind providers.FailureKind
		want int
	}{
		{providers.FailValidation, http.StatusBadRequest},
		{providers.FailNotConfigured, http.StatusBadRequest},
		{providers.FailCredential, http.StatusUnauthorized},
		{providers.FailContentPolicy, http.StatusUnprocessableEntity},
		{providers.FailRetrieval, http.StatusBadGateway},
		{providers.FailProvider, http.StatusBadGateway},
	}
	for _, tc := range cases {
		gen := &stubGenerator{err: providers.NewError(tc.kind, "p", "upstream says no")}
		app := newTestApp(gen, &stubLibrary{})
		rec := httptest.NewRecorder()
		app.Generate(rec, authedRequest(http.MethodPost, "/v1/generations", `{"prompt":"x","providerId":"img1"}`))
		if rec.Code != tc.want {
			t.Errorf("kind %s: status = %d, want %d", tc.kind, rec.Code, tc.want)
		}
		var body map[string]string
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body["message"] != "upstream says no" {
			t.Errorf("kind %s: message = %q, want upstream message verbatim", tc.kind, body["message"])
		}
	}
}

func TestGenerateRequiresAuth(t *testing.T) {
	app := newTestApp(&stubGenerator{}, &stubLibrary{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader(`{"prompt":"x"}`))
	app.Generate(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGenerateInlineSourceImage(t *testing.T) {
	gen := &stubGenerator{}
	app := newTestApp(gen, &stubLibrary{})
	rec := httptest.NewRecorder()
	app.Generate(rec, authedRequest(http.MethodPost, "/v1/generations",
		`{"prompt":"x","providerId":"img1","sourceImage":{"dataUrl":"data:image/jpeg;base64,AQID"}}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	src := gen.last.Generate.SourceImage
	if src == nil || src.MIME != "image/jpeg" || len(src.Data) != 3 {
		t.Fatalf("source image not decoded: %+v", src)
	}
}

func TestProvidersListIncludesUnconfigured(t *testing.T) {
	app := newTestApp(&stubGenerator{}, &stubLibrary{})
	rec := httptest.NewRecorder()
	app.Providers(rec, httptest.NewRequest(http.MethodGet, "/v1/providers", nil))

	var body struct {
		Providers []providerView `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(body.Providers))
	}
	byID := map[string]providerView{}
	for _, p := range body.Providers {
		byID[p.ID] = p
	}
	if !byID["img1"].Configured || byID["vid1"].Configured {
		t.Fatalf("configured flags wrong: %+v", byID)
	}
}

func TestMediaURLNoAsset(t *testing.T) {
	lib := &stubLibrary{records: map[string]library.Record{
		"m1": {ID: "m1", UserID: testUser, StorageKey: ""},
	}}
	app := newTestApp(&stubGenerator{}, lib)
	rec := httptest.NewRecorder()
	req := withURLParam(authedRequest(http.MethodGet, "/v1/media/m1/url", ""), "id", "m1")
	app.MediaURL(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "no_asset" {
		t.Fatalf("error code = %q, want no_asset", body["error"])
	}
}

func TestMediaURLResolves(t *testing.T) {
	lib := &stubLibrary{records: map[string]library.Record{
		"m1": {ID: "m1", UserID: testUser, StorageKey: "users/u1/m1.png"},
	}}
	app := newTestApp(&stubGenerator{}, lib)
	rec := httptest.NewRecorder()
	req := withURLParam(authedRequest(http.MethodGet, "/v1/media/m1/url", ""), "id", "m1")
	app.MediaURL(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["url"] != "https://signed.example/users/u1/m1.png" {
		t.Fatalf("url = %q", body["url"])
	}
}

func TestMediaDeleteInvalidatesURLs(t *testing.T) {
	lib := &stubLibrary{records: map[string]library.Record{
		"m1": {ID: "m1", UserID: testUser, StorageKey: "users/u1/m1.png"},
	}}
	app := newTestApp(&stubGenerator{}, lib)
	urls := app.URLs.(*stubURLs)

	rec := httptest.NewRecorder()
	app.MediaDelete(rec, authedRequest(http.MethodPost, "/v1/media/delete", `{"ids":["m1"]}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(urls.invalidated) != 1 || urls.invalidated[0] != "users/u1/m1.png" {
		t.Fatalf("invalidated = %v", urls.invalidated)
	}
}

func TestMediaUploadDecodesDataURL(t *testing.T) {
	lib := &stubLibrary{records: map[string]library.Record{}}
	app := newTestApp(&stubGenerator{}, lib)
	rec := httptest.NewRecorder()
	app.MediaUpload(rec, authedRequest(http.MethodPost, "/v1/media/uploads",
		`{"dataUrl":"data:image/png;base64,AQID","folderId":"f9"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(lib.uploaded) != 1 || lib.uploaded[0].FolderID != "f9" {
		t.Fatalf("uploaded = %+v", lib.uploaded)
	}
}

func TestIntegrationSetKey(t *testing.T) {
	app := newTestApp(&stubGenerator{}, &stubLibrary{})
	creds := app.Credentials.(*stubCreds)

	rec := httptest.NewRecorder()
	req := withURLParam(authedRequest(http.MethodPut, "/v1/integrations/img1/key", `{"apiKey":"sk-new"}`), "provider", "img1")
	app.IntegrationSetKey(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if creds.tokens["img1"] != "sk-new" {
		t.Fatalf("token not stored: %v", creds.tokens)
	}

	rec = httptest.NewRecorder()
	req = withURLParam(authedRequest(http.MethodPut, "/v1/integrations/nope/key", `{"apiKey":"x"}`), "provider", "nope")
	app.IntegrationSetKey(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown provider status = %d, want 400", rec.Code)
	}
}

func TestPromptEnhance(t *testing.T) {
	app := newTestApp(&stubGenerator{}, &stubLibrary{})

	rec := httptest.NewRecorder()
	app.PromptEnhance(rec, authedRequest(http.MethodPost, "/v1/prompts/enhance",
		`{"prompt":"a red fox","mediaKind":"image"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Prompt     string   `json:"prompt"`
		Alternates []string `json:"alternates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Prompt == "" || body.Prompt == "a red fox" {
		t.Fatalf("prompt not enhanced: %q", body.Prompt)
	}
	if len(body.Alternates) == 0 {
		t.Fatalf("no alternates returned")
	}

	rec = httptest.NewRecorder()
	app.PromptEnhance(rec, authedRequest(http.MethodPost, "/v1/prompts/enhance", `{"prompt":"  "}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty prompt status = %d, want 400", rec.Code)
	}
}

func TestMediaExport(t *testing.T) {
	lib := &stubLibrary{records: map[string]library.Record{
		"m1": {ID: "m1", UserID: testUser, StorageKey: "users/u1/m1.png"},
		"m2": {ID: "m2", UserID: testUser, StorageKey: "users/u1/m2.png"},
	}}
	app := newTestApp(&stubGenerator{}, lib)

	rec := httptest.NewRecorder()
	app.MediaExport(rec, authedRequest(http.MethodPost, "/v1/media/export", `{"ids":["m1","m2"]}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content type = %q", ct)
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("archive files = %d, want 2", len(zr.File))
	}

	rec = httptest.NewRecorder()
	app.MediaExport(rec, authedRequest(http.MethodPost, "/v1/media/export", `{"ids":["missing"]}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing id status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.MediaExport(rec, authedRequest(http.MethodPost, "/v1/media/export", `{"ids":[]}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty ids status = %d, want 400", rec.Code)
	}
}

func TestIntegrationKeyReachesGate(t *testing.T) {
	logger := infra.Logger(zerolog.New(io.Discard))
	creds := &stubCreds{tokens: map[string]string{}}
	app := &App{
		Registry: providers.NewRegistry(
			listAdapter{id: "gen-image-pro", credential: "gemini", kind: providers.MediaKindImage, configured: true},
		),
		Credentials: creds,
		Logger:      &logger,
	}

	rec := httptest.NewRecorder()
	req := withURLParam(authedRequest(http.MethodPut, "/v1/integrations/gen-image-pro/key", `{"apiKey":"sk-db"}`), "provider", "gen-image-pro")
	app.IntegrationSetKey(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if creds.tokens["gemini"] != "sk-db" {
		t.Fatalf("key not stored under credential namespace: %v", creds.tokens)
	}

	// The gate looks keys up by credential name; the stored key must make
	// the provider usable with no env key set.
	gate := keygate.New("gemini", "", creds, nil)
	key, err := gate.EnsureAvailable(context.Background())
	if err != nil {
		t.Fatalf("EnsureAvailable: %v", err)
	}
	if key != "sk-db" {
		t.Fatalf("key = %q, want sk-db", key)
	}
}

func TestMediaExportRequiresAuth(t *testing.T) {
	app := newTestApp(&stubGenerator{}, &stubLibrary{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/media/export", strings.NewReader(`{"ids":["m1"]}`))
	app.MediaExport(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
