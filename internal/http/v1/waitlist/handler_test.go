package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/janisto/waitlist/internal/api"
	applog "github.com/janisto/waitlist/internal/platform/logging"
	"github.com/janisto/waitlist/internal/platform/metrics"
	appmiddleware "github.com/janisto/waitlist/internal/platform/middleware"
	"github.com/janisto/waitlist/internal/platform/respond"
	waitlistsvc "github.com/janisto/waitlist/internal/service/waitlist"
)

// countingStore records calls and optionally fails all of them.
type countingStore struct {
	*waitlistsvc.MemoryStore
	calls atomic.Int32
	err   error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: waitlistsvc.NewMemoryStore()}
}

func (s *countingStore) Get(ctx context.Context, email string) (*waitlistsvc.Signup, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.MemoryStore.Get(ctx, email)
}

func (s *countingStore) Insert(ctx context.Context, signup *waitlistsvc.Signup) error {
	s.calls.Add(1)
	if s.err != nil {
		return s.err
	}
	return s.MemoryStore.Insert(ctx, signup)
}

func (s *countingStore) Update(ctx context.Context, email string, params waitlistsvc.UpdateParams) (*waitlistsvc.Signup, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.MemoryStore.Update(ctx, email, params)
}

func newTestRouter(store waitlistsvc.Store, opts Options) chi.Router {
	respond.Install()

	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())
	router.Use(
		appmiddleware.RequestID(),
		chimiddleware.RealIP,
		applog.RequestLogger(),
		respond.Recoverer(),
	)
	cfg := huma.DefaultConfig("WaitlistTest", "test")
	cfg.CreateHooks = nil
	api := humachi.New(router, cfg)

	svc := waitlistsvc.NewRegistrar(store, waitlistsvc.Options{
		MaxAttempts: 3,
		Timeout:     time.Second,
		Backoff:     time.Millisecond,
	})
	if opts.UseCases == nil {
		opts.UseCases = []string{"scripting", "research", "other"}
	}
	Register(api, svc, opts)
	return router
}

func post(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/waitlist", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &m); err != nil {
		t.Fatalf("json unmarshal: %v (body %q)", err, resp.Body.String())
	}
	return m
}

func assertSuccess(t *testing.T, resp *httptest.ResponseRecorder) {
	t.Helper()
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	m := decodeEnvelope(t, resp)
	if m["ok"] != true {
		t.Fatalf("expected ok true, got %v", m)
	}
	if len(m) != 1 {
		t.Fatalf("expected bare {ok:true}, got %v", m)
	}
}

func assertFailure(t *testing.T, resp *httptest.ResponseRecorder, status int, reason string) {
	t.Helper()
	if resp.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, resp.Code, resp.Body.String())
	}
	m := decodeEnvelope(t, resp)
	if m["ok"] != false {
		t.Fatalf("expected ok false, got %v", m)
	}
	if reason != "" && m["error"] != reason {
		t.Fatalf("expected error %q, got %v", reason, m["error"])
	}
	if s, _ := m["error"].(string); s == "" {
		t.Fatalf("expected non-empty error, got %v", m)
	}
}

func TestJoinCreatesSignup(t *testing.T) {
	store := newCountingStore()
	router := newTestRouter(store, Options{})

	resp := post(router, `{"email":"a@b.co","consent":true}`)

	assertSuccess(t, resp)
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected JSON content type, got %s", ct)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 signup, got %d", store.Len())
	}
}

func TestJoinInvalidEmail(t *testing.T) {
	store := newCountingStore()
	router := newTestRouter(store, Options{})

	resp := post(router, `{"email":"not-an-email","consent":true}`)

	assertFailure(t, resp, http.StatusBadRequest, "Invalid email")
	if store.calls.Load() != 0 {
		t.Fatalf("expected no store access, got %d calls", store.calls.Load())
	}
}

func TestJoinConsentRequired(t *testing.T) {
	store := newCountingStore()
	router := newTestRouter(store, Options{})

	resp := post(router, `{"email":"a@b.co","consent":false}`)

	assertFailure(t, resp, http.StatusBadRequest, "Consent is required")
	if store.Len() != 0 {
		t.Fatalf("expected no signup, got %d", store.Len())
	}
}

func TestJoinValidationReasons(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"empty body", ``, "Invalid request body"},
		{"malformed json", `{"email":`, "Invalid request body"},
		{"array body", `[]`, "Invalid request body"},
		{"missing consent with bad email", `{"email":"nope"}`, "Consent is required"},
		{"unknown use case", `{"email":"a@b.co","consent":true,"useCase":"gaming"}`, "Invalid use case"},
		{"name too long", `{"email":"a@b.co","consent":true,"name":"` + strings.Repeat("n", 201) + `"}`, "Name is too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(newCountingStore(), Options{})
			assertFailure(t, post(router, tt.body), http.StatusBadRequest, tt.reason)
		})
	}
}

func TestJoinIdempotent(t *testing.T) {
	store := newCountingStore()
	router := newTestRouter(store, Options{})

	assertSuccess(t, post(router, `{"email":"a@b.co","consent":true,"name":"Jane"}`))
	assertSuccess(t, post(router, `{"email":"a@b.co","consent":true,"name":"Jane"}`))

	if store.Len() != 1 {
		t.Fatalf("expected 1 signup, got %d", store.Len())
	}
}

func TestJoinCaseInsensitive(t *testing.T) {
	store := newCountingStore()
	router := newTestRouter(store, Options{})

	assertSuccess(t, post(router, `{"email":"Jane@Example.com","consent":true}`))
	assertSuccess(t, post(router, `{"email":"jane@example.com","consent":true}`))

	if store.Len() != 1 {
		t.Fatalf("expected 1 signup, got %d", store.Len())
	}
	if _, err := store.MemoryStore.Get(context.Background(), "jane@example.com"); err != nil {
		t.Fatalf("expected normalized key, got %v", err)
	}
}

func TestJoinUpdatesName(t *testing.T) {
	store := newCountingStore()
	router := newTestRouter(store, Options{})
	ctx := context.Background()

	assertSuccess(t, post(router, `{"email":"a@b.co","consent":true,"name":"Jane"}`))
	first, err := store.MemoryStore.Get(ctx, "a@b.co")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertSuccess(t, post(router, `{"email":"a@b.co","consent":true,"name":"Janet"}`))
	second, err := store.MemoryStore.Get(ctx, "a@b.co")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.Name != "Janet" {
		t.Errorf("expected name Janet, got %q", second.Name)
	}
	if second.ID != first.ID || !second.SubmittedAt.Equal(first.SubmittedAt) {
		t.Errorf("id or submittedAt changed: %+v -> %+v", first, second)
	}
}

func TestJoinConcurrentSameEmail(t *testing.T) {
	store := newCountingStore()
	router := newTestRouter(store, Options{})

	const n = 25
	codes := make([]int, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			codes[i] = post(router, `{"email":"Race@Example.com","consent":true}`).Code
		}()
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 signup, got %d", store.Len())
	}
}

func TestJoinStorageUnavailable(t *testing.T) {
	store := newCountingStore()
	store.err = errors.New("connection refused by db-primary.internal:5432")
	router := newTestRouter(store, Options{})

	resp := post(router, `{"email":"a@b.co","consent":true}`)

	assertFailure(t, resp, http.StatusServiceUnavailable, waitlistsvc.StorageUnavailable.Reason())
	if strings.Contains(resp.Body.String(), "db-primary") {
		t.Fatalf("response leaks storage details: %s", resp.Body.String())
	}
	if store.calls.Load() != 3 {
		t.Fatalf("expected 3 bounded attempts, got %d", store.calls.Load())
	}
	if store.Len() != 0 {
		t.Fatalf("expected no signup, got %d", store.Len())
	}
}

func TestJoinEmptyBody(t *testing.T) {
	for _, contentType := range []string{"", "application/json", "application/cbor"} {
		t.Run("content type "+contentType, func(t *testing.T) {
			store := newCountingStore()
			router := newTestRouter(store, Options{})

			req := httptest.NewRequest(http.MethodPost, "/waitlist", http.NoBody)
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			assertFailure(t, resp, http.StatusBadRequest, "Invalid request body")
			if n := store.calls.Load(); n != 0 {
				t.Fatalf("expected no store calls, got %d", n)
			}
		})
	}
}

func TestJoinRequestBodyOptional(t *testing.T) {
	cfg := huma.DefaultConfig("WaitlistTest", "test")
	cfg.CreateHooks = nil
	humaAPI := humachi.New(chi.NewRouter(), cfg)
	Register(humaAPI, waitlistsvc.NewRegistrar(newCountingStore(), waitlistsvc.Options{}), Options{})

	path := humaAPI.OpenAPI().Paths["/waitlist"]
	if path == nil || path.Post == nil || path.Post.RequestBody == nil {
		t.Fatal("expected POST /waitlist with a request body")
	}
	if path.Post.RequestBody.Required {
		t.Fatal("expected request body to be optional")
	}
}

func TestJoinBodyTooLarge(t *testing.T) {
	router := newTestRouter(newCountingStore(), Options{MaxBodyBytes: 32})

	resp := post(router, `{"email":"a@b.co","consent":true,"name":"`+strings.Repeat("x", 64)+`"}`)

	assertFailure(t, resp, http.StatusRequestEntityTooLarge, "")
}

func TestJoinCBOR(t *testing.T) {
	store := newCountingStore()
	router := newTestRouter(store, Options{})

	body, err := cbor.Marshal(map[string]any{"email": "a@b.co", "consent": true, "useCase": "Research"})
	if err != nil {
		t.Fatalf("cbor marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/waitlist", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/cbor")
	req.Header.Set("Accept", "application/cbor")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/cbor" {
		t.Fatalf("expected application/cbor, got %s", ct)
	}
	var env api.Envelope
	if err := cbor.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("cbor unmarshal: %v", err)
	}
	if !env.OK {
		t.Fatalf("expected ok true, got %+v", env)
	}
	got, err := store.MemoryStore.Get(context.Background(), "a@b.co")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UseCase != "research" {
		t.Fatalf("expected use case research, got %q", got.UseCase)
	}
}

func TestJoinInvalidCBOR(t *testing.T) {
	router := newTestRouter(newCountingStore(), Options{})

	req := httptest.NewRequest(http.MethodPost, "/waitlist", strings.NewReader("\xff\x00"))
	req.Header.Set("Content-Type", "application/cbor")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assertFailure(t, resp, http.StatusBadRequest, "Invalid request body")
}

func TestJoinRecordsMetrics(t *testing.T) {
	m := metrics.New()
	router := newTestRouter(newCountingStore(), Options{Metrics: m})

	assertSuccess(t, post(router, `{"email":"a@b.co","consent":true}`))
	assertFailure(t, post(router, `{"email":"a@b.co"}`), http.StatusBadRequest, "")

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	outcomes := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "waitlist_submissions_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "outcome" {
					outcomes[l.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	if outcomes["created"] != 1 || outcomes["consent_required"] != 1 {
		t.Fatalf("unexpected outcome counts: %v", outcomes)
	}
}

func TestStatusProbe(t *testing.T) {
	store := newCountingStore()
	router := newTestRouter(store, Options{})

	req := httptest.NewRequest(http.MethodGet, "/waitlist", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assertSuccess(t, resp)
	if store.calls.Load() != 0 {
		t.Fatalf("expected no store access, got %d calls", store.calls.Load())
	}
}

func TestStatusProbeIgnoresStoreOutage(t *testing.T) {
	store := newCountingStore()
	store.err = errors.New("down")
	router := newTestRouter(store, Options{})

	req := httptest.NewRequest(http.MethodGet, "/waitlist", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assertSuccess(t, resp)
}

func TestWaitlistMethodNotAllowed(t *testing.T) {
	router := newTestRouter(newCountingStore(), Options{})

	req := httptest.NewRequest(http.MethodDelete, "/waitlist", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assertFailure(t, resp, http.StatusMethodNotAllowed, "Method not allowed")
	allow := resp.Header().Get("Allow")
	if !strings.Contains(allow, http.MethodGet) || !strings.Contains(allow, http.MethodPost) {
		t.Fatalf("expected Allow to list GET and POST, got %q", allow)
	}
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(newCountingStore(), Options{})

	req := httptest.NewRequest(http.MethodGet, "/wait-list", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assertFailure(t, resp, http.StatusNotFound, "Not found")
}
