package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"hsmtrust/internal/config"
	"hsmtrust/internal/domain"
	"hsmtrust/internal/infra/cesr"
	"hsmtrust/internal/usecase"
	"hsmtrust/pkg/keylog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRecordStore struct {
	records []string
}

func (s *fakeRecordStore) FetchAll(ctx context.Context) ([]string, error) {
	return s.records, nil
}

type fakeAuthorizationStore struct {
	envelopes map[string]string
}

func (s *fakeAuthorizationStore) Get(ctx context.Context, identity string) (string, error) {
	raw, ok := s.envelopes[identity]
	if !ok {
		return "", domain.ErrNotFound
	}
	return raw, nil
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *fakeAuditRepo) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.Seq = int64(len(r.events) + 1)
	r.events = append(r.events, event)
	return event, nil
}

func (r *fakeAuditRepo) ListByIdentity(ctx context.Context, identity string) ([]domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.AuditEvent{}
	for _, event := range r.events {
		if event.Identity == identity {
			out = append(out, event)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) types() []domain.AuditEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditEventType, len(r.events))
	for i, event := range r.events {
		out[i] = event.EventType
	}
	return out
}

type fakeLimiter struct {
	decision domain.RateLimitDecision
	err      error
}

func (l *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	return l.decision, l.err
}

type testEnv struct {
	server    *Server
	signer    *cesr.Secp256r1Signer
	prefix    string
	headID    string
	authStore *fakeAuthorizationStore
	audit     *fakeAuditRepo
}

func newTestEnv(t *testing.T, cfg config.Config, limiter domain.RateLimiter) testEnv {
	t.Helper()

	hasher := cesr.NewBlake3Hasher()
	first, err := cesr.NewSecp256r1Signer()
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	second, err := cesr.NewSecp256r1Signer()
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	next, err := cesr.NewSecp256r1Signer()
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	genesis, err := keylog.Genesis(first, second.Public(), usecase.PurposeKeyAuthorization, base, hasher)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	rotation, err := keylog.Rotate(genesis.Entry.Payload, second, next.Public(), base.Add(time.Minute), hasher)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	records := &fakeRecordStore{records: []string{genesis.Raw, rotation.Raw}}
	authorizations := &fakeAuthorizationStore{envelopes: map[string]string{}}
	auditRepo := &fakeAuditRepo{}

	cache := usecase.NewKeyCache(usecase.DefaultFreshnessWindow, nil)
	verify := usecase.NewKeyLogVerifier(records, hasher, cesr.NewSecp256r1Verifier(), cache)
	access := usecase.NewAccessKeyVerifier(authorizations, verify, nil)
	audit := usecase.NewAuditEmitter(auditRepo, nil)
	verify.Audit = audit

	server := NewServerWithDeps(cfg, ServerDeps{
		Verify:      verify,
		Access:      access,
		Audit:       audit,
		RateLimiter: limiter,
	})

	return testEnv{
		server:    server,
		signer:    second,
		prefix:    genesis.Entry.Payload.Prefix,
		headID:    rotation.Entry.Payload.ID,
		authStore: authorizations,
		audit:     auditRepo,
	}
}

func (e testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	resp := errorResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func (e testEnv) verifyBody(t *testing.T, message string) verifyRequest {
	t.Helper()
	signature, err := e.signer.Sign(message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return verifyRequest{
		Signature:       signature,
		HSMIdentity:     e.prefix,
		HSMGenerationID: e.headID,
		Message:         message,
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)

	w := env.do(t, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	resp := map[string]string{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["mode"] != "no-db" {
		t.Fatalf("unexpected health response: %v", resp)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)

	w := env.do(t, http.MethodPost, "/v1/verify", env.verifyBody(t, "attest this"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	resp := verifyResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Verified {
		t.Fatal("response not verified")
	}

	types := env.audit.types()
	want := []domain.AuditEventType{domain.AuditEventCacheRebuilt, domain.AuditEventKeyLogVerified}
	if len(types) != len(want) || types[0] != want[0] || types[1] != want[1] {
		t.Fatalf("audit events = %v, want %v", types, want)
	}
}

func TestVerifyEndpoint_BadSignature(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)

	body := env.verifyBody(t, "attest this")
	body.Message = "a different message"

	w := env.do(t, http.MethodPost, "/v1/verify", body)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "SIGNATURE_INVALID" {
		t.Fatalf("code = %s, want SIGNATURE_INVALID", resp.Code)
	}

	types := env.audit.types()
	if len(types) == 0 || types[len(types)-1] != domain.AuditEventKeyLogRejected {
		t.Fatalf("rejection not audited: %v", types)
	}
}

func TestVerifyEndpoint_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.server.r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "INVALID_JSON" {
		t.Fatalf("code = %s, want INVALID_JSON", resp.Code)
	}
}

func TestVerifyEndpoint_MissingFields(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)

	w := env.do(t, http.MethodPost, "/v1/verify", verifyRequest{Signature: "0Iabc"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "INVALID_REQUEST" {
		t.Fatalf("code = %s, want INVALID_REQUEST", resp.Code)
	}
}

func TestVerifyEndpoint_UnknownIdentity(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)

	body := env.verifyBody(t, "attest this")
	body.HSMIdentity = "unknown"
	body.HSMGenerationID = "unknown-gen"

	w := env.do(t, http.MethodPost, "/v1/verify", body)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "IDENTITY_NOT_FOUND" {
		t.Fatalf("code = %s, want IDENTITY_NOT_FOUND", resp.Code)
	}
}

func TestAccessKeyEndpoint(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)

	raw, err := keylog.AuthorizeAccessKey(env.signer, env.prefix, env.headID, "1AAIaccess", time.Now().Add(10*time.Minute))
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	env.authStore.envelopes["service-a"] = raw

	w := env.do(t, http.MethodGet, "/v1/access-keys/service-a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	resp := accessKeyResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Identity != "service-a" || resp.PublicKey != "1AAIaccess" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAccessKeyEndpoint_NotFound(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)

	w := env.do(t, http.MethodGet, "/v1/access-keys/absent", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "NOT_FOUND" {
		t.Fatalf("code = %s, want NOT_FOUND", resp.Code)
	}

	reads, err := env.audit.ListByIdentity(context.Background(), domain.AuditSystemIdentity)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reads) != 1 || reads[0].Result != domain.AuditResultFailure {
		t.Fatalf("failed read not audited: %+v", reads)
	}
}

func TestRateLimit_Denied(t *testing.T) {
	cfg := config.Config{RateLimitRequests: 5, RateLimitWindowSeconds: 60}
	resetAt := time.Now().Add(30 * time.Second)
	limiter := &fakeLimiter{decision: domain.RateLimitDecision{
		Allowed:   false,
		Limit:     5,
		Remaining: 0,
		ResetAt:   resetAt,
	}}
	env := newTestEnv(t, cfg, limiter)

	w := env.do(t, http.MethodPost, "/v1/verify", env.verifyBody(t, "attest this"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "RATE_LIMITED" {
		t.Fatalf("code = %s, want RATE_LIMITED", resp.Code)
	}
	if w.Header().Get("RateLimit-Limit") != "5" {
		t.Fatalf("RateLimit-Limit = %s", w.Header().Get("RateLimit-Limit"))
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
}

func TestRateLimit_FailOpen(t *testing.T) {
	cfg := config.Config{RateLimitRequests: 5, RateLimitWindowSeconds: 60}
	limiter := &fakeLimiter{err: fmt.Errorf("redis down")}
	env := newTestEnv(t, cfg, limiter)

	w := env.do(t, http.MethodPost, "/v1/verify", env.verifyBody(t, "attest this"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with limiter down", w.Code)
	}
}

func TestRateLimit_FailClosed(t *testing.T) {
	cfg := config.Config{RateLimitRequests: 5, RateLimitWindowSeconds: 60, RateLimitFailClosed: true}
	limiter := &fakeLimiter{err: fmt.Errorf("redis down")}
	env := newTestEnv(t, cfg, limiter)

	w := env.do(t, http.MethodPost, "/v1/verify", env.verifyBody(t, "attest this"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 with fail-closed limiter down", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "RATE_LIMIT_UNAVAILABLE" {
		t.Fatalf("code = %s, want RATE_LIMIT_UNAVAILABLE", resp.Code)
	}
}

func TestNoRoute(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)

	w := env.do(t, http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "NOT_FOUND" {
		t.Fatalf("code = %s, want NOT_FOUND", resp.Code)
	}
}
