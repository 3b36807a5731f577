package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-relay/internal/audit"
	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/http/middleware"
	"github.com/tbourn/go-chat-relay/internal/services"
)

// ---------- stubs ----------

type stubRelay struct {
	got []services.SendRequest
	out *services.Outcome
	err error
}

func (s *stubRelay) SendValidated(_ context.Context, req services.SendRequest) (*services.Outcome, error) {
	s.got = append(s.got, req)
	if s.err != nil {
		return nil, s.err
	}
	out := *s.out
	return &out, nil
}

type remembered struct {
	user, key, messageID string
	status               int
	ttl                  time.Duration
}

type stubMsgSvc struct {
	items     []domain.Message
	total     int64
	listErr   error
	count     int64
	latest    *time.Time
	statsErr  error
	replay    map[string]*domain.Message // "user|key"
	remembers []remembered

	gotPage, gotPageSize int
}

func (s *stubMsgSvc) ListInbox(_ context.Context, _ string, page, pageSize int) ([]domain.Message, int64, error) {
	s.gotPage, s.gotPageSize = page, pageSize
	return s.items, s.total, s.listErr
}

func (s *stubMsgSvc) InboxStats(context.Context, string) (int64, *time.Time, error) {
	return s.count, s.latest, s.statsErr
}

func (s *stubMsgSvc) Replay(_ context.Context, userID, key string) (*domain.Message, bool) {
	m, ok := s.replay[userID+"|"+key]
	return m, ok
}

func (s *stubMsgSvc) Remember(_ context.Context, userID, key, messageID string, status int, ttl time.Duration) error {
	s.remembers = append(s.remembers, remembered{userID, key, messageID, status, ttl})
	return nil
}

type stubConvs struct {
	partners []string
	err      error
}

func (s stubConvs) ListPartners(context.Context, string) ([]string, error) { return s.partners, s.err }

type stubAudit struct {
	recs []audit.Record
	err  error
	gotN int
}

func (s *stubAudit) Recent(_ context.Context, n int) ([]audit.Record, error) {
	s.gotN = n
	return s.recs, s.err
}

// ---------- plumbing ----------

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/messages", h.SendMessage)
	r.GET("/messages", h.ListMessages)
	r.GET("/conversations", h.ListConversations)
	r.GET("/audit", h.ListAudit)
	return r
}

func doJSON(r http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// ---------- POST /messages ----------

func TestSendMessage_CreatedAndNormalized(t *testing.T) {
	relay := &stubRelay{out: &services.Outcome{MessageID: "m1", Persisted: true, Delivered: true, Hash: "abc"}}
	h := New(relay, &stubMsgSvc{}, stubConvs{}, nil)
	r := newRouter(h)

	// "e" + combining acute normalizes to U+00E9 under NFC.
	w := doJSON(r, http.MethodPost, "/messages", SendMessageRequest{
		Sender: " alice ", Receiver: "bob", Message: "cafe\u0301\r\nline2\rline3",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	resp := decode[SendMessageResponse](t, w)
	if resp.MessageID != "m1" || !resp.Persisted || resp.Delivered == nil || !*resp.Delivered || resp.Hash != "abc" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(relay.got) != 1 {
		t.Fatalf("relay calls = %d", len(relay.got))
	}
	got := relay.got[0]
	if got.Sender != "alice" || got.Receiver != "bob" {
		t.Fatalf("identities not trimmed: %+v", got)
	}
	if got.Message != "caf\u00e9\nline2\nline3" {
		t.Fatalf("message not normalized: %q", got.Message)
	}
}

func TestSendMessage_OfflineReportsNotDelivered(t *testing.T) {
	relay := &stubRelay{out: &services.Outcome{MessageID: "m2", Persisted: true}}
	r := newRouter(New(relay, &stubMsgSvc{}, stubConvs{}, nil))

	w := doJSON(r, http.MethodPost, "/messages", SendMessageRequest{Sender: "alice", Receiver: "carol", Message: "hi"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[SendMessageResponse](t, w)
	if resp.Delivered == nil || *resp.Delivered {
		t.Fatalf("delivered should be present and false: %s", w.Body.String())
	}
}

func TestSendMessage_BadRequests(t *testing.T) {
	relay := &stubRelay{err: fmt.Errorf("%w: receiver is required", services.ErrValidation)}
	h := New(relay, &stubMsgSvc{}, stubConvs{}, nil)
	h.MaxMessageRunes = 3
	r := newRouter(h)

	// invalid JSON
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid json: status = %d", w.Code)
	}

	// too long at the edge, relay not called
	w = doJSON(r, http.MethodPost, "/messages", SendMessageRequest{Sender: "a", Receiver: "b", Message: "abcd"}, nil)
	if w.Code != http.StatusBadRequest || len(relay.got) != 0 {
		t.Fatalf("too long: status = %d calls=%d", w.Code, len(relay.got))
	}

	// service validation error
	w = doJSON(r, http.MethodPost, "/messages", SendMessageRequest{Sender: "a", Message: "x"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("validation: status = %d", w.Code)
	}
	er := decode[ErrorResponse](t, w)
	if er.Code != ErrCodeBadRequest {
		t.Fatalf("code = %q", er.Code)
	}
}

func TestSendMessage_PersistFailureIs500(t *testing.T) {
	relay := &stubRelay{out: &services.Outcome{
		MessageID:  "m3",
		PersistErr: fmt.Errorf("%w: disk full", services.ErrPersistence),
		Delivered:  true,
	}}
	msgs := &stubMsgSvc{}
	r := newRouter(New(relay, msgs, stubConvs{}, nil))

	w := doJSON(r, http.MethodPost, "/messages", SendMessageRequest{Sender: "a", Receiver: "b", Message: "x"},
		map[string]string{middleware.HeaderIdempotencyKey: "k-1"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if er := decode[ErrorResponse](t, w); er.Code != ErrCodeSendFailed {
		t.Fatalf("code = %q", er.Code)
	}
	if len(msgs.remembers) != 0 {
		t.Fatalf("failed send must not be remembered")
	}
}

func TestSendMessage_UnexpectedServiceError(t *testing.T) {
	relay := &stubRelay{err: errors.New("boom")}
	r := newRouter(New(relay, &stubMsgSvc{}, stubConvs{}, nil))
	w := doJSON(r, http.MethodPost, "/messages", SendMessageRequest{Sender: "a", Receiver: "b", Message: "x"}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSendMessage_IdempotentRememberAndReplay(t *testing.T) {
	relay := &stubRelay{out: &services.Outcome{MessageID: "m4", Persisted: true, Encrypted: true}}
	msgs := &stubMsgSvc{replay: map[string]*domain.Message{}}
	h := New(relay, msgs, stubConvs{}, nil)
	h.IdempotencyTTL = time.Hour
	r := newRouter(h)
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "k-42", middleware.HeaderUserID: "alice"}
	body := SendMessageRequest{Sender: "alice", Receiver: "bob", Message: "x"}

	w := doJSON(r, http.MethodPost, "/messages", body, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("first: status = %d", w.Code)
	}
	if len(msgs.remembers) != 1 {
		t.Fatalf("remembers = %d", len(msgs.remembers))
	}
	rm := msgs.remembers[0]
	if rm.user != "alice" || rm.key != "k-42" || rm.messageID != "m4" || rm.status != http.StatusCreated || rm.ttl != time.Hour {
		t.Fatalf("unexpected remember: %+v", rm)
	}

	msgs.replay["alice|k-42"] = &domain.Message{ID: "m4", Encrypted: true, ContentHash: "h"}
	w = doJSON(r, http.MethodPost, "/messages", body, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("replay: status = %d", w.Code)
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("missing replay header")
	}
	resp := decode[SendMessageResponse](t, w)
	if resp.MessageID != "m4" || !resp.Encrypted || !resp.Persisted || resp.Delivered != nil || resp.Hash != "h" {
		t.Fatalf("unexpected replay body: %s", w.Body.String())
	}
	if len(relay.got) != 1 {
		t.Fatalf("replay must not relay again, calls = %d", len(relay.got))
	}
}

// ---------- GET /messages ----------

func TestListMessages_PaginationAndETag(t *testing.T) {
	latest := time.UnixMilli(1700000000123)
	msgs := &stubMsgSvc{
		items:  []domain.Message{{ID: "1", Sender: "alice", Receiver: "bob", Payload: "hi"}},
		total:  45,
		count:  45,
		latest: &latest,
	}
	r := newRouter(New(&stubRelay{}, msgs, stubConvs{}, nil))

	w := doJSON(r, http.MethodGet, "/messages?username=bob&page=2&page_size=20", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	wantTag := `W/"inbox:bob:45:1700000000123"`
	if got := w.Header().Get("ETag"); got != wantTag {
		t.Fatalf("etag = %q want %q", got, wantTag)
	}
	resp := decode[ListMessagesResponse](t, w)
	if len(resp.Messages) != 1 || resp.Messages[0].Payload != "hi" {
		t.Fatalf("messages = %+v", resp.Messages)
	}
	p := resp.Pagination
	if p.Page != 2 || p.PageSize != 20 || p.Total != 45 || p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination = %+v", p)
	}

	w = doJSON(r, http.MethodGet, "/messages?username=bob", nil, map[string]string{"If-None-Match": wantTag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional: status = %d", w.Code)
	}
}

func TestListMessages_ClampsAndErrors(t *testing.T) {
	msgs := &stubMsgSvc{statsErr: errors.New("stats down")}
	r := newRouter(New(&stubRelay{}, msgs, stubConvs{}, nil))

	if w := doJSON(r, http.MethodGet, "/messages", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing username: status = %d", w.Code)
	}

	w := doJSON(r, http.MethodGet, "/messages?username=bob&page=-1&page_size=1000", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("ETag") != "" {
		t.Fatalf("no ETag expected when stats fail")
	}
	if msgs.gotPage != 1 || msgs.gotPageSize != 100 {
		t.Fatalf("clamped to (%d,%d)", msgs.gotPage, msgs.gotPageSize)
	}

	msgs.listErr = errors.New("db down")
	w = doJSON(r, http.MethodGet, "/messages?username=bob", nil, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("list error: status = %d", w.Code)
	}
	if er := decode[ErrorResponse](t, w); er.Code != ErrCodeListFailed {
		t.Fatalf("code = %q", er.Code)
	}
}

// ---------- GET /conversations ----------

func TestListConversations(t *testing.T) {
	r := newRouter(New(&stubRelay{}, &stubMsgSvc{}, stubConvs{partners: []string{"bob", "carol"}}, nil))

	w := doJSON(r, http.MethodGet, "/conversations?username=alice", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Body.String(); got != `[{"conversation_partner":"bob"},{"conversation_partner":"carol"}]` {
		t.Fatalf("body = %s", got)
	}

	if w := doJSON(r, http.MethodGet, "/conversations?username=%20", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("blank username: status = %d", w.Code)
	}
}

func TestListConversations_EmptyAndError(t *testing.T) {
	r := newRouter(New(&stubRelay{}, &stubMsgSvc{}, stubConvs{}, nil))
	w := doJSON(r, http.MethodGet, "/conversations?username=nobody", nil, nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("empty: status=%d body=%s", w.Code, w.Body.String())
	}

	r = newRouter(New(&stubRelay{}, &stubMsgSvc{}, stubConvs{err: errors.New("x")}, nil))
	if w := doJSON(r, http.MethodGet, "/conversations?username=a", nil, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("error: status = %d", w.Code)
	}
}

// ---------- GET /audit ----------

func TestListAudit(t *testing.T) {
	rec := audit.NewRecord("alice", "bob", "hi", 1700000000000)
	a := &stubAudit{recs: []audit.Record{rec}}
	r := newRouter(New(&stubRelay{}, &stubMsgSvc{}, stubConvs{}, a))

	w := doJSON(r, http.MethodGet, "/audit", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if a.gotN != defaultAuditLimit {
		t.Fatalf("default limit = %d", a.gotN)
	}
	resp := decode[AuditTailResponse](t, w)
	if len(resp.Records) != 1 || resp.Records[0].Hash != audit.Digest("hi") {
		t.Fatalf("records = %+v", resp.Records)
	}

	doJSON(r, http.MethodGet, "/audit?limit=100000", nil, nil)
	if a.gotN != maxAuditLimit {
		t.Fatalf("capped limit = %d", a.gotN)
	}

	a.recs, a.err = nil, errors.New("redis down")
	if w := doJSON(r, http.MethodGet, "/audit", nil, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("error: status = %d", w.Code)
	}
}

func TestListAudit_DisabledAndEmpty(t *testing.T) {
	r := newRouter(New(&stubRelay{}, &stubMsgSvc{}, stubConvs{}, nil))
	w := doJSON(r, http.MethodGet, "/audit", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if er := decode[ErrorResponse](t, w); er.Code != ErrCodeAuditDisabled {
		t.Fatalf("code = %q", er.Code)
	}

	r = newRouter(New(&stubRelay{}, &stubMsgSvc{}, stubConvs{}, &stubAudit{}))
	w = doJSON(r, http.MethodGet, "/audit", nil, nil)
	if w.Code != http.StatusOK || w.Body.String() != `{"records":[]}` {
		t.Fatalf("empty: status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestSanitizeMessage(t *testing.T) {
	if got := sanitizeMessage("a\r\nb\rc"); got != "a\nb\nc" {
		t.Fatalf("got %q", got)
	}
	if got := sanitizeMessage("  keep  "); got != "  keep  " {
		t.Fatalf("whitespace should be kept, got %q", got)
	}
}
