package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"npud/internal/manager"
	"npud/internal/store"
	"npud/pkg/types"
)

type mockService struct {
	models   []types.OpenAIModel
	resident []types.ResidentModel
	status   manager.Status
	history  []store.Record

	resp   *types.ChatCompletionsResponse
	chunks []*types.ChatCompletionsResponse
	err    error

	gotReq   *types.ChatCompletionsRequest
	gotLimit int
}

func (m *mockService) Models() []types.OpenAIModel     { return m.models }
func (m *mockService) Resident() []types.ResidentModel { return m.resident }
func (m *mockService) Status() manager.Status          { return m.status }

func (m *mockService) History(limit int) ([]store.Record, error) {
	m.gotLimit = limit
	return m.history, nil
}

func (m *mockService) ChatCompletions(ctx context.Context, req *types.ChatCompletionsRequest, out manager.ChunkWriter) (*types.ChatCompletionsResponse, error) {
	m.gotReq = req
	if req.Stream {
		for _, c := range m.chunks {
			if err := out.WriteChunk(c); err != nil {
				return nil, err
			}
		}
		return nil, m.err
	}
	return m.resp, m.err
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestModelsEndpoint(t *testing.T) {
	svc := &mockService{models: []types.OpenAIModel{{ID: "m1", Object: "model", OwnedBy: "acme"}}}
	rec := doJSON(t, NewMux(svc), http.MethodGet, "/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list types.ModelListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 1 || list.Data[0].ID != "m1" {
		t.Fatalf("list = %+v", list)
	}
}

func TestChatCompletionsBlocking(t *testing.T) {
	fin := types.FinishStop
	svc := &mockService{resp: &types.ChatCompletionsResponse{
		ID:     "chatcmpl-abc",
		Object: types.ObjectChatCompletion,
		Model:  "m1",
		Choices: []types.Choice{{
			Message:      &types.Message{Role: types.RoleAssistant, Content: types.Str("hi there")},
			FinishReason: &fin,
		}},
	}}
	rec := doJSON(t, NewMux(svc), http.MethodPost, "/v1/chat/completions",
		`{"model":"m1","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp types.ChatCompletionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "chatcmpl-abc" || resp.Choices[0].Message.Content.Flatten() != "hi there" {
		t.Fatalf("resp = %+v", resp)
	}
	if svc.gotReq == nil || svc.gotReq.Model != "m1" || svc.gotReq.Stream {
		t.Fatalf("service saw %+v", svc.gotReq)
	}
}

func TestChatCompletionsStreamSSE(t *testing.T) {
	fin := types.FinishStop
	svc := &mockService{chunks: []*types.ChatCompletionsResponse{
		{ID: "c1", Object: types.ObjectChatCompletionChunk, Model: "m1",
			Choices: []types.Choice{{Delta: &types.Message{Role: types.RoleAssistant, Content: types.Str("tok")}}}},
		{ID: "c1", Object: types.ObjectChatCompletionChunk, Model: "m1",
			Choices: []types.Choice{{Delta: &types.Message{}, FinishReason: &fin}}},
	}}
	rec := doJSON(t, NewMux(svc), http.MethodPost, "/v1/chat/completions",
		`{"model":"m1","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	events := 0
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			events++
			var chunk types.ChatCompletionsResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
				t.Fatalf("chunk decode: %v (%q)", err, line)
			}
		}
	}
	if events != 2 {
		t.Fatalf("events = %d, want 2\n%s", events, body)
	}
}

func TestChatCompletionsErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", manager.ErrModelNotFound("m1"), http.StatusBadRequest, "model_not_found"},
		{"busy", manager.ErrBusy(), http.StatusServiceUnavailable, "busy"},
		{"not loaded", manager.ErrModelNotLoaded("m1"), http.StatusBadRequest, "resource_not_found"},
		{"slot timeout", manager.ErrSlotTimeout(), http.StatusServiceUnavailable, "slot_timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockService{err: tc.err}
			rec := doJSON(t, NewMux(svc), http.MethodPost, "/v1/chat/completions",
				`{"model":"m1","messages":[{"role":"user","content":"hi"}]}`)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var envelope types.OpenAIError
			if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if envelope.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", envelope.Code, tc.wantCode)
			}
			if envelope.Message == "" {
				t.Fatal("empty error message")
			}
		})
	}
}

func TestChatCompletionsValidation(t *testing.T) {
	mux := NewMux(&mockService{})

	rec := doJSON(t, mux, http.MethodPost, "/v1/chat/completions", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"x"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing model status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("x=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("content type status = %d", w.Code)
	}
}

func TestChatCompletionsEmptyMessagesStream(t *testing.T) {
	fin := types.FinishStop
	svc := &mockService{chunks: []*types.ChatCompletionsResponse{
		{ID: "c1", Object: types.ObjectChatCompletionChunk, Model: "m1",
			Choices: []types.Choice{{Delta: &types.Message{}, FinishReason: &fin}}},
	}}
	rec := doJSON(t, NewMux(svc), http.MethodPost, "/v1/chat/completions",
		`{"model":"m1","stream":true,"messages":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"finish_reason":"stop"`) {
		t.Fatalf("stream did not end in stop:\n%s", rec.Body.String())
	}
	if svc.gotReq == nil || len(svc.gotReq.Messages) != 0 {
		t.Fatalf("service saw %+v", svc.gotReq)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	svc := &mockService{history: []store.Record{{
		ID:         "chatcmpl-abc",
		Model:      "m1",
		Created:    time.Unix(1700000000, 0),
		Streamed:   true,
		Prompt:     "user: hi",
		Completion: "hello",
		Finish:     "stop",
		Duration:   1500 * time.Millisecond,
	}}}
	mux := NewMux(svc)

	rec := doJSON(t, mux, http.MethodGet, "/api/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if svc.gotLimit != 50 {
		t.Fatalf("default limit = %d, want 50", svc.gotLimit)
	}
	var body struct {
		Completions []struct {
			ID         string `json:"id"`
			Model      string `json:"model"`
			Finish     string `json:"finish"`
			DurationMS int64  `json:"duration_ms"`
		} `json:"completions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Completions) != 1 || body.Completions[0].ID != "chatcmpl-abc" ||
		body.Completions[0].Finish != "stop" || body.Completions[0].DurationMS != 1500 {
		t.Fatalf("body = %+v", body)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/history?limit=7", "")
	if rec.Code != http.StatusOK || svc.gotLimit != 7 {
		t.Fatalf("limit=7: status = %d, limit seen = %d", rec.Code, svc.gotLimit)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/history?limit=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=0 status = %d, want 400", rec.Code)
	}
	rec = doJSON(t, mux, http.MethodGet, "/api/history?limit=junk", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=junk status = %d, want 400", rec.Code)
	}
}

func TestHealthAndStatusEndpoints(t *testing.T) {
	svc := &mockService{status: manager.Status{State: "idle", Models: 3}}
	mux := NewMux(svc)

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		rec := doJSON(t, mux, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}
	rec := doJSON(t, mux, http.MethodHead, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("HEAD /health status = %d", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/status = %d", rec.Code)
	}
	var st manager.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != "idle" || st.Models != 3 {
		t.Fatalf("status = %+v", st)
	}

	rec = doJSON(t, mux, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
}

func TestOllamaCompatEndpoints(t *testing.T) {
	svc := &mockService{
		models:   []types.OpenAIModel{{ID: "m1"}},
		resident: []types.ResidentModel{{Name: "m1", Model: "m1"}},
	}
	mux := NewMux(svc)

	rec := doJSON(t, mux, http.MethodGet, "/api/version", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "version") {
		t.Fatalf("/api/version = %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/tags", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "m1") {
		t.Fatalf("/api/tags = %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/ps", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "m1") {
		t.Fatalf("/api/ps = %d %s", rec.Code, rec.Body.String())
	}

	for _, path := range []string{"/api/push", "/api/pull"} {
		rec = doJSON(t, mux, http.MethodPost, path, `{"model":"m1"}`)
		if rec.Code != http.StatusNotImplemented {
			t.Fatalf("%s = %d, want 501", path, rec.Code)
		}
	}
}
