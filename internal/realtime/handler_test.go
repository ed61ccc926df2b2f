package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T, cfg Config) (*Handler, *Manager) {
	t.Helper()
	mgr := newTestManager(t, cfg)
	return NewHandler(mgr, slog.New(slog.NewTextHandler(io.Discard, nil))), mgr
}

func TestNewHandler(t *testing.T) {
	mgr := newTestManager(t, Config{})
	h := NewHandler(mgr, nil)
	if h.manager != mgr {
		t.Error("handler should use provided manager")
	}
	if h.log == nil {
		t.Error("handler should have default logger")
	}
}

func TestHandler_iceServersResponse_Default(t *testing.T) {
	h, _ := newTestHandler(t, Config{})
	servers := h.iceServersResponse()
	if len(servers) != 1 {
		t.Fatalf("expected 1 default server, got %d", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("expected default STUN server, got %s", servers[0].URLs[0])
	}
}

func TestHandler_HandleICEServers(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, Config{
		ICEServers: []ICEServerConfig{{URLs: []string{"stun:stun.example.com"}}},
	})

	req := httptest.NewRequest(http.MethodGet, "/ice-servers", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleICEServers(c); err != nil {
		t.Fatalf("HandleICEServers should not error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var response map[string][]ICEServer
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(response["ice_servers"]) != 1 {
		t.Errorf("expected 1 server in response, got %d", len(response["ice_servers"]))
	}
}

func TestHandler_extractSDP(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantSDP     string
		wantJSON    bool
		wantErr     bool
	}{
		{"json", "application/json", `{"sdp":"v=0\r\n..."}`, "v=0\r\n...", true, false},
		{"empty content type", "", `{"sdp":"test-sdp"}`, "test-sdp", true, false},
		{"application/sdp", "application/sdp", "v=0\r\no=- 123 456 IN IP4 127.0.0.1\r\n", "v=0\r\no=- 123 456 IN IP4 127.0.0.1\r\n", false, false},
		{"invalid json", "application/json", "{nope", "", true, true},
		{"unsupported", "image/png", "x", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			h, _ := newTestHandler(t, Config{})

			req := httptest.NewRequest(http.MethodPost, "/cameras", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			sdp, isJSON, err := h.extractSDP(c)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sdp != tt.wantSDP {
				t.Errorf("expected %q, got %q", tt.wantSDP, sdp)
			}
			if isJSON != tt.wantJSON {
				t.Errorf("expected json=%v, got %v", tt.wantJSON, isJSON)
			}
		})
	}
}

func TestHandler_extractSDP_RespectsLimit(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, Config{MaxSDPSize: 4})

	req := httptest.NewRequest(http.MethodPost, "/cameras", strings.NewReader("v=0 and more"))
	req.Header.Set("Content-Type", "application/sdp")
	c := e.NewContext(req, httptest.NewRecorder())

	sdp, _, err := h.extractSDP(c)
	if err != nil {
		t.Fatal(err)
	}
	if sdp != "v=0 " {
		t.Errorf("expected truncated SDP, got %q", sdp)
	}
}

func TestHandler_HandleOffer_MissingSDP(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/cameras", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.HandleOffer(c)
	assertStatus(t, err, http.StatusBadRequest)
}

func TestHandler_HandleOffer_InvalidSDP(t *testing.T) {
	e := echo.New()
	h, mgr := newTestHandler(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/cameras", strings.NewReader("garbage"))
	req.Header.Set("Content-Type", "application/sdp")
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.HandleOffer(c)
	assertStatus(t, err, http.StatusBadRequest)
	if len(mgr.List()) != 0 {
		t.Error("no stream should be registered")
	}
}

func TestHandler_ListStreams(t *testing.T) {
	e := echo.New()
	h, mgr := newTestHandler(t, Config{})
	mgr.add(newStream("cam-1", nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/cameras", nil)
	rec := httptest.NewRecorder()
	if err := h.ListStreams(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}

	var out []StreamResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != "cam-1" || out[0].Ready {
		t.Errorf("unexpected response %+v", out)
	}
}

func TestHandler_CloseStream(t *testing.T) {
	e := echo.New()
	h, mgr := newTestHandler(t, Config{})
	mgr.add(newStream("cam-1", nil, nil))

	req := httptest.NewRequest(http.MethodDelete, "/cameras/cam-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("cam-1")

	if err := h.CloseStream(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodDelete, "/cameras/cam-1", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("cam-1")
	assertStatus(t, h.CloseStream(c), http.StatusNotFound)
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, Config{})
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"POST /api/v1/cameras":       false,
		"GET /api/v1/cameras":        false,
		"DELETE /api/v1/cameras/:id": false,
		"GET /api/v1/ice-servers":    false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	if httpErr.Code != status {
		t.Errorf("expected status %d, got %d", status, httpErr.Code)
	}
}
