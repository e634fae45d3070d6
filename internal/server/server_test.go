package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/kelpfield/riggen/pkg/build"
	"github.com/kelpfield/riggen/pkg/layout"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := New(context.Background(), Config{Addr: ":0", Store: "memory"}, log.New(io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return ts
}

func do(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("NewRequest(%s %s) error = %v", method, url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Code
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestLayoutLifecycle(t *testing.T) {
	ts := newTestServer(t)
	lay := layout.Layout{
		"arm_l": {"wrist": {Position: [3]float64{15, 15, 0}}},
	}
	body, err := json.Marshal(lay)
	if err != nil {
		t.Fatalf("marshal layout: %v", err)
	}

	resp := do(t, http.MethodPut, ts.URL+"/api/layouts/pose", bytes.NewReader(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var ack struct {
		Name    string `json:"name"`
		Modules int    `json:"modules"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode PUT body: %v", err)
	}
	if ack.Name != "pose" || ack.Modules != 1 {
		t.Errorf("PUT ack = %+v, want name pose with 1 module", ack)
	}

	resp = do(t, http.MethodGet, ts.URL+"/api/layouts", nil)
	var list struct {
		Layouts []string `json:"layouts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list body: %v", err)
	}
	if !reflect.DeepEqual(list.Layouts, []string{"pose"}) {
		t.Errorf("layouts = %v, want [pose]", list.Layouts)
	}

	resp = do(t, http.MethodGet, ts.URL+"/api/layouts/pose", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var got layout.Layout
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode layout body: %v", err)
	}
	if !reflect.DeepEqual(got, lay) {
		t.Errorf("loaded layout = %v, want %v", got, lay)
	}

	resp = do(t, http.MethodDelete, ts.URL+"/api/layouts/pose", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	resp = do(t, http.MethodGet, ts.URL+"/api/layouts/pose", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	if code := errorCode(t, resp); code != "NOT_FOUND" {
		t.Errorf("error code = %q, want NOT_FOUND", code)
	}
}

func TestLayoutPutRejectsBadJSON(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, http.MethodPut, ts.URL+"/api/layouts/pose", strings.NewReader("{"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if code := errorCode(t, resp); code != "INVALID_INPUT" {
		t.Errorf("error code = %q, want INVALID_INPUT", code)
	}
}

func TestBuildRig(t *testing.T) {
	ts := newTestServer(t)
	manifest := `{
		"name": "ignored",
		"modules": [
			{"kind": "spine", "joints": 3},
			{"kind": "arm", "side": "l", "parent": "spine", "role": "chest"}
		]
	}`
	resp := do(t, http.MethodPost, ts.URL+"/api/rigs/hero/build", strings.NewReader(manifest))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if hit := resp.Header.Get("X-Riggen-Cache"); hit != "miss" {
		t.Errorf("X-Riggen-Cache = %q, want miss on a first build", hit)
	}
	doc, err := build.ReadDocument(resp.Body)
	if err != nil {
		t.Fatalf("ReadDocument(response) error = %v", err)
	}
	if doc.Rig != "hero" {
		t.Errorf("document rig = %q, want the URL name hero", doc.Rig)
	}
	if len(doc.Joints) == 0 {
		t.Fatal("document has no joints")
	}
}

func TestBuildRigMirrors(t *testing.T) {
	ts := newTestServer(t)
	manifest := `{"modules": [
		{"kind": "spine"},
		{"kind": "arm", "side": "l", "parent": "spine", "role": "chest"}
	]}`
	resp := do(t, http.MethodPost, ts.URL+"/api/rigs/hero/build?mirror=true", strings.NewReader(manifest))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	doc, err := build.ReadDocument(resp.Body)
	if err != nil {
		t.Fatalf("ReadDocument(response) error = %v", err)
	}
	mirrored := false
	for _, j := range doc.Joints {
		if j.Module == "arm_r" {
			mirrored = true
			break
		}
	}
	if !mirrored {
		t.Error("mirror=true produced no arm_r joints")
	}
}

func TestBuildRigDOT(t *testing.T) {
	ts := newTestServer(t)
	manifest := `{"modules": [{"kind": "spine"}]}`
	resp := do(t, http.MethodPost, ts.URL+"/api/rigs/hero/build?format=dot", strings.NewReader(manifest))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/vnd.graphviz" {
		t.Errorf("Content-Type = %q, want text/vnd.graphviz", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(data), "digraph skeleton") {
		t.Errorf("body = %q, want a skeleton digraph", data)
	}
}

func TestBuildRigErrors(t *testing.T) {
	ts := newTestServer(t)
	valid := `{"modules": [{"kind": "spine"}]}`
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"no modules", "/api/rigs/x/build", `{"modules": []}`, http.StatusBadRequest, "INVALID_MANIFEST"},
		{"malformed body", "/api/rigs/x/build", `{`, http.StatusBadRequest, "INVALID_MANIFEST"},
		{"unknown format", "/api/rigs/x/build?format=gif", valid, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad mirror flag", "/api/rigs/x/build?mirror=maybe", valid, http.StatusBadRequest, "INVALID_INPUT"},
		{"missing layout", "/api/rigs/x/build?layout=nowhere", valid, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.URL+tt.path, strings.NewReader(tt.body))
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if code := errorCode(t, resp); code != tt.wantCode {
				t.Errorf("error code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestBuildRigUsesStoredLayout(t *testing.T) {
	ts := newTestServer(t)
	lay := layout.Layout{
		"spine": {"cog": {Position: [3]float64{0, 12, 0}}},
	}
	body, err := json.Marshal(lay)
	if err != nil {
		t.Fatalf("marshal layout: %v", err)
	}
	resp := do(t, http.MethodPut, ts.URL+"/api/layouts/tall", bytes.NewReader(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	manifest := `{"modules": [{"kind": "spine"}]}`
	resp = do(t, http.MethodPost, ts.URL+"/api/rigs/hero/build?layout=tall", strings.NewReader(manifest))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("build status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	doc, err := build.ReadDocument(resp.Body)
	if err != nil {
		t.Fatalf("ReadDocument(response) error = %v", err)
	}
	found := false
	for _, j := range doc.Joints {
		if j.Module == "spine" && j.Role == "cog" {
			found = true
			if j.Position[1] != 12 {
				t.Errorf("cog joint y = %v, want 12 from the stored layout", j.Position[1])
			}
		}
	}
	if !found {
		t.Error("no spine cog joint in document")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("RIGGEN_ADDR", ":9999")
	t.Setenv("RIGGEN_STORE", "memory")
	t.Setenv("RIGGEN_REDIS_ADDR", "redis:6379")
	t.Setenv("RIGGEN_REDIS_DB", "3")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("Addr = %q, want :9999", cfg.Addr)
	}
	if cfg.Store != "memory" {
		t.Errorf("Store = %q, want memory", cfg.Store)
	}
	if cfg.RedisAddr != "redis:6379" || cfg.RedisDB != 3 {
		t.Errorf("Redis config = %q/%d, want redis:6379/3", cfg.RedisAddr, cfg.RedisDB)
	}
}
