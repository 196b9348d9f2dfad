package web

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imgpress/internal/config"
	"imgpress/internal/hoststats"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log, _ := test.NewNullLogger()
	host := hoststats.Static{Stats: hoststats.Stats{AvailableMB: 4096, CPUCores: 4}}
	return NewServer(config.DefaultConfig(), log, host, nil)
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 12, 9))
	for i := 0; i < 12; i++ {
		img.Set(i, i%9, color.NRGBA{R: uint8(i * 20), A: 255})
	}
	path := filepath.Join(dir, name)
	if err := imaging.Save(img, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return rec, resp
}

func TestStatusIdle(t *testing.T) {
	s := newTestServer(t)
	rec, resp := do(t, s.Handler(), "GET", "/api/status", nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status %d, resp %+v", rec.Code, resp)
	}
	data := resp.Data.(map[string]interface{})
	if data["running"] != false {
		t.Fatalf("running = %v", data["running"])
	}
}

func TestCompressEndpoint(t *testing.T) {
	s := newTestServer(t)
	src := writePNG(t, t.TempDir(), "photo.png")

	rec, resp := do(t, s.Handler(), "POST", "/api/compress", map[string]interface{}{
		"path": src, "quality": 50, "format": "jpg",
	})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status %d, resp %+v", rec.Code, resp)
	}
	data := resp.Data.(map[string]interface{})
	want := filepath.Join(filepath.Dir(src), "photo_compressed.jpeg")
	if data["compressed_path"] != want {
		t.Fatalf("compressed_path = %v, want %s", data["compressed_path"], want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}

func TestCompressEndpointErrors(t *testing.T) {
	s := newTestServer(t)
	src := writePNG(t, t.TempDir(), "photo.png")

	tests := []struct {
		name  string
		body  interface{}
		code  int
		stage string
	}{
		{"missing path", map[string]interface{}{"quality": 50}, http.StatusBadRequest, ""},
		{"bad quality", map[string]interface{}{"path": src, "quality": 101}, http.StatusBadRequest, ""},
		{"missing file", map[string]interface{}{"path": src + ".nope"}, http.StatusUnprocessableEntity, "io"},
		{"unsupported", map[string]interface{}{"path": src, "format": "webp"}, http.StatusBadRequest, "unsupported_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, s.Handler(), "POST", "/api/compress", tt.body)
			if rec.Code != tt.code || resp.Success {
				t.Fatalf("status %d, resp %+v", rec.Code, resp)
			}
			if tt.stage != "" {
				data := resp.Data.(map[string]interface{})
				if data["stage"] != tt.stage {
					t.Fatalf("stage = %v, want %s", data["stage"], tt.stage)
				}
			}
		})
	}
}

func TestBatchValidation(t *testing.T) {
	s := newTestServer(t)
	for _, body := range []map[string]interface{}{
		{"paths": []string{}},
		{"paths": []string{"a.png"}, "format": "gif"},
		{"paths": []string{"a.png"}, "quality": -1},
	} {
		rec, resp := do(t, s.Handler(), "POST", "/api/batch", body)
		if rec.Code != http.StatusBadRequest || resp.Success {
			t.Fatalf("body %v: status %d, resp %+v", body, rec.Code, resp)
		}
	}
}

func TestBatchConflict(t *testing.T) {
	s := newTestServer(t)
	s.isRunning = true

	rec, _ := do(t, s.Handler(), "POST", "/api/batch", map[string]interface{}{"paths": []string{"a.png"}})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestUnknownBatch(t *testing.T) {
	s := newTestServer(t)
	rec, _ := do(t, s.Handler(), "GET", "/api/batch/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBatchOverWebSocket(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	for deadline := time.Now().Add(2 * time.Second); s.clientCount() == 0; {
		if time.Now().After(deadline) {
			t.Fatalf("websocket client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	dir := t.TempDir()
	writePNG(t, dir, "a.png")
	writePNG(t, dir, "b.png")
	missing := filepath.Join(dir, "missing.png")

	rec, resp := do(t, s.Handler(), "POST", "/api/batch", map[string]interface{}{
		"paths": []string{dir, missing}, "format": "png",
	})
	if rec.Code != http.StatusAccepted || !resp.Success {
		t.Fatalf("status %d, resp %+v", rec.Code, resp)
	}
	batchID := resp.Data.(map[string]interface{})["batch_id"].(string)

	progress := 0
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "batch_progress" {
			progress++
		}
		if msg.Type == "batch_completed" {
			break
		}
	}
	if progress != 3 {
		t.Fatalf("got %d progress messages, want 3", progress)
	}

	// the final state is published before batch_completed is broadcast
	rec, resp = do(t, s.Handler(), "GET", "/api/batch/"+batchID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := resp.Data.(map[string]interface{})
	outcomes := data["outcomes"].([]interface{})
	if len(outcomes) != 3 || data["running"] != false {
		t.Fatalf("batch data = %+v", data)
	}
	last := outcomes[2].(map[string]interface{})
	if last["path"] != missing || last["ok"] != false || last["stage"] != "io" {
		t.Fatalf("last outcome = %+v", last)
	}

	_, resp = do(t, s.Handler(), "GET", "/api/statistics", nil)
	counters := resp.Data.(map[string]interface{})["counters"].(map[string]interface{})
	if counters["compressed"] != float64(2) || counters["failed"] != float64(1) {
		t.Fatalf("counters = %+v", counters)
	}
}
