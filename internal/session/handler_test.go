package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"podcast-listener/internal/platform/logger"
)

func newTestRouter(t *testing.T) (*chi.Mux, *Service) {
	t.Helper()
	svc := NewService(NewInMemoryRepository(), newFakeBackend(), Options{Logger: logger.Discard()})
	t.Cleanup(func() { _ = svc.CloseAll(context.Background()) })
	h := NewHandler(svc, logger.Discard())
	r := chi.NewRouter()
	h.Routes(r)
	return r, svc
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	rec := do(r, http.MethodPost, "/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("setup: expected 201, got %d", rec.Code)
	}
	var resp idResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.ID == "" {
		t.Fatalf("setup: bad create body %q", rec.Body.String())
	}
	return resp.ID
}

func TestHandler_Create(t *testing.T) {
	r, svc := newTestRouter(t)
	id := createSession(t, r)

	if _, err := svc.Get(ID(id)); err != nil {
		t.Errorf("created session not registered: %v", err)
	}
}

func TestHandler_Get(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createSession(t, r)

	rec := do(r, http.MethodGet, "/sessions/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(snap.ID) != id || snap.Transcript.LastTranscribedIndex != -1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestHandler_Get_not_found(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(r, http.MethodGet, "/sessions/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_LoadEpisode(t *testing.T) {
	r, svc := newTestRouter(t)
	id := createSession(t, r)

	t.Run("accepted", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/sessions/"+id+"/episode", `{"file_id": "ep.mp3"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
		sess, _ := svc.Get(ID(id))
		waitFor(t, sess, "prefetch", transcribed(0, 1))
	})

	t.Run("missing_file_id", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/sessions/"+id+"/episode", `{"file_id": " "}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("not_json", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/sessions/"+id+"/episode", "not json")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown_session", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/sessions/nope/episode", `{"file_id": "ep.mp3"}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestHandler_Tick(t *testing.T) {
	r, svc := newTestRouter(t)
	id := createSession(t, r)

	t.Run("accepted", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/sessions/"+id+"/tick", `{"current_time": 12.5, "playing": true}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
		snap, _ := svc.Snapshot(ID(id))
		if snap.Window.CurrentTime != 12.5 || !snap.Playing {
			t.Errorf("snapshot after tick: time=%v playing=%v", snap.Window.CurrentTime, snap.Playing)
		}
	})

	t.Run("missing_time", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/sessions/"+id+"/tick", `{"playing": true}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("negative_time", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/sessions/"+id+"/tick", `{"current_time": -1}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHandler_SubmitResearch(t *testing.T) {
	r, svc := newTestRouter(t)
	id := createSession(t, r)

	t.Run("accepted", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/sessions/"+id+"/research", `{"text": "Light travels at 300,000 km/s"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
		var resp idResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if !strings.HasPrefix(resp.ID, "manual-") {
			t.Errorf("item id = %q", resp.ID)
		}
		sess, _ := svc.Get(ID(id))
		snap := waitFor(t, sess, "manual research", researchSettled(1))
		if snap.Research[0].ID != resp.ID {
			t.Errorf("queued id = %q, want %q", snap.Research[0].ID, resp.ID)
		}
	})

	t.Run("blank_text", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/sessions/"+id+"/research", `{"text": "  "}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		snap, _ := svc.Snapshot(ID(id))
		if len(snap.Research) != 1 {
			t.Errorf("blank text should not queue an item, have %d", len(snap.Research))
		}
	})
}

func TestHandler_Delete(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createSession(t, r)

	rec := do(r, http.MethodDelete, "/sessions/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = do(r, http.MethodDelete, "/sessions/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
	rec = do(r, http.MethodPost, "/sessions/"+id+"/tick", `{"current_time": 1}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("tick after delete: expected 404, got %d", rec.Code)
	}
}

func TestHandler_Watch(t *testing.T) {
	r, _ := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()
	id := createSession(t, r)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	rec := do(r, http.MethodPost, "/sessions/"+id+"/episode", `{"file_id": "ep.mp3"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("load episode: expected 202, got %d", rec.Code)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var snap Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(snap.Transcript.TranscribedIndices) == 2 {
			break
		}
	}

	// Closing the session ends the watch with a close frame.
	rec = do(r, http.MethodDelete, "/sessions/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Errorf("expected normal closure, got %v", err)
			}
			break
		}
	}
}

func TestHandler_Watch_not_found(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(r, http.MethodGet, "/sessions/nope/watch", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
