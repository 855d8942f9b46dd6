package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"navsync/internal/playback"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const testBase = "http://localhost/"

func newTestService(t *testing.T) *Service {
	t.Helper()
	base, _ := url.Parse(testBase)
	svc := NewService(NewInMemoryRepository(), Options{
		Playback:      playback.Config{Base: base, LoadTimeout: 3 * time.Second},
		FrameInterval: time.Millisecond,
		Remote:        RemoteOptions{PlayTimeout: 3 * time.Second, CameraTimeout: 3 * time.Second},
	}, testLogger(), nil)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })
	return svc
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func newTestHandler(t *testing.T) (*chi.Mux, *Service) {
	t.Helper()
	svc := newTestService(t)
	return newTestRouter(NewHandler(svc, testLogger(), nil)), svc
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, h http.Handler) View {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rec.Code)
	}
	var v View
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func TestHandler_CreateSession(t *testing.T) {
	r, _ := newTestHandler(t)
	rec := do(t, r, http.MethodPost, "/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var v View
	_ = json.NewDecoder(rec.Body).Decode(&v)
	if v.ID == "" || rec.Header().Get("Location") != "/sessions/"+string(v.ID) {
		t.Errorf("id=%q location=%q", v.ID, rec.Header().Get("Location"))
	}
	if v.State == nil || v.State.Mode != "standard" || v.State.Syncing || v.State.Generated {
		t.Errorf("unexpected initial state %+v", v.State)
	}
	if v.Connected {
		t.Error("no page is connected yet")
	}
}

func TestHandler_GetSession_not_found(t *testing.T) {
	r, _ := newTestHandler(t)
	if rec := do(t, r, http.MethodGet, "/sessions/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_Generate_requires_both_photos(t *testing.T) {
	r, _ := newTestHandler(t)
	v := createSession(t, r)
	path := "/sessions/" + string(v.ID)

	if rec := do(t, r, http.MethodPut, path+"/photos/current", `{"name":"lobby.jpg"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("select photo: expected 204, got %d", rec.Code)
	}
	rec := do(t, r, http.MethodPost, path+"/generate", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body errorBody
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Error != playback.ValidationNotice {
		t.Errorf("error = %q", body.Error)
	}

	rec = do(t, r, http.MethodGet, path, "")
	var got View
	_ = json.NewDecoder(rec.Body).Decode(&got)
	if got.State.Generated {
		t.Error("a rejected generate must not change state")
	}
}

func TestHandler_SelectPhoto(t *testing.T) {
	r, _ := newTestHandler(t)
	v := createSession(t, r)
	path := "/sessions/" + string(v.ID)

	tests := []struct {
		name   string
		method string
		slot   string
		body   string
		want   int
	}{
		{name: "unknown slot", method: http.MethodPut, slot: "origin", body: `{"name":"a.jpg"}`, want: http.StatusBadRequest},
		{name: "missing name", method: http.MethodPut, slot: "current", body: `{}`, want: http.StatusBadRequest},
		{name: "bad json", method: http.MethodPut, slot: "current", body: `{`, want: http.StatusBadRequest},
		{name: "current", method: http.MethodPut, slot: "current", body: `{"name":"lobby.jpg"}`, want: http.StatusNoContent},
		{name: "destination", method: http.MethodPut, slot: "destination", body: `{"name":"gate-12.jpg"}`, want: http.StatusNoContent},
		{name: "clear unknown slot", method: http.MethodDelete, slot: "origin", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, r, tt.method, path+"/photos/"+tt.slot, tt.body); rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	var got View
	_ = json.NewDecoder(do(t, r, http.MethodGet, path, "").Body).Decode(&got)
	if got.Photos.Current != "lobby.jpg" || got.Photos.Destination != "gate-12.jpg" || !got.State.Selection.Ready() {
		t.Errorf("photos=%+v selection=%+v", got.Photos, got.State.Selection)
	}

	if rec := do(t, r, http.MethodDelete, path+"/photos/destination", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("clear: expected 204, got %d", rec.Code)
	}
	_ = json.NewDecoder(do(t, r, http.MethodGet, path, "").Body).Decode(&got)
	if got.Photos.Destination != "" || got.State.Selection.DestinationPhotoSelected {
		t.Error("destination should be cleared")
	}
}

func TestHandler_SetMode_invalid(t *testing.T) {
	r, _ := newTestHandler(t)
	v := createSession(t, r)
	path := "/sessions/" + string(v.ID) + "/mode"

	if rec := do(t, r, http.MethodPut, path, `{"mode":"turbo"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mode: expected 400, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPut, path, `mode=realtime`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: expected 400, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPut, "/sessions/nope/mode", `{"mode":"realtime"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session: expected 404, got %d", rec.Code)
	}
}

func TestHandler_EndSession(t *testing.T) {
	r, svc := newTestHandler(t)
	v := createSession(t, r)
	path := "/sessions/" + string(v.ID)

	if rec := do(t, r, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("end: expected 204, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Errorf("end again: expected 204, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPut, path+"/mode", `{"mode":"realtime"}`); rec.Code != http.StatusConflict {
		t.Errorf("mode after end: expected 409, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, path+"/ws", ""); rec.Code != http.StatusConflict {
		t.Errorf("connect after end: expected 409, got %d", rec.Code)
	}

	rec := do(t, r, http.MethodGet, path, "")
	var got View
	_ = json.NewDecoder(rec.Body).Decode(&got)
	if rec.Code != http.StatusOK || !got.Ended || got.State != nil {
		t.Errorf("ended view: code=%d %+v", rec.Code, got)
	}
	if svc.ActiveSessionCount() != 0 {
		t.Errorf("active sessions = %d", svc.ActiveSessionCount())
	}
	if rec := do(t, r, http.MethodDelete, "/sessions/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("end unknown: expected 404, got %d", rec.Code)
	}
}

// fakePage answers commands the way a browser page would: loads complete
// immediately, play requests resolve and camera requests are granted with
// streams named cam-1, cam-2 and so on.
func fakePage(conn *websocket.Conn, seen chan<- Message, stop <-chan struct{}) {
	streams := 0
	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			close(seen)
			return
		}
		var replies []Report
		switch m.Op {
		case OpLoad:
			ready, paused, pos := playback.HaveEnoughData, true, 0.0
			replies = append(replies, Report{
				Type: TypeEvent, Channel: m.Channel, Event: playback.EventLoadedData,
				ReadyState: &ready, Paused: &paused, Position: &pos,
			})
		case OpPlay:
			paused := false
			replies = append(replies,
				Report{Type: TypePlayResult, ID: m.ID},
				Report{Type: TypeEvent, Channel: m.Channel, Event: playback.EventPlay, Paused: &paused},
			)
		case OpCameraRequest:
			streams++
			replies = append(replies, Report{Type: TypeCameraResult, ID: m.ID, Stream: "cam-" + strconv.Itoa(streams)})
		}
		for _, rep := range replies {
			if err := conn.WriteJSON(rep); err != nil {
				close(seen)
				return
			}
		}
		select {
		case seen <- m:
		case <-stop:
			return
		}
	}
}

func waitFor(t *testing.T, seen <-chan Message, what string, match func(Message) bool) Message {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case m, ok := <-seen:
			if !ok {
				t.Fatalf("page connection closed while waiting for %s", what)
				return Message{}
			}
			if match(m) {
				return m
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", what)
			return Message{}
		}
	}
}

func isOp(op string) func(Message) bool {
	return func(m Message) bool { return m.Op == op }
}

func connectPage(t *testing.T, srv *httptest.Server, id SessionID) (*websocket.Conn, <-chan Message) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + string(id) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	seen := make(chan Message, 1024)
	stop := make(chan struct{})
	go fakePage(conn, seen, stop)
	t.Cleanup(func() {
		close(stop)
		conn.Close()
	})
	return conn, seen
}

func getView(t *testing.T, srv *httptest.Server, id SessionID) View {
	t.Helper()
	resp, err := http.Get(srv.URL + "/sessions/" + string(id))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var v View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func send(t *testing.T, srv *httptest.Server, method, path, body string, want int) {
	t.Helper()
	req, _ := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected %d, got %d", method, path, want, resp.StatusCode)
	}
}

func TestHandler_Connect_generate_plays_both_channels(t *testing.T) {
	r, _ := newTestHandler(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	v := createSession(t, r)
	path := "/sessions/" + string(v.ID)
	_, seen := connectPage(t, srv, v.ID)

	waitFor(t, seen, "initial titles", func(m Message) bool {
		return m.Op == OpTitles && m.Nav == playback.TitleStandardNav
	})

	send(t, srv, http.MethodPut, path+"/photos/current", `{"name":"lobby.jpg"}`, http.StatusNoContent)
	send(t, srv, http.MethodPut, path+"/photos/destination", `{"name":"gate-12.jpg"}`, http.StatusNoContent)
	send(t, srv, http.MethodPost, path+"/generate", "", http.StatusAccepted)

	waitFor(t, seen, "scroll to output", isOp(OpScrollOutput))

	got := getView(t, srv, v.ID)
	if !got.Connected || got.State.Syncing || !got.State.Generated {
		t.Fatalf("view after generate: %+v", got)
	}
	wantSources := map[playback.ChannelID]string{
		playback.NavChannel: testBase + playback.DefaultStandardVisualNav,
		playback.MapChannel: testBase + playback.DefaultStandardIndoorMap,
	}
	for _, ch := range got.State.Channels {
		if ch.Source != wantSources[ch.ID] {
			t.Errorf("%s source = %q", ch.ID, ch.Source)
		}
		if ch.State != "playing" {
			t.Errorf("%s should autoplay on the first generation, got %s", ch.ID, ch.State)
		}
	}
}

func TestHandler_Connect_realtime_camera_lifecycle(t *testing.T) {
	r, _ := newTestHandler(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	v := createSession(t, r)
	path := "/sessions/" + string(v.ID)
	_, seen := connectPage(t, srv, v.ID)

	send(t, srv, http.MethodPut, path+"/mode", `{"mode":"realtime"}`, http.StatusNoContent)
	waitFor(t, seen, "camera stream bound to nav", func(m Message) bool {
		return m.Op == OpAttachStream && m.Channel == playback.NavChannel && m.Stream == "cam-1"
	})
	waitFor(t, seen, "realtime map source", func(m Message) bool {
		return m.Op == OpSetSource && m.Channel == playback.MapChannel &&
			m.URL == testBase+playback.DefaultRealtimeIndoorLocation
	})
	waitFor(t, seen, "map playback", func(m Message) bool {
		return m.Op == OpPlay && m.Channel == playback.MapChannel
	})

	send(t, srv, http.MethodPut, path+"/mode", `{"mode":"standard"}`, http.StatusNoContent)
	waitFor(t, seen, "camera released", func(m Message) bool {
		return m.Op == OpCameraStop && m.Stream == "cam-1"
	})

	send(t, srv, http.MethodPut, path+"/mode", `{"mode":"realtime"}`, http.StatusNoContent)
	waitFor(t, seen, "second camera stream", func(m Message) bool {
		return m.Op == OpAttachStream && m.Stream == "cam-2"
	})

	send(t, srv, http.MethodDelete, path, "", http.StatusNoContent)
	waitFor(t, seen, "camera released on end", func(m Message) bool {
		return m.Op == OpCameraStop && m.Stream == "cam-2"
	})
}

func TestHandler_Transport(t *testing.T) {
	r, _ := newTestHandler(t)
	v := createSession(t, r)
	path := "/sessions/" + string(v.ID) + "/transport"

	tests := []struct {
		name string
		body string
		want int
	}{
		{"pause", `{"channel":"map","action":"pause"}`, http.StatusNoContent},
		{"seek", `{"channel":"nav","action":"seek","position":4}`, http.StatusNoContent},
		{"unknown channel", `{"channel":"sidebar","action":"pause"}`, http.StatusBadRequest},
		{"unknown action", `{"channel":"nav","action":"rewind"}`, http.StatusBadRequest},
		{"negative seek", `{"channel":"nav","action":"seek","position":-2}`, http.StatusBadRequest},
		{"bad body", `action=pause`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, r, http.MethodPost, path, tt.body); rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	if rec := do(t, r, http.MethodPost, "/sessions/nope/transport", `{"channel":"nav","action":"play"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session: expected 404, got %d", rec.Code)
	}
}

func TestHandler_checkOrigin(t *testing.T) {
	base, _ := url.Parse("https://nav.example/app/")
	svc := NewService(NewInMemoryRepository(), Options{
		Playback:       playback.Config{Base: base},
		AllowedOrigins: []string{"https://Kiosk.example"},
	}, testLogger(), nil)
	h := NewHandler(svc, testLogger(), nil)

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://nav.example", true},
		{"https://kiosk.example", true},
		{"http://server.internal:8080", true},
		{"http://nav.example", false},
		{"https://evil.example", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://server.internal:8080/sessions/s1/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := h.checkOrigin(req); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestHandler_Connect_rejects_foreign_origin(t *testing.T) {
	r, _ := newTestHandler(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	v := createSession(t, r)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + string(v.ID) + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		conn.Close()
		t.Fatal("expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %v", resp)
	}
}
