package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RapLab/core/auth"
	"RapLab/core/live"
	"RapLab/core/lyrics"
	"RapLab/core/pipeline"
	"RapLab/core/synth"
	"RapLab/core/track"
	"RapLab/db"
	"RapLab/model"
	"RapLab/repository"

	"github.com/gorilla/websocket"
)

type testServer struct {
	*httptest.Server
	hub *live.Hub
}

func newTestServer(t *testing.T, ratePerMin int) *testServer {
	t.Helper()
	return newTestServerWithAudio(t, ratePerMin, synth.PlaceholderAudio{})
}

func newTestServerWithAudio(t *testing.T, ratePerMin int, audio synth.Generator) *testServer {
	t.Helper()
	gdb, err := db.OpenMemory(t.Name())
	if err != nil {
		t.Fatal(err)
	}

	hub := live.NewHub()
	go hub.Run()

	queue := repository.NewGormQueueRepository(gdb)
	store := track.NewStore(repository.NewGormTrackRepository(gdb), hub, nil)
	srv := New(Deps{
		Auth:         auth.NewService(repository.NewGormUserRepository(gdb), auth.NewIssuer("test-secret", time.Hour)),
		Store:        store,
		Orchestrator: pipeline.NewOrchestrator(store, queue, lyrics.TemplateLyrics{}, audio, nil),
		Queue:        queue,
		Hub:          hub,
		RatePerMin:   ratePerMin,
	})
	ts := httptest.NewServer(srv.Routes())

	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		hub.Stop()
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return &testServer{Server: ts, hub: hub}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status = %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

func (ts *testServer) guest(t *testing.T) *model.AuthResponse {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/auth/guest", "", nil)
	expectStatus(t, resp, http.StatusCreated)
	var out model.AuthResponse
	decode(t, resp, &out)
	return &out
}

func (ts *testServer) createTrack(t *testing.T, token string) string {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/tracks", token, model.CreateTrackRequest{
		Title: "Block Stories", Artist: model.ArtistBiggie, Prompt: "growing up in the city",
	})
	expectStatus(t, resp, http.StatusCreated)
	var out createTrackResponse
	decode(t, resp, &out)
	return out.ID
}

func TestTrackFlow(t *testing.T) {
	ts := newTestServer(t, 0)
	session := ts.guest(t)

	id := ts.createTrack(t, session.Token)

	resp := ts.do(t, http.MethodPost, "/api/tracks/"+id+"/lyrics", session.Token, model.GenerateLyricsRequest{
		Artist: model.ArtistBiggie, Prompt: "growing up in the city",
	})
	expectStatus(t, resp, http.StatusOK)
	var lr pipeline.LyricsResult
	decode(t, resp, &lr)
	if !lr.Success || !strings.Contains(lr.Lyrics, "Brooklyn") {
		t.Fatalf("lyrics = %+v", lr)
	}

	resp = ts.do(t, http.MethodPost, "/api/tracks/"+id+"/audio", session.Token, model.GenerateAudioRequest{
		Lyrics: lr.Lyrics, Artist: model.ArtistBiggie,
	})
	expectStatus(t, resp, http.StatusOK)
	var ar pipeline.AudioResult
	decode(t, resp, &ar)
	if ar.AudioURL != synth.PlaceholderURL {
		t.Errorf("audioUrl = %q", ar.AudioURL)
	}

	// 分享链接无需登录
	resp = ts.do(t, http.MethodGet, "/api/tracks/"+id, "", nil)
	expectStatus(t, resp, http.StatusOK)
	var got model.Track
	decode(t, resp, &got)
	if got.Status != model.StatusCompleted || got.AudioURL == nil {
		t.Errorf("track = %+v", got)
	}

	resp = ts.do(t, http.MethodGet, "/api/tracks", session.Token, nil)
	expectStatus(t, resp, http.StatusOK)
	var list []model.Track
	decode(t, resp, &list)
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("list = %+v", list)
	}

	resp = ts.do(t, http.MethodGet, "/api/queue/stats", session.Token, nil)
	expectStatus(t, resp, http.StatusOK)
	var stats model.QueueStats
	decode(t, resp, &stats)
	if stats[model.QueueDone] != 2 {
		t.Errorf("stats = %v", stats)
	}

	expectStatus(t, ts.do(t, http.MethodDelete, "/api/tracks/"+id, session.Token, nil), http.StatusNoContent)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/tracks/"+id, "", nil), http.StatusNotFound)
}

func TestListWithoutTokenIsEmpty(t *testing.T) {
	ts := newTestServer(t, 0)
	session := ts.guest(t)
	ts.createTrack(t, session.Token)

	resp := ts.do(t, http.MethodGet, "/api/tracks", "", nil)
	expectStatus(t, resp, http.StatusOK)
	var list []model.Track
	decode(t, resp, &list)
	if list == nil || len(list) != 0 {
		t.Errorf("list = %v, want []", list)
	}
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t, 0)
	owner := ts.guest(t)
	other := ts.guest(t)
	id := ts.createTrack(t, owner.Token)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{"create anonymous", http.MethodPost, "/api/tracks", "", model.CreateTrackRequest{Title: "t", Artist: model.ArtistTupac, Prompt: "p"}, http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/tracks", "garbage", nil, http.StatusUnauthorized},
		{"unknown artist", http.MethodPost, "/api/tracks", owner.Token, model.CreateTrackRequest{Title: "t", Artist: "nas", Prompt: "p"}, http.StatusBadRequest},
		{"blank title", http.MethodPost, "/api/tracks", owner.Token, model.CreateTrackRequest{Title: " ", Artist: model.ArtistTupac, Prompt: "p"}, http.StatusBadRequest},
		{"missing track", http.MethodGet, "/api/tracks/nope", "", nil, http.StatusNotFound},
		{"delete foreign", http.MethodDelete, "/api/tracks/" + id, other.Token, nil, http.StatusNotFound},
		{"generate foreign", http.MethodPost, "/api/tracks/" + id + "/lyrics", other.Token, model.GenerateLyricsRequest{Artist: model.ArtistTupac, Prompt: "p"}, http.StatusNotFound},
		{"queue stats anonymous", http.MethodGet, "/api/queue/stats", "", nil, http.StatusUnauthorized},
		{"weak password", http.MethodPost, "/api/auth/register", "", model.CredentialsRequest{Email: "a@b.io", Password: "x"}, http.StatusBadRequest},
		{"bad login", http.MethodPost, "/api/auth/login", "", model.CredentialsRequest{Email: "a@b.io", Password: "whatever1"}, http.StatusUnauthorized},
		{"media disabled", http.MethodGet, "/media/tracks/x.mp3", "", nil, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.do(t, tc.method, tc.path, tc.token, tc.body)
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}

	// 输入错误在步骤开始前拒绝，曲目保持原状态
	bad := []interface{}{
		model.GenerateLyricsRequest{Artist: "nas", Prompt: "p"},
		map[string]string{"prompt": "p"},
	}
	for _, body := range bad {
		expectStatus(t, ts.do(t, http.MethodPost, "/api/tracks/"+id+"/lyrics", owner.Token, body), http.StatusBadRequest)
	}
	expectStatus(t, ts.do(t, http.MethodPost, "/api/tracks/"+id+"/audio", owner.Token, map[string]string{"lyrics": "x"}), http.StatusBadRequest)

	resp := ts.do(t, http.MethodGet, "/api/tracks/"+id, "", nil)
	var got model.Track
	decode(t, resp, &got)
	if got.Status != model.StatusGeneratingLyrics {
		t.Errorf("status = %s, want generating_lyrics", got.Status)
	}
}

func TestClientDisconnectDoesNotFailTrack(t *testing.T) {
	ts := newTestServerWithAudio(t, 0, synth.PlaceholderAudio{Delay: time.Second})
	session := ts.guest(t)
	id := ts.createTrack(t, session.Token)

	resp := ts.do(t, http.MethodPost, "/api/tracks/"+id+"/lyrics", session.Token, model.GenerateLyricsRequest{
		Artist: model.ArtistBiggie, Prompt: "p",
	})
	expectStatus(t, resp, http.StatusOK)

	// 客户端在音频生成完成前放弃请求
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(model.GenerateAudioRequest{Lyrics: "bars", Artist: model.ArtistBiggie})
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/tracks/"+id+"/audio", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.Token)
	if resp, err := http.DefaultClient.Do(req); err == nil {
		resp.Body.Close()
		t.Fatalf("request finished before the client deadline: %d", resp.StatusCode)
	}

	var got model.Track
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp := ts.do(t, http.MethodGet, "/api/tracks/"+id, "", nil)
		got = model.Track{}
		decode(t, resp, &got)
		if got.Status != model.StatusGeneratingAudio {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t, 0)
	creds := model.CredentialsRequest{Email: "Rapper@Example.com", Password: "hunter22"}

	expectStatus(t, ts.do(t, http.MethodPost, "/api/auth/register", "", creds), http.StatusCreated)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/auth/register", "", creds), http.StatusConflict)

	resp := ts.do(t, http.MethodPost, "/api/auth/login", "", model.CredentialsRequest{Email: "rapper@example.com", Password: "hunter22"})
	expectStatus(t, resp, http.StatusOK)
	var out model.AuthResponse
	decode(t, resp, &out)
	if out.Token == "" || out.User == nil || out.User.IsGuest {
		t.Errorf("login = %+v", out)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	ts := newTestServer(t, 1)
	session := ts.guest(t)

	for i := 0; i < 3; i++ {
		ts.createTrack(t, session.Token)
	}
	resp := ts.do(t, http.MethodPost, "/api/tracks", session.Token, model.CreateTrackRequest{
		Title: "t", Artist: model.ArtistTupac, Prompt: "p",
	})
	expectStatus(t, resp, http.StatusTooManyRequests)
}

func TestBackgroundGenerate(t *testing.T) {
	ts := newTestServer(t, 0)
	session := ts.guest(t)
	id := ts.createTrack(t, session.Token)

	expectStatus(t, ts.do(t, http.MethodPost, "/api/tracks/"+id+"/generate", session.Token, nil), http.StatusAccepted)

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := ts.do(t, http.MethodGet, "/api/tracks/"+id, "", nil)
		var got model.Track
		decode(t, resp, &got)
		if got.Status == model.StatusCompleted {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %s after background run", got.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestTrackSocketReceivesOwnEvents(t *testing.T) {
	ts := newTestServer(t, 0)
	session := ts.guest(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/tracks?token=" + session.Token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for ts.hub.ConnectionCount(session.User.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	id := ts.createTrack(t, session.Token)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event model.TrackEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatal(err)
	}
	if event.Type != model.TrackCreated || event.TrackID != id {
		t.Errorf("event = %+v", event)
	}
}

func TestTrackSocketRequiresToken(t *testing.T) {
	ts := newTestServer(t, 0)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/tracks"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("resp = %v", resp)
	}
}
