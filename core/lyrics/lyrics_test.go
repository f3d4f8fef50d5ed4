package lyrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"RapLab/model"
)

func TestTemplateLyrics(t *testing.T) {
	out, err := TemplateLyrics{}.Generate(context.Background(), Request{
		Artist: model.ArtistBiggie,
		Prompt: "growing up in the city",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "growing up in the city") || !strings.Contains(out, "Brooklyn") {
		t.Errorf("unexpected lyrics:\n%s", out)
	}

	if _, err := (TemplateLyrics{}).Generate(context.Background(), Request{Artist: "nas"}); err == nil {
		t.Error("expected error for unknown artist")
	}
}

func TestTemplateLyricsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (TemplateLyrics{}).Generate(ctx, Request{Artist: model.ArtistTupac, Prompt: "p"}); err == nil {
		t.Error("expected context error")
	}
}

func TestChatLyrics(t *testing.T) {
	var got model.OpenAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"  yo bars  "}}]}`))
	}))
	defer srv.Close()

	gen := NewChatLyrics(ChatConfig{APIBaseURL: srv.URL, APIKey: "k", Model: "m"})
	out, err := gen.Generate(context.Background(), Request{
		Artist:       model.ArtistTupac,
		SystemPrompt: "sys",
		Prompt:       "the block",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "yo bars" {
		t.Errorf("out = %q", out)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "sys" || !strings.Contains(got.Messages[1].Content, "the block") {
		t.Errorf("request messages = %+v", got.Messages)
	}
}

func TestChatLyricsErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		},
		"no choices": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		},
		"empty content": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			gen := NewChatLyrics(ChatConfig{APIBaseURL: srv.URL})
			if _, err := gen.Generate(context.Background(), Request{Artist: model.ArtistTupac}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
