package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"soundwaves/model"
)

const testID = "dQw4w9WgXcQ"

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: testID, want: testID},
		{in: "https://www.youtube.com/watch?v=" + testID, want: testID},
		{in: "https://www.youtube.com/watch?v=" + testID + "&t=42s", want: testID},
		{in: "https://youtu.be/" + testID + "?si=abc", want: testID},
		{in: "https://www.youtube.com/embed/" + testID, want: testID},
		{in: "  " + testID + "  ", want: testID},
		{in: "short", wantErr: true},
		{in: "https://vimeo.com/12345", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ExtractVideoID(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidVideoID) {
				t.Errorf("ExtractVideoID(%q) expected ErrInvalidVideoID, got %q, %v", tt.in, got, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ExtractVideoID(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestRequestVideoIDPrefersVideoID(t *testing.T) {
	got, err := RequestVideoID(testID, "https://youtu.be/aaaaaaaaaaa")
	if err != nil || got != testID {
		t.Fatalf("expected videoId to win, got %q %v", got, err)
	}
	got, err = RequestVideoID("", "https://youtu.be/aaaaaaaaaaa")
	if err != nil || got != "aaaaaaaaaaa" {
		t.Fatalf("expected id from url, got %q %v", got, err)
	}
	if _, err := RequestVideoID("", ""); !errors.Is(err, ErrInvalidVideoID) {
		t.Fatalf("expected ErrInvalidVideoID, got %v", err)
	}
}

// recorder 记录镜像被请求的顺序
type recorder struct {
	mu   sync.Mutex
	hits []string
}

func (r *recorder) hit(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, name)
}

func jsonServer(t *testing.T, rec *recorder, name string, status int, body interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec != nil {
			rec.hit(name)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func hangingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAllMirrorsFailDegradesToPlaceholder(t *testing.T) {
	broken := jsonServer(t, nil, "broken", http.StatusInternalServerError, map[string]string{"error": "down"})
	empty := jsonServer(t, nil, "empty", http.StatusOK, map[string]interface{}{"audioStreams": []interface{}{}})
	slow := hangingServer(t)

	r := New(Options{
		OEmbedURL: broken.URL,
		Invidious: []string{slow.URL, broken.URL, "http://127.0.0.1:1"},
		Piped:     []string{empty.URL, broken.URL},
		Timeout:   100 * time.Millisecond,
	})

	got := r.Resolve(context.Background(), testID)
	if got.StreamAvailable || got.AudioURL != nil {
		t.Fatalf("expected no stream, got %+v", got)
	}
	if got.Title != "YouTube Video" || got.Author != "Unknown Artist" {
		t.Fatalf("expected placeholder metadata, got %+v", got.VideoInfo)
	}
	if got.Thumbnail != "https://img.youtube.com/vi/"+testID+"/hqdefault.jpg" {
		t.Fatalf("unexpected placeholder thumbnail %q", got.Thumbnail)
	}

	data, _ := json.Marshal(got)
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	if v, ok := raw["audioUrl"]; !ok || v != nil {
		t.Fatalf("audioUrl should serialise as null, got %s", data)
	}
}

func TestInvidiousProbedBeforePipedAndBestBitrateWins(t *testing.T) {
	rec := &recorder{}
	inv := jsonServer(t, rec, "invidious", http.StatusOK, map[string]interface{}{
		"adaptiveFormats": []map[string]interface{}{
			{"url": "http://video", "type": "video/mp4", "bitrate": "900000"},
			{"url": "http://audio-low", "type": "audio/webm; codecs=\"opus\"", "bitrate": "64000"},
			{"url": "http://audio-high", "type": "audio/mp4", "bitrate": 160000},
		},
	})
	pip := jsonServer(t, rec, "piped", http.StatusOK, map[string]interface{}{
		"audioStreams": []map[string]interface{}{{"url": "http://piped", "bitrate": 1}},
	})
	oembed := jsonServer(t, nil, "oembed", http.StatusOK, map[string]string{"title": "Never Gonna", "author_name": "Rick"})

	r := New(Options{OEmbedURL: oembed.URL, Invidious: []string{inv.URL}, Piped: []string{pip.URL}})
	got := r.Resolve(context.Background(), testID)

	if !got.StreamAvailable || got.AudioURL == nil || *got.AudioURL != "http://audio-high" {
		t.Fatalf("expected highest bitrate invidious audio, got %+v", got)
	}
	if got.Title != "Never Gonna" || got.Author != "Rick" {
		t.Fatalf("unexpected metadata %+v", got.VideoInfo)
	}
	if got.Thumbnail != "https://img.youtube.com/vi/"+testID+"/maxresdefault.jpg" {
		t.Fatalf("unexpected thumbnail %q", got.Thumbnail)
	}
	if len(rec.hits) != 1 || rec.hits[0] != "invidious" {
		t.Fatalf("piped should not be probed after invidious success: %v", rec.hits)
	}
}

func TestFallsBackToPiped(t *testing.T) {
	rec := &recorder{}
	inv := jsonServer(t, rec, "invidious", http.StatusOK, map[string]interface{}{"adaptiveFormats": []interface{}{}})
	pip := jsonServer(t, rec, "piped", http.StatusOK, map[string]interface{}{
		"audioStreams": []map[string]interface{}{
			{"url": "http://p-low", "bitrate": 48000},
			{"url": "http://p-high", "bitrate": 128000},
		},
	})

	r := New(Options{OEmbedURL: inv.URL, Invidious: []string{inv.URL}, Piped: []string{pip.URL}})
	url, ok := r.AudioURL(context.Background(), testID)
	if !ok || url != "http://p-high" {
		t.Fatalf("expected piped high bitrate, got %q %v", url, ok)
	}
	if len(rec.hits) != 2 || rec.hits[0] != "invidious" || rec.hits[1] != "piped" {
		t.Fatalf("unexpected probe order %v", rec.hits)
	}
}

func TestInvidiousFormatStreamFallback(t *testing.T) {
	got, err := parseInvidious([]byte(`{"adaptiveFormats":[{"url":"v","type":"video/webm"}],"formatStreams":[{"url":"http://muxed","container":"mp4"}]}`))
	if err != nil || got != "http://muxed" {
		t.Fatalf("expected muxed mp4 fallback, got %q %v", got, err)
	}
}

type memCache struct {
	items map[string]model.VideoInfo
}

func (m *memCache) Get(_ context.Context, id string) (model.VideoInfo, bool) {
	info, ok := m.items[id]
	return info, ok
}

func (m *memCache) Set(_ context.Context, info model.VideoInfo) {
	m.items[info.VideoID] = info
}

func TestInfoUsesCache(t *testing.T) {
	rec := &recorder{}
	oembed := jsonServer(t, rec, "oembed", http.StatusOK, map[string]string{"title": "Cached", "author_name": "A"})
	cache := &memCache{items: map[string]model.VideoInfo{}}

	r := New(Options{OEmbedURL: oembed.URL, Cache: cache})
	r.Info(context.Background(), testID)
	info := r.Info(context.Background(), testID)

	if info.Title != "Cached" || len(rec.hits) != 1 {
		t.Fatalf("second lookup should hit the cache: %+v hits=%v", info, rec.hits)
	}
}

func TestHandleInfoAction(t *testing.T) {
	oembed := jsonServer(t, nil, "oembed", http.StatusOK, map[string]string{"title": "T", "author_name": "A"})
	r := New(Options{OEmbedURL: oembed.URL})

	out, err := r.Handle(context.Background(), Request{URL: "https://youtu.be/" + testID, Action: ActionInfo})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, ok := out.(model.VideoInfo); !ok {
		t.Fatalf("info action should return VideoInfo, got %T", out)
	}

	if _, err := r.Handle(context.Background(), Request{URL: "not a url"}); !errors.Is(err, ErrInvalidVideoID) {
		t.Fatalf("expected ErrInvalidVideoID, got %v", err)
	}
}
