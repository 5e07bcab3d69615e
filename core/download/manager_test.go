package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"soundwaves/db"
	"soundwaves/model"
	"soundwaves/repository"
	"soundwaves/storage"
)

type stubResolver struct {
	mu  sync.Mutex
	url string
	ok  bool
	ids []string
}

func (s *stubResolver) AudioURL(_ context.Context, videoID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, videoID)
	return s.url, s.ok
}

func (s *stubResolver) asked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

type fixture struct {
	library repository.LibraryRepository
	queue   repository.DownloadRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gdb, err := db.OpenLibraryDB(db.MemoryDSN)
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	return fixture{
		library: repository.NewGormLibraryRepository(gdb, storage.NewDBBlobStore(gdb)),
		queue:   repository.NewGormDownloadRepository(gdb),
	}
}

func (f fixture) manager(t *testing.T, resolver URLResolver) *Manager {
	t.Helper()
	m := NewManager(f.queue, f.library, resolver, 1, 4)
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func audioServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitDownloadsStreamURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	srv := audioServer(t, strings.Repeat("a", 4096))
	m := f.manager(t, nil)

	song := model.Song{ID: "s1", Title: "Direct", Source: model.SourceOnline, StreamURL: srv.URL + "/s1.mp3"}
	item, err := m.Submit(ctx, song)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if item.Status != model.DownloadPending {
		t.Fatalf("new item should be pending, got %s", item.Status)
	}

	eventually(t, func() bool {
		_, err := f.queue.Get(ctx, "s1")
		return errors.Is(err, repository.ErrNotFound)
	}, "completed download should leave the queue")

	saved, err := f.library.GetSong(ctx, "s1")
	if err != nil || !saved.IsDownloaded {
		t.Fatalf("song should be marked downloaded: %+v %v", saved, err)
	}
	audio, err := f.library.GetSongAudio(ctx, "s1")
	if err != nil || len(audio) != 4096 {
		t.Fatalf("expected 4096 bytes of audio, got %d (%v)", len(audio), err)
	}
	if m.IsActive("s1") {
		t.Error("finished download should not be active")
	}
}

func TestSubmitResolvesYouTubeSongs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	srv := audioServer(t, "mp4-audio")
	resolver := &stubResolver{url: srv.URL + "/audio", ok: true}
	m := f.manager(t, resolver)

	song := model.Song{ID: "yt-dQw4w9WgXcQ", Title: "Video", Source: model.SourceYouTube}
	if _, err := m.Submit(ctx, song); err != nil {
		t.Fatalf("submit: %v", err)
	}
	eventually(t, func() bool {
		s, err := f.library.GetSong(ctx, song.ID)
		return err == nil && s.IsDownloaded
	}, "youtube song should be downloaded through the resolver")

	if ids := resolver.asked(); len(ids) != 1 || ids[0] != "dQw4w9WgXcQ" {
		t.Fatalf("resolver should be asked for the bare video id, got %v", ids)
	}
}

func TestFailedDownloadIsMarked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()
	m := f.manager(t, &stubResolver{ok: false})

	tests := []struct {
		song    model.Song
		wantErr string
	}{
		{song: model.Song{ID: "bad-status", Title: "x", Source: model.SourceOnline, StreamURL: srv.URL}, wantErr: "unexpected status 410"},
		{song: model.Song{ID: "no-source", Title: "x", Source: model.SourceLocal}, wantErr: ErrNoSource.Error()},
		{song: model.Song{ID: "yt-none", Title: "x", Source: model.SourceYouTube, YouTubeID: "none"}, wantErr: "no mirror returned audio"},
	}
	for _, tt := range tests {
		if _, err := m.Submit(ctx, tt.song); err != nil {
			t.Fatalf("submit %s: %v", tt.song.ID, err)
		}
	}
	for _, tt := range tests {
		eventually(t, func() bool {
			item, err := f.queue.Get(ctx, tt.song.ID)
			return err == nil && item.Status == model.DownloadFailed
		}, tt.song.ID+" should be marked failed")
		item, _ := f.queue.Get(ctx, tt.song.ID)
		if !strings.Contains(item.Error, tt.wantErr) {
			t.Errorf("%s: expected error containing %q, got %q", tt.song.ID, tt.wantErr, item.Error)
		}
	}
}

func TestDownloadTimeoutMarksFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	m := NewManager(f.queue, f.library, &stubResolver{}, 1, 4)
	m.SetHTTPClient(&http.Client{Timeout: 50 * time.Millisecond})
	m.Start()
	t.Cleanup(m.Stop)

	song := model.Song{ID: "slow", Title: "x", Source: model.SourceOnline, StreamURL: srv.URL}
	if _, err := m.Submit(ctx, song); err != nil {
		t.Fatalf("submit: %v", err)
	}
	eventually(t, func() bool {
		item, err := f.queue.Get(ctx, "slow")
		return err == nil && item.Status == model.DownloadFailed
	}, "slow download should time out and be marked failed")

	saved, err := f.library.GetSong(ctx, "slow")
	if err != nil {
		t.Fatalf("get song: %v", err)
	}
	if saved.IsDownloaded {
		t.Fatal("timed out download must not be flagged downloaded")
	}
}

func TestDuplicateSubmitAndCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	m := f.manager(t, nil)

	song := model.Song{ID: "slow", Title: "Slow", Source: model.SourceOnline, StreamURL: srv.URL}
	if _, err := m.Submit(ctx, song); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.Submit(ctx, song); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}

	eventually(t, func() bool {
		item, err := f.queue.Get(ctx, "slow")
		return err == nil && item.Status == model.DownloadDownloading
	}, "download should start")

	if err := m.Cancel(ctx, "slow"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.queue.Get(ctx, "slow"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("cancelled item should be removed, got %v", err)
	}
	eventually(t, func() bool { return !m.IsActive("slow") }, "cancelled download should stop")

	// 取消后的失败不能把记录写回队列
	time.Sleep(50 * time.Millisecond)
	if _, err := f.queue.Get(ctx, "slow"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("cancelled download reappeared: %v", err)
	}
}

func TestResumePendingDownloads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	srv := audioServer(t, "resumed")

	song := model.Song{ID: "left-over", Title: "Left", Source: model.SourceOnline, StreamURL: srv.URL}
	if _, err := f.library.SaveSong(ctx, song, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := f.queue.Enqueue(ctx, song.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := f.queue.Enqueue(ctx, "orphan"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	m := f.manager(t, nil)
	n, err := m.Resume(ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 resumed download, got %d", n)
	}
	eventually(t, func() bool {
		s, err := f.library.GetSong(ctx, song.ID)
		return err == nil && s.IsDownloaded
	}, "resumed download should finish")

	orphan, err := f.queue.Get(ctx, "orphan")
	if err != nil || orphan.Status != model.DownloadFailed {
		t.Fatalf("orphan item should be failed, got %+v %v", orphan, err)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.queue, f.library, nil, 1, 1)
	m.Start()
	m.Stop()

	_, err := m.Submit(context.Background(), model.Song{ID: "late", Title: "Late", Source: model.SourceOnline})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
