package library

import (
	"context"
	"errors"
	"testing"

	"soundwaves/cache"
	"soundwaves/db"
	"soundwaves/model"
	"soundwaves/repository"
	"soundwaves/storage"
)

func newTestService(t *testing.T, outbox cache.Outbox) *Service {
	t.Helper()
	gdb, err := db.OpenLibraryDB(db.MemoryDSN)
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	lib := repository.NewGormLibraryRepository(gdb, storage.NewDBBlobStore(gdb))
	return NewService(lib, repository.NewGormPlaylistRepository(gdb), outbox, 200)
}

func song(id string) model.Song {
	return model.Song{ID: id, Title: "T" + id, Artist: "A", Duration: 180, Source: model.SourceYouTube, Thumbnail: "http://img/" + id}
}

func TestRecordPlayAnonymousStaysLocal(t *testing.T) {
	ctx := context.Background()
	outbox := cache.NewMemoryOutbox()
	svc := newTestService(t, outbox)

	if _, err := svc.RecordPlay(ctx, model.Anonymous{}, song("a"), 100, false); err != nil {
		t.Fatalf("record: %v", err)
	}
	if n, _ := outbox.Len(ctx); n != 0 {
		t.Fatalf("anonymous plays must not be mirrored, outbox=%d", n)
	}
	history, _ := svc.GetHistory(ctx)
	if len(history) != 1 {
		t.Fatalf("expected local history entry, got %d", len(history))
	}
}

func TestRecordPlayAuthenticatedEnqueues(t *testing.T) {
	ctx := context.Background()
	outbox := cache.NewMemoryOutbox()
	svc := newTestService(t, outbox)

	user := model.Authenticated{ID: "user-1", DisplayName: "Ada"}
	entry, err := svc.RecordPlay(ctx, user, song("a"), 180, true)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	rec, _ := outbox.Peek(ctx)
	if rec == nil {
		t.Fatal("expected an outbox record")
	}
	if rec.UserID != "user-1" || rec.SongID != "a" || rec.SongTitle != "Ta" || rec.SongThumbnail != "http://img/a" || !rec.Completed || rec.Duration != 180 {
		t.Fatalf("unexpected outbox record %+v", rec)
	}
	if !rec.PlayedAt.Equal(entry.PlayedAt) || rec.ID == "" {
		t.Fatalf("outbox record should carry the local timestamp and an id: %+v", rec)
	}
}

type failingOutbox struct{ cache.MemoryOutbox }

func (f *failingOutbox) Push(context.Context, model.RemoteHistoryRecord) error {
	return errors.New("redis down")
}

func TestRecordPlaySwallowsOutboxErrors(t *testing.T) {
	svc := newTestService(t, &failingOutbox{})
	if _, err := svc.RecordPlay(context.Background(), model.Authenticated{ID: "u"}, song("a"), 10, false); err != nil {
		t.Fatalf("outbox failure must not surface: %v", err)
	}
}

func TestAddToPlaylistSavesMetadata(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	p := &model.Playlist{Name: "mix"}
	if err := svc.Playlists().Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.AddToPlaylist(ctx, p.ID, song("a")); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, _ := svc.Playlists().Get(ctx, p.ID)
	if len(got.Songs) != 1 || got.Songs[0].ID != "a" || got.Songs[0].IsDownloaded {
		t.Fatalf("expected resolved metadata-only song, got %+v", got.Songs)
	}
}

func TestRecommendUsesHistory(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	svc.SaveSong(ctx, song("a"), nil)
	svc.SaveSong(ctx, song("b"), nil)
	svc.RecordPlay(ctx, model.Anonymous{}, song("a"), 180, true)
	svc.RecordPlay(ctx, model.Anonymous{}, song("a"), 180, true)

	recs, err := svc.Recommend(ctx, 10, nil)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if len(recs) != 2 || recs[0].Song.ID != "a" {
		t.Fatalf("played song should rank first: %+v", recs)
	}
}
