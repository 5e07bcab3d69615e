package repository

import (
	"context"
	"errors"
	"testing"

	"soundwaves/storage"
)

func TestToggleFavoriteTwiceRestoresMembership(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestLibrary(t)
	song := testSong("a")

	liked, err := repo.ToggleFavorite(ctx, song)
	if err != nil || !liked {
		t.Fatalf("first toggle should like, got %v (%v)", liked, err)
	}
	if ok, _ := repo.IsFavorite(ctx, "a"); !ok {
		t.Fatal("song should be a favorite")
	}

	liked, err = repo.ToggleFavorite(ctx, song)
	if err != nil || liked {
		t.Fatalf("second toggle should unlike, got %v (%v)", liked, err)
	}
	favs, err := repo.GetFavorites(ctx)
	if err != nil {
		t.Fatalf("get favorites: %v", err)
	}
	if len(favs) != 0 {
		t.Fatalf("expected no favorites, got %d", len(favs))
	}
}

func TestGetFavoritesNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestLibrary(t)

	for _, id := range []string{"a", "b", "c"} {
		if _, err := repo.ToggleFavorite(ctx, testSong(id)); err != nil {
			t.Fatalf("toggle %s: %v", id, err)
		}
	}
	favs, _ := repo.GetFavorites(ctx)
	if len(favs) != 3 || favs[0].ID != "c" || favs[2].ID != "a" {
		t.Fatalf("unexpected favorites order: %+v", favs)
	}
}

func TestSaveSongWithBlobIsDownloadedUntilDeleted(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestLibrary(t)

	saved, err := repo.SaveSong(ctx, testSong("a"), []byte("audio-bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !saved.IsDownloaded {
		t.Fatal("song saved with blob should be downloaded")
	}

	downloaded, err := repo.GetAllDownloaded(ctx)
	if err != nil {
		t.Fatalf("get downloaded: %v", err)
	}
	if len(downloaded) != 1 || downloaded[0].ID != "a" {
		t.Fatalf("expected [a], got %+v", downloaded)
	}

	if err := repo.DeleteSong(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	downloaded, _ = repo.GetAllDownloaded(ctx)
	if len(downloaded) != 0 {
		t.Fatalf("deleted song still listed: %+v", downloaded)
	}
	if _, err := repo.GetSongAudio(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blob should be gone, got %v", err)
	}
	if err := repo.DeleteSong(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
}

// brokenDeleteStore 删除音频总是失败
type brokenDeleteStore struct {
	storage.BlobStore
}

func (brokenDeleteStore) Delete(context.Context, string) error {
	return errors.New("bucket unavailable")
}

func TestDeleteSongKeepsSongWhenBlobDeleteFails(t *testing.T) {
	ctx := context.Background()
	gdb := openTestDB(t)
	repo := NewGormLibraryRepository(gdb, brokenDeleteStore{storage.NewDBBlobStore(gdb)})

	if _, err := repo.SaveSong(ctx, testSong("a"), []byte("audio")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.DeleteSong(ctx, "a"); err == nil {
		t.Fatal("expected blob delete error")
	}

	song, err := repo.GetSong(ctx, "a")
	if err != nil {
		t.Fatalf("song should survive a failed delete: %v", err)
	}
	if !song.IsDownloaded {
		t.Fatal("song still has its blob and should stay downloaded")
	}
	if _, err := repo.GetSongAudio(ctx, "a"); err != nil {
		t.Fatalf("blob should still be readable: %v", err)
	}
}

func TestSaveSongIgnoresCallerDownloadFlag(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestLibrary(t)

	song := testSong("a")
	song.IsDownloaded = true
	saved, err := repo.SaveSong(ctx, song, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.IsDownloaded {
		t.Fatal("flag must follow blob presence")
	}

	if _, err := repo.SaveSong(ctx, testSong("a"), []byte("x")); err != nil {
		t.Fatalf("save with blob: %v", err)
	}
	// 重新保存元数据不应丢失离线状态
	resaved, err := repo.SaveSong(ctx, testSong("a"), nil)
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if !resaved.IsDownloaded {
		t.Fatal("metadata update must keep existing blob")
	}
}

func TestSaveSongValidates(t *testing.T) {
	repo, _ := newTestLibrary(t)
	song := testSong("a")
	song.Source = "cassette"
	if _, err := repo.SaveSong(context.Background(), song, nil); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestReconcileClearsStaleFlags(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestLibrary(t)

	if _, err := repo.SaveSong(ctx, testSong("a"), []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := repo.SaveSong(ctx, testSong("b"), []byte("y")); err != nil {
		t.Fatalf("save: %v", err)
	}
	// 直接删掉音频，模拟标记与数据不一致
	if err := repo.blobs.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete blob: %v", err)
	}

	fixed, err := repo.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if fixed != 1 {
		t.Fatalf("expected 1 fixed song, got %d", fixed)
	}
	song, _ := repo.GetSong(ctx, "a")
	if song.IsDownloaded {
		t.Fatal("stale flag should be cleared")
	}
	downloaded, _ := repo.GetAllDownloaded(ctx)
	if len(downloaded) != 1 || downloaded[0].ID != "b" {
		t.Fatalf("expected only b downloaded, got %+v", downloaded)
	}
}

func TestHistoryOrdering(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestLibrary(t)

	for _, id := range []string{"a", "b", "a", "c"} {
		if _, err := repo.AddHistory(ctx, testSong(id), 120, id == "a"); err != nil {
			t.Fatalf("add history: %v", err)
		}
	}

	all, err := repo.GetHistory(ctx)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(all) != 4 || all[0].Song.ID != "a" || all[3].Song.ID != "c" {
		t.Fatalf("history should be ascending: %+v", all)
	}
	for i := 1; i < len(all); i++ {
		if all[i].PlayedAt.Before(all[i-1].PlayedAt) {
			t.Fatal("history not sorted by played-at")
		}
	}

	latest, _ := repo.GetListeningHistory(ctx, 2)
	if len(latest) != 2 || latest[0].Song.ID != "c" || latest[1].Song.ID != "a" {
		t.Fatalf("unexpected listening history: %+v", latest)
	}

	recent, _ := repo.GetRecentlyPlayed(ctx, 10)
	if len(recent) != 3 || recent[0].ID != "c" || recent[1].ID != "a" || recent[2].ID != "b" {
		t.Fatalf("recently played should dedupe newest first: %+v", recent)
	}
}

func TestStorageStatsAndClearAll(t *testing.T) {
	ctx := context.Background()
	repo, gdb := newTestLibrary(t)

	repo.SaveSong(ctx, testSong("a"), []byte("12345"))
	repo.SaveSong(ctx, testSong("b"), nil)
	repo.AddHistory(ctx, testSong("a"), 10, false)
	playlists := NewGormPlaylistRepository(gdb)
	if err := playlists.Create(ctx, newCustomPlaylist("mix", "a", "b")); err != nil {
		t.Fatalf("create playlist: %v", err)
	}

	stats, err := repo.StorageStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.SongsCount != 2 || stats.DownloadedCount != 1 || stats.PlaylistsCount != 1 || stats.EstimatedSize != 5 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if err := repo.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stats, _ = repo.StorageStats(ctx)
	if stats.SongsCount != 0 || stats.PlaylistsCount != 0 || stats.EstimatedSize != 0 {
		t.Fatalf("expected empty stats after clear, got %+v", stats)
	}
	history, _ := repo.GetHistory(ctx)
	if len(history) != 0 {
		t.Fatalf("history should be cleared, got %d", len(history))
	}
}
