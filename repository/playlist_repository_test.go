package repository

import (
	"context"
	"errors"
	"testing"

	"soundwaves/model"
)

func newCustomPlaylist(name string, songIDs ...string) *model.Playlist {
	return &model.Playlist{Name: name, SongIDs: songIDs}
}

func TestPlaylistResolvesSongsAndSkipsDangling(t *testing.T) {
	ctx := context.Background()
	lib, gdb := newTestLibrary(t)
	repo := NewGormPlaylistRepository(gdb)

	lib.SaveSong(ctx, testSong("a"), nil)
	lib.SaveSong(ctx, testSong("b"), nil)

	p := newCustomPlaylist("mix", "b", "a", "b")
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" || p.Type != model.PlaylistCustom || p.SongCount != 2 {
		t.Fatalf("unexpected created playlist %+v", p)
	}

	// 删除歌曲不级联，读取时跳过
	if err := lib.DeleteSong(ctx, "a"); err != nil {
		t.Fatalf("delete song: %v", err)
	}

	got, err := repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.SongIDs) != 2 || got.SongIDs[0] != "b" || got.SongIDs[1] != "a" {
		t.Fatalf("unexpected song ids %v", got.SongIDs)
	}
	if len(got.Songs) != 1 || got.Songs[0].ID != "b" {
		t.Fatalf("dangling reference should be skipped, got %+v", got.Songs)
	}
}

func TestPlaylistMembershipKeepsCount(t *testing.T) {
	ctx := context.Background()
	_, gdb := newTestLibrary(t)
	repo := NewGormPlaylistRepository(gdb)

	p := newCustomPlaylist("mix", "a")
	repo.Create(ctx, p)

	if err := repo.AddSong(ctx, p.ID, "b"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := repo.AddSong(ctx, p.ID, "b"); err != nil {
		t.Fatalf("re-add should be a no-op: %v", err)
	}
	got, _ := repo.Get(ctx, p.ID)
	if got.SongCount != 2 || len(got.SongIDs) != 2 || got.SongIDs[1] != "b" {
		t.Fatalf("unexpected playlist after add %+v", got)
	}

	if err := repo.Reorder(ctx, p.ID, []string{"b", "a"}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	got, _ = repo.Get(ctx, p.ID)
	if got.SongIDs[0] != "b" {
		t.Fatalf("reorder not applied: %v", got.SongIDs)
	}
	if err := repo.Reorder(ctx, p.ID, []string{"b", "c"}); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}

	if err := repo.RemoveSong(ctx, p.ID, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, _ = repo.Get(ctx, p.ID)
	if got.SongCount != 1 || len(got.SongIDs) != 1 {
		t.Fatalf("count out of sync after remove: %+v", got)
	}
	if err := repo.RemoveSong(ctx, p.ID, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNonCustomPlaylistIsReadOnly(t *testing.T) {
	ctx := context.Background()
	_, gdb := newTestLibrary(t)
	repo := NewGormPlaylistRepository(gdb)

	p := &model.Playlist{Name: "Offline", Type: model.PlaylistOffline, SongIDs: []string{"a"}}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.AddSong(ctx, p.ID, "b"); !errors.Is(err, ErrReadOnlyPlaylist) {
		t.Fatalf("add: expected ErrReadOnlyPlaylist, got %v", err)
	}
	if err := repo.RemoveSong(ctx, p.ID, "a"); !errors.Is(err, ErrReadOnlyPlaylist) {
		t.Fatalf("remove: expected ErrReadOnlyPlaylist, got %v", err)
	}
	if err := repo.Reorder(ctx, p.ID, []string{"a"}); !errors.Is(err, ErrReadOnlyPlaylist) {
		t.Fatalf("reorder: expected ErrReadOnlyPlaylist, got %v", err)
	}

	byType, _ := repo.ListByType(ctx, model.PlaylistOffline)
	if len(byType) != 1 {
		t.Fatalf("expected 1 offline playlist, got %d", len(byType))
	}

	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCreatePlaylistRejectsUnknownType(t *testing.T) {
	_, gdb := newTestLibrary(t)
	repo := NewGormPlaylistRepository(gdb)
	if err := repo.Create(context.Background(), &model.Playlist{Name: "x", Type: "radio"}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
