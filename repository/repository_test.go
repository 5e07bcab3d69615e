package repository

import (
	"testing"
	"time"

	"soundwaves/db"
	"soundwaves/model"
	"soundwaves/storage"

	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenLibraryDB(db.MemoryDSN)
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	return gdb
}

// fixedClock 每次调用前进一秒，保证记录时间有序
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestLibrary(t *testing.T) (*gormLibraryRepository, *gorm.DB) {
	t.Helper()
	gdb := openTestDB(t)
	clock := &fixedClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	repo := NewGormLibraryRepository(gdb, storage.NewDBBlobStore(gdb)).(*gormLibraryRepository)
	repo.now = clock.now
	return repo, gdb
}

func testSong(id string) model.Song {
	return model.Song{
		ID:       id,
		Title:    "Title " + id,
		Artist:   "Artist " + id,
		Duration: 200,
		Source:   model.SourceYouTube,
	}
}
