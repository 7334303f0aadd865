package index

import (
	"log/slog"
	"os"
	"testing"

	"github.com/starford/echochamber/internal/models"
	"github.com/starford/echochamber/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "echochamber-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM posts`).Scan(&count); err != nil {
		t.Fatalf("posts table missing: %v", err)
	}
}

func TestUpsertAndHeader(t *testing.T) {
	db := testDB(t)
	want := models.Header{Liked: true, AuthorUsername: "ada", AuthorDisplayName: "Ada"}
	if err := db.UpsertPost(PostRow{Path: "posts/a.md", Checksum: "abc", HasHeader: true, Header: want}); err != nil {
		t.Fatalf("UpsertPost: %v", err)
	}
	got, ok, err := db.Header("posts/a.md")
	if err != nil || !ok {
		t.Fatalf("Header: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("header = %+v, want %+v", got, want)
	}

	// Upsert replaces.
	_ = db.UpsertPost(PostRow{Path: "posts/a.md", Checksum: "def", HasHeader: true, Header: models.Header{}})
	got, _, _ = db.Header("posts/a.md")
	if got.Liked {
		t.Error("expected liked=false after upsert")
	}
	cs, _ := db.GetChecksum("posts/a.md")
	if cs != "def" {
		t.Errorf("checksum = %q, want def", cs)
	}
}

func TestHeaderMissOrHeaderless(t *testing.T) {
	db := testDB(t)
	if _, ok, err := db.Header("nope.md"); ok || err != nil {
		t.Errorf("miss: ok=%v err=%v", ok, err)
	}
	_ = db.UpsertPost(PostRow{Path: "plain.md", Checksum: "1"})
	if _, ok, _ := db.Header("plain.md"); ok {
		t.Error("headerless post must report ok=false")
	}
}

func TestDeletePostAndPrefix(t *testing.T) {
	db := testDB(t)
	for _, p := range []string{"posts/a.md", "posts/sub/b.md", "postscript.md", "other/c.md"} {
		_ = db.UpsertPost(PostRow{Path: p, Checksum: "x"})
	}
	if err := db.DeletePost("other/c.md"); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if err := db.DeletePrefix("posts"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	all, err := db.AllChecksums()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("remaining = %v, want only postscript.md", all)
	}
	if _, ok := all["postscript.md"]; !ok {
		t.Errorf("prefix delete must not touch sibling names: %v", all)
	}
}

func TestSync(t *testing.T) {
	db := testDB(t)
	store := storage.NewMemFS()
	_ = store.Write("posts/a.md", []byte("---\nliked: true\n---\nA"))
	_ = store.Write("posts/b.md", []byte("B"))
	_ = db.UpsertPost(PostRow{Path: "posts/gone.md", Checksum: "stale"})

	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	all, _ := db.AllChecksums()
	if len(all) != 2 {
		t.Fatalf("cached = %v, want 2 posts", all)
	}
	h, ok, _ := db.Header("posts/a.md")
	if !ok || !h.Liked {
		t.Errorf("a.md header = %+v ok=%v", h, ok)
	}
	if _, ok, _ := db.Header("posts/b.md"); ok {
		t.Error("b.md has no header")
	}
}
