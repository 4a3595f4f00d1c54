package zds

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// tamperArchiveEntry copies the archive into a new file, replacing one
// entry's content (with fresh headers and CRC) and copying the packed
// manifest unchanged, simulating tampering that a plain per-entry CRC
// cannot catch because the CRC is rewritten alongside it. The
// manifest's digest is left stale on purpose so Unpack's verification
// has something to catch.
func tamperArchiveEntry(t *testing.T, archivePath, entryName string, replacement []byte) string {
	t.Helper()
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("open archive for tampering: %v", err)
	}
	defer zr.Close()

	out := filepath.Join(filepath.Dir(archivePath), "tampered.zip")
	f, err := os.Create(out)
	if err != nil {
		t.Fatalf("create tampered archive: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, entry := range zr.File {
		rc, err := entry.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", entry.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", entry.Name, err)
		}
		if entry.Name == entryName {
			data = replacement
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: entry.Name, Method: zip.Store})
		if err != nil {
			t.Fatalf("write header %s: %v", entry.Name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write entry %s: %v", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close tampered archive: %v", err)
	}
	return out
}

func writeTestTree(t *testing.T, root string) {
	t.Helper()
	files := map[string]string{
		"collections/widgets/meta/data.jsonl":  `{"_id":"w1"}` + "\n",
		"collections/widgets/meta/index.bin":   "ZDSI",
		"collections/widgets/meta/manifest.json": `{"version":"1.0.0"}`,
	}
	for rel, content := range files {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTestTree(t, src)

	archive := filepath.Join(t.TempDir(), "bundle.zip")
	if err := Pack(src, archive, packOptions{Compress: true}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	dest := t.TempDir()
	if err := Unpack(archive, dest, unpackOptions{}); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "collections/widgets/meta/data.jsonl"))
	if err != nil {
		t.Fatalf("read extracted log: %v", err)
	}
	if string(got) != `{"_id":"w1"}`+"\n" {
		t.Errorf("extracted log content mismatch: %q", got)
	}
}

func TestUnpackRefusesNonEmptyDestWithoutOverwrite(t *testing.T) {
	src := t.TempDir()
	writeTestTree(t, src)

	archive := filepath.Join(t.TempDir(), "bundle.zip")
	if err := Pack(src, archive, packOptions{}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	dest := t.TempDir()
	if err := os.WriteFile(filepath.Join(dest, "preexisting.txt"), []byte("keep me"), 0o644); err != nil {
		t.Fatalf("seed destination: %v", err)
	}

	if err := Unpack(archive, dest, unpackOptions{}); Categorize(err) != CategoryInvalidState {
		t.Fatalf("expected InvalidState for a non-empty destination, got %v", err)
	}

	if err := Unpack(archive, dest, unpackOptions{AllowOverwrite: true}); err != nil {
		t.Fatalf("Unpack with AllowOverwrite: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "collections/widgets/meta/data.jsonl")); err != nil {
		t.Fatalf("expected archive entry to be extracted: %v", err)
	}
}

func TestPackUnpackDetectsTamperedEntry(t *testing.T) {
	src := t.TempDir()
	writeTestTree(t, src)

	archive := filepath.Join(t.TempDir(), "bundle.zip")
	if err := Pack(src, archive, packOptions{}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	tampered := tamperArchiveEntry(t, archive, "collections/widgets/meta/data.jsonl", []byte(`{"_id":"evil"}`+"\n"))

	dest := t.TempDir()
	err := Unpack(tampered, dest, unpackOptions{})
	if Categorize(err) != CategoryCorruptedArchive {
		t.Fatalf("expected CorruptedArchive for a tampered entry, got %v", err)
	}
}
