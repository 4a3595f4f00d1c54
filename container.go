// Container pack/unpack: a root directory compressed into a single
// portable ZIP archive and back.
//
// klauspost/compress/flate is registered as the deflate codec on each
// zip writer and reader that Pack and Unpack create, since it is materially faster than the standard
// library's on both ends. A manifest entry inside the archive records
// a BLAKE2b-256 digest of every other entry's uncompressed bytes, so
// unpack can detect truncation or bit-rot that a plain ZIP checksum
// would miss only if the archive itself were rewritten by something
// other than pack.
package zds

import (
	"archive/zip"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/flate"
	"golang.org/x/crypto/blake2b"
)

const containerManifestName = ".zds-manifest.json"

func flateCompressor(w io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(w, flate.DefaultCompression)
}

func flateDecompressor(r io.Reader) io.ReadCloser {
	return flate.NewReader(r)
}

// containerManifest maps each archived entry's slash-separated relative
// path to the hex-encoded BLAKE2b-256 digest of its uncompressed bytes.
type containerManifest struct {
	Digests map[string]string `json:"digests"`
}

// packOptions configures Pack.
type packOptions struct {
	// Compress selects deflate over store for every entry except the
	// manifest, which is always stored uncompressed.
	Compress bool
}

// unpackOptions configures Unpack.
type unpackOptions struct {
	// AllowOverwrite permits extracting into a destDir that already
	// contains files. Without it, Unpack refuses to extract into a
	// non-empty directory.
	AllowOverwrite bool
}

// Pack writes sourceDir's full tree into a new ZIP archive at
// archivePath, with a trailing manifest entry recording a content
// digest for every file so Unpack can verify integrity.
func Pack(sourceDir, archivePath string, opts packOptions) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return wrapIo("create archive", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, flateCompressor)
	manifest := containerManifest{Digests: map[string]string{}}

	var paths []string
	err = filepath.WalkDir(sourceDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		zw.Close()
		return wrapIo("walk source tree", err)
	}
	sort.Strings(paths)

	method := zip.Store
	if opts.Compress {
		method = zip.Deflate
	}

	for _, p := range paths {
		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			zw.Close()
			return wrapIo("relativize path", err)
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(p)
		if err != nil {
			zw.Close()
			return wrapIo("read source file", err)
		}

		sum := blake2b.Sum256(data)
		manifest.Digests[rel] = hex.EncodeToString(sum[:])

		w, err := zw.CreateHeader(&zip.FileHeader{Name: rel, Method: method})
		if err != nil {
			zw.Close()
			return wrapIo("add archive entry", err)
		}
		if _, err := w.Write(data); err != nil {
			zw.Close()
			return wrapIo("write archive entry", err)
		}
	}

	manifestData, err := jsonMarshal(manifest)
	if err != nil {
		zw.Close()
		return wrapJson("marshal container manifest", err)
	}
	mw, err := zw.CreateHeader(&zip.FileHeader{Name: containerManifestName, Method: zip.Store})
	if err != nil {
		zw.Close()
		return wrapIo("add manifest entry", err)
	}
	if _, err := mw.Write(manifestData); err != nil {
		zw.Close()
		return wrapIo("write manifest entry", err)
	}

	if err := zw.Close(); err != nil {
		return wrapIo("finalize archive", err)
	}
	return nil
}

// Unpack extracts archivePath into destDir. When the archive carries a
// manifest entry, every extracted file's digest is checked against it
// and a mismatch fails the whole operation with ErrCorruptedArchive.
// Archives without a manifest (hand-built, or packed elsewhere) extract
// unverified.
//
// destDir must either not exist yet or be empty, unless opts.AllowOverwrite
// is set: Unpack never silently overwrites an existing tree.
func Unpack(archivePath, destDir string, opts unpackOptions) error {
	if !opts.AllowOverwrite {
		empty, err := dirEmpty(destDir)
		if err != nil {
			return err
		}
		if !empty {
			return ErrInvalidState
		}
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return wrapIo("open archive", err)
	}
	defer zr.Close()
	zr.RegisterDecompressor(zip.Deflate, flateDecompressor)

	var manifest *containerManifest
	for _, f := range zr.File {
		if f.Name == containerManifestName {
			m, err := readContainerManifest(f)
			if err != nil {
				return err
			}
			manifest = m
			break
		}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return wrapIo("create destination", err)
	}

	for _, f := range zr.File {
		if f.Name == containerManifestName {
			continue
		}
		if err := extractEntry(f, destDir, manifest); err != nil {
			return err
		}
	}
	return nil
}

// dirEmpty reports whether path is empty or does not yet exist.
func dirEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, wrapIo("stat destination", err)
	}
	return len(entries) == 0, nil
}

func readContainerManifest(f *zip.File) (*containerManifest, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, wrapIo("open manifest entry", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, wrapIo("read manifest entry", err)
	}
	var m containerManifest
	if err := jsonUnmarshal(data, &m); err != nil {
		return nil, wrapJson("decode container manifest", err)
	}
	return &m, nil
}

func extractEntry(f *zip.File, destDir string, manifest *containerManifest) error {
	rel := filepath.FromSlash(f.Name)
	target := filepath.Join(destDir, rel)

	// Guard against a crafted archive whose entry escapes destDir.
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return ErrCorruptedArchive
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return wrapIo("create entry directory", err)
	}

	rc, err := f.Open()
	if err != nil {
		return wrapIo("open archive entry", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return wrapIo("read archive entry", err)
	}

	if manifest != nil {
		want, ok := manifest.Digests[f.Name]
		if !ok {
			return ErrCorruptedArchive
		}
		got := blake2b.Sum256(data)
		if hex.EncodeToString(got[:]) != want {
			return ErrCorruptedArchive
		}
	}

	if err := os.WriteFile(target, data, 0o644); err != nil {
		return wrapIo("write extracted file", err)
	}
	return nil
}
