// Collection and root metadata documents.
package zds

import (
	"os"
	"time"
)

// CollectionManifest is the small text document describing a
// collection's version, strictness, creation time, and derived counts.
type CollectionManifest struct {
	Version    string    `json:"version"`
	Collection string    `json:"collection"`
	Strict     bool      `json:"strict"`
	CreatedAt  time.Time `json:"created_at"`
	DocCount   int       `json:"doc_count"`
	PerDoc     bool      `json:"per_doc,omitempty"`

	// HasShape and ShapeHash persist strict mode's captured shape across
	// restarts. Without this, reopening a strict collection would treat
	// the next put as the first one and silently re-capture whatever
	// shape it happens to see.
	HasShape  bool   `json:"has_shape,omitempty"`
	ShapeHash uint64 `json:"shape_hash,omitempty"`
}

const manifestVersion = "1.0.0"

func newCollectionManifest(name string, strict, perDoc bool) CollectionManifest {
	return CollectionManifest{
		Version:    manifestVersion,
		Collection: name,
		Strict:     strict,
		CreatedAt:  time.Now().UTC(),
		PerDoc:     perDoc,
	}
}

func loadCollectionManifest(path string) (CollectionManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return CollectionManifest{}, err
		}
		return CollectionManifest{}, wrapIo("load manifest", err)
	}
	var m CollectionManifest
	if err := jsonUnmarshal(data, &m); err != nil {
		return CollectionManifest{}, wrapJson("parse manifest", err)
	}
	return m, nil
}

func saveCollectionManifest(path string, m CollectionManifest) error {
	data, err := jsonMarshal(m)
	if err != nil {
		return wrapJson("encode manifest", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return wrapIo("save manifest", err)
	}
	return nil
}

// RootManifest is the optional root-level metadata document
// (<root>/zds.json): a descriptive name, timestamps, a per-collection
// summary, and a reserved extensions object for forward compatibility.
type RootManifest struct {
	Name        string                     `json:"name"`
	CreatedAt   time.Time                  `json:"created_at"`
	ModifiedAt  time.Time                  `json:"modified_at"`
	Collections map[string]CollectionStats `json:"collections"`
	Extensions  map[string]any             `json:"extensions,omitempty"`
}

// CollectionStats is the per-collection summary embedded in RootManifest.
type CollectionStats struct {
	DocCount int `json:"doc_count"`
}

func loadRootManifest(path string) (RootManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RootManifest{}, err
	}
	var m RootManifest
	if err := jsonUnmarshal(data, &m); err != nil {
		return RootManifest{}, wrapJson("parse root manifest", err)
	}
	return m, nil
}

func saveRootManifest(path string, m RootManifest) error {
	m.ModifiedAt = time.Now().UTC()
	data, err := jsonMarshal(m)
	if err != nil {
		return wrapJson("encode root manifest", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return wrapIo("save root manifest", err)
	}
	return nil
}
