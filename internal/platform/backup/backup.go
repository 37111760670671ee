// Package backup implements the .ah archive format: a single JSON document
// with a meta envelope and one array per collection. Timestamps are tagged
// as {"__ts": <RFC3339>} objects so they survive the round trip as real
// times instead of strings.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// AppName must match on restore. It guards against loading an archive
	// from an unrelated product.
	AppName = "clinerva"

	// FormatVersion is written on export. Restore accepts this version only.
	FormatVersion = 1

	// FileExtension is the archive's on-disk suffix.
	FileExtension = ".ah"

	// RestoreChunkSize bounds the documents written per restore call so a
	// large archive never turns into one giant write.
	RestoreChunkSize = 400

	timestampTag = "__ts"
)

var (
	ErrWrongApp           = errors.New("archive was not exported by this application")
	ErrUnsupportedVersion = errors.New("archive format version is not supported")
	ErrMissingMeta        = errors.New("archive has no meta section")
)

// Meta identifies an archive.
type Meta struct {
	App        string    `json:"app"`
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
}

// Archive is the in-memory form of a .ah file. CollectionOrder preserves the
// export order so restores replay parents before children.
type Archive struct {
	Meta            Meta
	CollectionOrder []string
	Collections     map[string][]map[string]interface{}
}

// NewArchive prepares an empty archive stamped with the current meta.
func NewArchive(now time.Time) *Archive {
	return &Archive{
		Meta:        Meta{App: AppName, Version: FormatVersion, ExportedAt: now.UTC()},
		Collections: map[string][]map[string]interface{}{},
	}
}

// Add appends a collection's documents in export order.
func (a *Archive) Add(name string, docs []map[string]interface{}) {
	if _, ok := a.Collections[name]; !ok {
		a.CollectionOrder = append(a.CollectionOrder, name)
	}
	a.Collections[name] = append(a.Collections[name], docs...)
}

// DocumentCount totals documents across all collections.
func (a *Archive) DocumentCount() int {
	n := 0
	for _, docs := range a.Collections {
		n += len(docs)
	}
	return n
}

type fileEnvelope struct {
	Meta        Meta                         `json:"meta"`
	Order       []string                     `json:"order"`
	Collections map[string][]json.RawMessage `json:"collections"`
}

// Write serializes the archive, tagging every time.Time on the way out.
func Write(w io.Writer, a *Archive) error {
	env := fileEnvelope{
		Meta:        a.Meta,
		Order:       a.CollectionOrder,
		Collections: map[string][]json.RawMessage{},
	}
	for name, docs := range a.Collections {
		out := make([]json.RawMessage, 0, len(docs))
		for _, doc := range docs {
			raw, err := json.Marshal(tagTimestamps(doc))
			if err != nil {
				return fmt.Errorf("encode %s document: %w", name, err)
			}
			out = append(out, raw)
		}
		env.Collections[name] = out
	}

	enc := json.NewEncoder(w)
	return enc.Encode(env)
}

// Read parses and validates an archive. The meta envelope is checked before
// any collection is decoded, so a foreign or corrupt file is rejected before
// a restore can touch anything.
func Read(r io.Reader) (*Archive, error) {
	var env fileEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("parse archive: %w", err)
	}
	if env.Meta.App == "" {
		return nil, ErrMissingMeta
	}
	if env.Meta.App != AppName {
		return nil, fmt.Errorf("%w: got %q", ErrWrongApp, env.Meta.App)
	}
	if env.Meta.Version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d", ErrUnsupportedVersion, env.Meta.Version)
	}

	a := &Archive{
		Meta:            env.Meta,
		CollectionOrder: env.Order,
		Collections:     map[string][]map[string]interface{}{},
	}
	for name, raws := range env.Collections {
		docs := make([]map[string]interface{}, 0, len(raws))
		for _, raw := range raws {
			var doc map[string]interface{}
			if err := json.Unmarshal(raw, &doc); err != nil {
				return nil, fmt.Errorf("decode %s document: %w", name, err)
			}
			untagged, ok := untagTimestamps(doc).(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("decode %s document: not an object", name)
			}
			docs = append(docs, untagged)
		}
		a.Collections[name] = docs
	}
	// Older exports may miss the explicit order; fall back to map order.
	if len(a.CollectionOrder) == 0 {
		for name := range a.Collections {
			a.CollectionOrder = append(a.CollectionOrder, name)
		}
	}
	return a, nil
}

// tagTimestamps deep-copies a value, replacing time.Time with the tag object.
func tagTimestamps(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return map[string]interface{}{timestampTag: val.UTC().Format(time.RFC3339Nano)}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = tagTimestamps(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = tagTimestamps(inner)
		}
		return out
	default:
		return v
	}
}

// untagTimestamps is the inverse: {"__ts": s} objects become time.Time.
func untagTimestamps(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 1 {
			if s, ok := val[timestampTag].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return t
				}
			}
		}
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = untagTimestamps(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = untagTimestamps(inner)
		}
		return out
	default:
		return v
	}
}

// RestoreFunc writes one chunk of documents for a collection. Implementations
// must be transactional per call: a chunk either lands fully or not at all.
type RestoreFunc func(ctx context.Context, collection string, docs []map[string]interface{}) error

// RestoreStats reports what a restore committed before finishing or failing.
type RestoreStats struct {
	Collections int
	Documents   int
}

// Restore replays the archive through fn in RestoreChunkSize batches,
// following the export order. On error it stops immediately; chunks already
// written stay written, and the returned stats say how far it got.
func Restore(ctx context.Context, a *Archive, fn RestoreFunc) (RestoreStats, error) {
	var stats RestoreStats
	for _, name := range a.CollectionOrder {
		docs := a.Collections[name]
		for start := 0; start < len(docs); start += RestoreChunkSize {
			end := start + RestoreChunkSize
			if end > len(docs) {
				end = len(docs)
			}
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if err := fn(ctx, name, docs[start:end]); err != nil {
				return stats, fmt.Errorf("restore %s documents %d-%d: %w", name, start, end-1, err)
			}
			stats.Documents += end - start
		}
		if len(docs) > 0 {
			stats.Collections++
		}
	}
	return stats, nil
}
