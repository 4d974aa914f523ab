// Package filespec implements the FileSpecification value type: a file
// reference that is either a path on disk or an inline (filename, contents)
// pair, round-trippable to and from a flat JSON object.
package filespec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format discriminates the two shapes a FileSpecification can take.
type Format int

const (
	// Invalid marks a FileSpecification that was built from neither shape.
	Invalid Format = iota
	// Path shapes hold a single absolute path on disk.
	Path
	// Contents shapes hold an inline filename and its UTF-8 content.
	Contents
)

// Spec is a file reference: either a path on disk or inline content.
// The zero value is Invalid.
type Spec struct {
	format   Format
	path     string
	filename string
	contents string
}

// FromPath builds a path-form Spec from an absolute filesystem path.
func FromPath(path string) Spec {
	return Spec{format: Path, path: path}
}

// FromContents builds a content-form Spec from a leaf filename and its
// inline contents.
func FromContents(filename, contents string) Spec {
	return Spec{format: Contents, filename: filename, contents: contents}
}

type wireShape struct {
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename,omitempty"`
	Contents string `json:"contents,omitempty"`
}

// FromJSON reconstructs a Spec from its wire JSON object. The discriminant
// is the key set present: {"path"} selects Path form, {"filename",
// "contents"} selects Contents form. Any other shape yields Invalid.
func FromJSON(data []byte) (Spec, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Spec{}, fmt.Errorf("filespec: decode: %w", err)
	}
	return FromMap(raw), nil
}

// FromMap builds a Spec from a decoded JSON object's raw fields, applying
// the same discriminant rule as FromJSON.
func FromMap(raw map[string]json.RawMessage) Spec {
	_, hasPath := raw["path"]
	_, hasFilename := raw["filename"]
	_, hasContents := raw["contents"]

	switch {
	case hasPath && !hasFilename && !hasContents:
		var p string
		if err := json.Unmarshal(raw["path"], &p); err != nil {
			return Spec{}
		}
		return FromPath(p)
	case hasFilename && hasContents && !hasPath:
		var f, c string
		if err := json.Unmarshal(raw["filename"], &f); err != nil {
			return Spec{}
		}
		if err := json.Unmarshal(raw["contents"], &c); err != nil {
			return Spec{}
		}
		return FromContents(f, c)
	default:
		return Spec{}
	}
}

// ToJSON renders the Spec as its wire JSON object.
func (s Spec) ToJSON() ([]byte, error) {
	switch s.format {
	case Path:
		return json.Marshal(wireShape{Path: s.path})
	case Contents:
		return json.Marshal(wireShape{Filename: s.filename, Contents: s.contents})
	default:
		return json.Marshal(wireShape{})
	}
}

// ToMap renders the Spec as a generic map, for embedding in a larger
// wire object (e.g. a JobData hash).
func (s Spec) ToMap() map[string]any {
	switch s.format {
	case Path:
		return map[string]any{"path": s.path}
	case Contents:
		return map[string]any{"filename": s.filename, "contents": s.contents}
	default:
		return map[string]any{}
	}
}

// Format reports which shape this Spec holds.
func (s Spec) Format() Format { return s.format }

// IsValid reports whether the Spec was constructed from a recognized shape.
func (s Spec) IsValid() bool { return s.format != Invalid }

// Filename returns the leaf filename, with no path component, regardless
// of form.
func (s Spec) Filename() string {
	switch s.format {
	case Path:
		return filepath.Base(s.path)
	case Contents:
		return s.filename
	default:
		return ""
	}
}

// Filepath returns the absolute path for path-form specs, or "" for
// content-form and invalid specs.
func (s Spec) Filepath() string {
	if s.format != Path {
		return ""
	}
	return s.path
}

// Contents returns the file's content, reading from disk for path-form
// specs.
func (s Spec) Contents() (string, error) {
	switch s.format {
	case Path:
		b, err := os.ReadFile(s.path)
		if err != nil {
			return "", fmt.Errorf("filespec: read %s: %w", s.path, err)
		}
		return string(b), nil
	case Contents:
		return s.contents, nil
	default:
		return "", fmt.Errorf("filespec: invalid specification")
	}
}

// FileExists reports whether the referenced file exists on disk. Always
// false for content-form specs, which have no backing file until written.
func (s Spec) FileExists() bool {
	if s.format != Path {
		return false
	}
	_, err := os.Stat(s.path)
	return err == nil
}

// FileHasExtension reports whether the filename has a "." separating a
// base name from an extension.
func (s Spec) FileHasExtension() bool {
	name := s.Filename()
	dot := strings.LastIndex(name, ".")
	return dot > 0 && dot < len(name)-1
}

// FileBaseName returns the filename without its extension.
func (s Spec) FileBaseName() string {
	name := s.Filename()
	if !s.FileHasExtension() {
		return name
	}
	return name[:strings.LastIndex(name, ".")]
}

// FileExtension returns the filename's extension (without the leading
// dot), or "" if it has none.
func (s Spec) FileExtension() string {
	if !s.FileHasExtension() {
		return ""
	}
	name := s.Filename()
	return name[strings.LastIndex(name, ".")+1:]
}

// WriteFile writes the Spec's contents to dir, under overrideName if
// non-empty, else under Filename(). For path-form specs this copies the
// referenced file; for content-form specs it writes the inline content.
func (s Spec) WriteFile(dir, overrideName string) error {
	if !s.IsValid() {
		return fmt.Errorf("filespec: invalid specification")
	}
	name := overrideName
	if name == "" {
		name = s.Filename()
	}
	dest := filepath.Join(dir, name)

	contents, err := s.Contents()
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("filespec: write %s: %w", dest, err)
	}
	return nil
}
