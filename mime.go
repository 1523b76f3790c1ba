package runfiles

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const defaultContentType = "application/octet-stream"

// MimeTable maps file extensions to media types. Entries loaded from a
// mime.types file take precedence over the platform registry. A MimeTable is
// not modified after construction.
type MimeTable struct {
	overrides map[string]string
}

// NewMimeTable returns a table backed by the platform MIME registry only.
func NewMimeTable() *MimeTable {
	return &MimeTable{overrides: map[string]string{}}
}

// LoadMimeTable reads an Apache-style mime.types file ("type ext1 ext2 ...",
// '#' comments) on top of the platform registry.
func LoadMimeTable(path string) (*MimeTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mime types file: %w", err)
	}
	defer f.Close()

	t, err := parseMimeTypes(f)
	if err != nil {
		return nil, fmt.Errorf("reading mime types file %s: %w", path, err)
	}
	return t, nil
}

func parseMimeTypes(r io.Reader) (*MimeTable, error) {
	t := NewMimeTable()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		for _, ext := range fields[1:] {
			t.overrides["."+strings.ToLower(strings.TrimPrefix(ext, "."))] = fields[0]
		}
	}
	return t, scanner.Err()
}

// ContentType returns the Content-Type header for name. Textual types always
// carry a single "charset=utf-8" parameter.
func (t *MimeTable) ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	typ, ok := t.overrides[ext]
	if !ok {
		typ = mime.TypeByExtension(ext)
	}
	if typ == "" {
		return defaultContentType
	}

	mediaType, params, err := mime.ParseMediaType(typ)
	if err != nil {
		return typ
	}
	if strings.HasPrefix(mediaType, "text/") {
		if params == nil {
			params = map[string]string{}
		}
		params["charset"] = "utf-8"
	}
	return mime.FormatMediaType(mediaType, params)
}
