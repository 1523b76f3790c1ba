package runfiles

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Config is the read-only state shared by every request. It is built once at
// startup and handed to NewResponder.
type Config struct {
	// Root is the runfiles directory. Relative roots are made absolute
	// against the working directory; empty means the working directory.
	Root string
	// Mime resolves content types. Nil uses the platform registry.
	Mime *MimeTable
	// Snippet is appended to HTML payloads when non-empty.
	Snippet LiveReloadSnippet
	Logger  *zap.Logger
	Metrics *ResponseMetrics
}

// Responder serves files from the runfiles tree verbatim, appending the live
// reload snippet to HTML files. It holds no mutable state, so one Responder
// serves any number of concurrent requests.
type Responder struct {
	root    string
	mime    *MimeTable
	snippet LiveReloadSnippet
	logger  *zap.Logger
	metrics *ResponseMetrics
}

// NewResponder validates cfg and returns a Responder for it.
func NewResponder(cfg Config) (*Responder, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving runfiles root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("runfiles root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("runfiles root %s is not a directory", root)
	}

	rs := &Responder{
		root:    root,
		mime:    cfg.Mime,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if len(cfg.Snippet) > 0 {
		rs.snippet = append(LiveReloadSnippet(nil), cfg.Snippet...)
	}
	if rs.mime == nil {
		rs.mime = NewMimeTable()
	}
	if rs.logger == nil {
		rs.logger = zap.NewNop()
	}
	return rs, nil
}

// Root returns the absolute runfiles root.
func (rs *Responder) Root() string {
	return rs.root
}

// Lookup resolves a URL path to a regular file under the root. Rejected
// paths, missing files and directories all yield an error; callers should
// not distinguish between them in what they send to clients.
func (rs *Responder) Lookup(urlPath string) (string, fs.FileInfo, error) {
	name, err := Resolve(urlPath, rs.root)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(name)
	if err != nil {
		return "", nil, err
	}
	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%s is not a regular file: %w", name, fs.ErrNotExist)
	}
	return name, info, nil
}

func (rs *Responder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := rs.serve(w, r)
	rs.logger.Info("served",
		zap.Int("status", status),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path))
	rs.metrics.observe(status)
}

func (rs *Responder) serve(w http.ResponseWriter, r *http.Request) int {
	name, info, err := rs.Lookup(r.URL.Path)
	if err != nil {
		if !errors.Is(err, ErrRejectedPath) && !errors.Is(err, fs.ErrNotExist) {
			rs.logger.Debug("lookup failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
		return notFound(w)
	}

	f, err := os.Open(name)
	if err != nil {
		rs.logger.Debug("open failed", zap.String("file", name), zap.Error(err))
		return notFound(w)
	}
	defer f.Close()

	inject := rs.shouldInject(name)
	length := info.Size()
	if inject {
		length += int64(len(rs.snippet))
	}

	h := w.Header()
	h.Set("Content-Type", rs.mime.ContentType(name))
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return http.StatusOK
	}
	if _, err := io.Copy(w, f); err != nil {
		rs.logger.Warn("writing response body", zap.String("file", name), zap.Error(err))
		return http.StatusOK
	}
	if inject {
		if _, err := w.Write(rs.snippet); err != nil {
			rs.logger.Warn("writing live reload snippet", zap.String("file", name), zap.Error(err))
		}
	}
	return http.StatusOK
}

func (rs *Responder) shouldInject(name string) bool {
	return len(rs.snippet) > 0 && strings.EqualFold(filepath.Ext(name), ".html")
}

func notFound(w http.ResponseWriter) int {
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusNotFound)
	return http.StatusNotFound
}
