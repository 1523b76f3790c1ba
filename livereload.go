package runfiles

import (
	"fmt"
	"os"
)

// LiveReloadEnv is set by ibazel for targets tagged ibazel_live_reload. It
// holds the URL of the livereload script.
const LiveReloadEnv = "IBAZEL_LIVERELOAD_URL"

// LiveReloadSnippet is the script tag appended to served HTML. A nil snippet
// disables injection.
type LiveReloadSnippet []byte

// NewLiveReloadSnippet formats the script tag for url, or returns nil when
// url is empty.
func NewLiveReloadSnippet(url string) LiveReloadSnippet {
	if url == "" {
		return nil
	}
	return LiveReloadSnippet(fmt.Sprintf("<script src=\"%s\"></script>", url))
}

// LiveReloadSnippetFromEnv builds the snippet from IBAZEL_LIVERELOAD_URL.
func LiveReloadSnippetFromEnv() LiveReloadSnippet {
	return NewLiveReloadSnippet(os.Getenv(LiveReloadEnv))
}
