/*
Package runfiles serves a program's runfiles tree over HTTP for local
development.

Request paths are confined to the runfiles root, and HTML payloads get a
livereload script tag appended when ibazel sets IBAZEL_LIVERELOAD_URL. The
same handler is available standalone (Server, cmd/runfiles-server) and as
the Caddy directive `runfiles`.

On startup the server writes a single line to stdout, so it can act as the
system under test for package integrationtest.
*/
package runfiles
