/*
 * Copyright (c) 2020 Andreas Schneider
 *
 * Permission to use, copy, modify, and distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package runfiles

import (
	"fmt"
	"net/http"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"
)

func init() {
	caddy.RegisterModule(Runfiles{})
	// RegisterHandlerDirective associates the "runfiles" directive in the
	// Caddyfile with parseCaddyfile.
	httpcaddyfile.RegisterHandlerDirective("runfiles", parseCaddyfile)
	// Order it like file_server so no explicit "order" block is needed.
	httpcaddyfile.RegisterDirectiveOrder("runfiles", httpcaddyfile.Before, "file_server")
}

// Runfiles is a Caddy handler that serves a runfiles tree verbatim, with the
// same path confinement and live reload injection as runfiles-server.
type Runfiles struct {
	// Runfiles root (default: Caddy's working directory)
	Root string `json:"root,omitempty"`
	// URL of the livereload script. Defaults to $IBAZEL_LIVERELOAD_URL.
	LiveReloadURL string `json:"live_reload_url,omitempty"`
	// Apache-style mime.types file overriding the platform registry
	MimeTypes string `json:"mime_types,omitempty"`
	// Hand missing or rejected paths to the next handler instead of
	// answering 404
	PassThru bool `json:"pass_thru,omitempty"`

	responder *Responder
	logger    *zap.Logger
}

// Interface guards
var (
	_ caddyhttp.MiddlewareHandler = (*Runfiles)(nil)
	_ caddyfile.Unmarshaler       = (*Runfiles)(nil)
	_ caddy.Provisioner           = (*Runfiles)(nil)
)

func (Runfiles) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.runfiles",
		New: func() caddy.Module { return new(Runfiles) },
	}
}

// UnmarshalCaddyfile implements caddyfile.Unmarshaler. Syntax:
//
//	runfiles [<matcher>] [<root>] {
//	    root            <dir>
//	    live_reload_url <url>
//	    mime_types      <file>
//	    pass_thru
//	}
//
// Like file_server, a first argument starting with "/" is taken as a path
// matcher. An absolute positional root therefore needs a matcher in front of
// it (runfiles * /abs/root), or goes in the block as root.
func (c *Runfiles) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	for d.Next() {
		args := d.RemainingArgs()
		switch len(args) {
		case 0:
		case 1:
			c.Root = args[0]
		default:
			return d.ArgErr()
		}
		for d.NextBlock(0) {
			switch d.Val() {
			case "root":
				if !d.Args(&c.Root) {
					return d.ArgErr()
				}
			case "live_reload_url":
				if !d.Args(&c.LiveReloadURL) {
					return d.ArgErr()
				}
			case "mime_types":
				if !d.Args(&c.MimeTypes) {
					return d.ArgErr()
				}
			case "pass_thru":
				if d.NextArg() {
					return d.ArgErr()
				}
				c.PassThru = true
			default:
				return d.Errf("unknown subdirective: %q", d.Val())
			}
		}
	}
	return nil
}

// Provision implements caddy.Provisioner; it builds the immutable responder
// state once per config load.
func (c *Runfiles) Provision(ctx caddy.Context) error {
	c.logger = ctx.Logger(c)

	repl := caddy.NewReplacer()
	root := repl.ReplaceKnown(c.Root, "")

	mimeTable := NewMimeTable()
	if c.MimeTypes != "" {
		t, err := LoadMimeTable(repl.ReplaceKnown(c.MimeTypes, ""))
		if err != nil {
			return err
		}
		mimeTable = t
	}

	snippet := LiveReloadSnippetFromEnv()
	if c.LiveReloadURL != "" {
		snippet = NewLiveReloadSnippet(repl.ReplaceKnown(c.LiveReloadURL, ""))
	}

	var metrics *ResponseMetrics
	if reg := ctx.GetMetricsRegistry(); reg != nil {
		m, err := NewResponseMetrics(reg)
		if err != nil {
			return fmt.Errorf("registering runfiles metrics: %v", err)
		}
		metrics = m
	}

	responder, err := NewResponder(Config{
		Root:    root,
		Mime:    mimeTable,
		Snippet: snippet,
		Logger:  c.logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	c.responder = responder

	c.logger.Debug("provisioned runfiles handler",
		zap.String("root", responder.Root()),
		zap.Bool("live_reload", len(snippet) > 0),
		zap.Bool("pass_thru", c.PassThru))
	return nil
}

// ServeHTTP implements caddyhttp.MiddlewareHandler.
func (c *Runfiles) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	if c.responder == nil {
		return fmt.Errorf("runfiles handler not provisioned")
	}
	if c.PassThru {
		if _, _, err := c.responder.Lookup(r.URL.Path); err != nil {
			return next.ServeHTTP(w, r)
		}
	}
	c.responder.ServeHTTP(w, r)
	return nil
}

// parseCaddyfile unmarshals tokens from h into a new Middleware.
func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	c := new(Runfiles)
	err := c.UnmarshalCaddyfile(h.Dispenser)
	return c, err
}
