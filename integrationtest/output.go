/*
 * Copyright (c) 2017 Kurt Jung (Gmail: kurt.w.jung)
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

package integrationtest

import (
	"bytes"

	"go.uber.org/zap"
)

// zapWriter logs subprocess output one line per entry. Partial lines are held
// until their newline arrives or Flush is called. It is not safe for
// concurrent use; each stream gets its own writer.
type zapWriter struct {
	logger *zap.Logger
	name   string
	pid    int
	buf    []byte
}

func (zw *zapWriter) Write(p []byte) (n int, err error) {
	zw.buf = append(zw.buf, p...)
	for {
		i := bytes.IndexByte(zw.buf, '\n')
		if i < 0 {
			break
		}
		zw.emit(zw.buf[:i])
		zw.buf = zw.buf[i+1:]
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (zw *zapWriter) Flush() {
	if len(zw.buf) > 0 {
		zw.emit(zw.buf)
	}
	zw.buf = nil
}

func (zw *zapWriter) emit(line []byte) {
	zw.logger.Info("subprocess "+zw.name,
		zap.Int("pid", zw.pid),
		zap.String("msg", string(bytes.TrimRight(line, "\r"))))
}
