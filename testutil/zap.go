// Package testutil holds shared helpers for package tests.
package testutil

import (
	"encoding/hex"
	"io"
	"net/url"
	"testing"

	"go.uber.org/zap"
)

// NewLogger returns a test logger that discards its output. Logged lines
// still run through the full encoder, so logging bugs surface in tests.
func NewLogger(t *testing.T) *zap.SugaredLogger {
	return NewLoggerWithWriter(t, io.Discard)
}

// NewLoggerWithWriter builds a zap logger writing to w. Capturing output in
// a buffer lets a test assert on what was logged.
//
// Zap sinks are addressed by URL scheme, so a scheme unique to the test is
// registered for the writer. Registering the same scheme twice fails, which
// limits this to one call per test.
func NewLoggerWithWriter(t *testing.T, w io.Writer) *zap.SugaredLogger {
	scheme := testScheme(t)
	factory := func(u *url.URL) (zap.Sink, error) { return writerSink{w}, nil }
	if err := zap.RegisterSink(scheme, factory); err != nil {
		t.Fatalf("registering zap scheme %q: %s", scheme, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{scheme + "://" + t.Name()}
	base, err := cfg.Build()
	if err != nil {
		t.Fatalf("building zap logger: %s", err)
	}
	return base.Sugar()
}

// testScheme derives a scheme from the test name. Schemes must start with a
// letter, hence the prefix.
func testScheme(t *testing.T) string {
	return "t" + hex.EncodeToString([]byte(t.Name()))
}

// writerSink adapts an io.Writer to zap.Sink.
type writerSink struct {
	io.Writer
}

func (s writerSink) Sync() error { return nil }

func (s writerSink) Close() error { return nil }
