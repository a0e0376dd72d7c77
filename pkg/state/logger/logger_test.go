package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/valyala/fasthttp"
)

func TestMaskedValue(t *testing.T) {
	cases := map[string]string{
		"":          "",
		"ab":        "<redacted>",
		"secretkey": "s*****y",
	}
	for in, want := range cases {
		if got := maskedValue(in); got != want {
			t.Fatalf("maskedValue(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSafeHeadersFastRedactsCredentials(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("X-API-Key", "frontend-key")
	ctx.Request.Header.Set("X-User-ID", "u-1")
	out := SafeHeadersFast(&ctx)
	if strings.Contains(out, "frontend-key") {
		t.Fatalf("api key leaked: %s", out)
	}
	if !strings.Contains(out, "u-1") {
		t.Fatalf("expected user id in output: %s", out)
	}
}

func TestParseLevelAndWriter(t *testing.T) {
	if ParseLevel("WARN") != slog.LevelWarn {
		t.Fatalf("expected warn level")
	}
	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Fatalf("expected info default")
	}
	var buf bytes.Buffer
	InitWriter("info", &buf)
	defer func() { Log = nil }()
	Debug("hidden_event")
	Info("shown_event", "k", "v")
	if strings.Contains(buf.String(), "hidden_event") {
		t.Fatalf("debug should be filtered: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown_event") {
		t.Fatalf("info missing: %s", buf.String())
	}
}
