package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

var lineRE = regexp.MustCompile(`^(DEBUG|INFO|WARNING|ERROR|CRITICAL) \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3} `)

func TestLineHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewLineHandler(&buf, slog.LevelDebug))

	log.Info("process running: /tmp/foxy/abc")
	log.Log(context.Background(), LevelCritical, "false raised boom", "cmd", "false", "n", 3)
	log.Warn("x", slog.Group("run", "pid", 42))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	for _, l := range lines {
		if !lineRE.MatchString(l) {
			t.Fatalf("line does not match LEVEL TIMESTAMP MESSAGE: %q", l)
		}
	}
	if !strings.HasPrefix(lines[0], "INFO ") || !strings.HasSuffix(lines[0], " process running: /tmp/foxy/abc") {
		t.Fatalf("unexpected info line: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "CRITICAL ") || !strings.HasSuffix(lines[1], "false raised boom cmd=false n=3") {
		t.Fatalf("unexpected critical line: %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "WARNING ") || !strings.HasSuffix(lines[2], " x run.pid=42") {
		t.Fatalf("unexpected warning line: %q", lines[2])
	}
}

func TestLineHandler_LevelFilterAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewLineHandler(&buf, slog.LevelInfo)).With("id", "abc").WithGroup("g")

	log.Debug("hidden")
	log.Info("shown", "msg", "has space")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record should be filtered: %q", out)
	}
	if !strings.Contains(out, `shown id=abc g.msg="has space"`) {
		t.Fatalf("unexpected attrs rendering: %q", out)
	}
}

func TestLevelName(t *testing.T) {
	cases := map[slog.Level]string{
		slog.LevelDebug: "DEBUG",
		slog.LevelInfo:  "INFO",
		slog.LevelWarn:  "WARNING",
		slog.LevelError: "ERROR",
		LevelCritical:   "CRITICAL",
	}
	for l, want := range cases {
		if got := LevelName(l); got != want {
			t.Errorf("LevelName(%v)=%q want %q", l, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":         slog.LevelInfo,
		"DEBUG":    slog.LevelDebug,
		"warning":  slog.LevelWarn,
		"warn":     slog.LevelWarn,
		"error":    slog.LevelError,
		"critical": LevelCritical,
	} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q)=%v,%v want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestWriter_Rotation(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{File: filepath.Join(dir, "nested", "foxy.log")}
	w, err := cfg.Writer()
	if err != nil {
		t.Fatalf("Writer error: %v", err)
	}
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("expected *lumberjack.Logger, got %T", w)
	}
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("expected defaults, got size=%d backups=%d age=%d", l.MaxSize, l.MaxBackups, l.MaxAge)
	}
	_, _ = w.Write([]byte("x\n"))
	_ = w.Close()
	if _, err := os.Stat(cfg.File); err != nil {
		t.Fatalf("log file not created: %v", err)
	}

	cfg = Config{File: filepath.Join(dir, "b.log"), MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 2, Compress: true}
	w, _ = cfg.Writer()
	l = w.(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 2 || !l.Compress {
		t.Fatalf("explicit rotation settings not applied: %+v", l)
	}
	_ = w.Close()

	if w, err := (Config{}).Writer(); w != nil || err != nil {
		t.Fatalf("empty File should disable the writer, got %v %v", w, err)
	}
}

func TestNew_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foxy.log")
	log, closer, err := New(Config{File: path})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	log.Info("first")
	log.Error("second")
	_ = closer.Close()

	log, closer, err = New(Config{File: path})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	log.Info("third")
	_ = closer.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 appended lines, got %q", string(b))
	}
	if !strings.HasPrefix(lines[1], "ERROR ") {
		t.Fatalf("unexpected second line: %q", lines[1])
	}
}

func TestNew_NoDestinations(t *testing.T) {
	log, closer, err := New(Config{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	log.Error("dropped")
	if err := closer.Close(); err != nil {
		t.Fatalf("closer: %v", err)
	}
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorTextHandler(&buf, nil, false))
	log.Log(context.Background(), LevelCritical, "boom")
	out := buf.String()
	if !strings.Contains(out, "CRITICAL") || !strings.Contains(out, "\033[35m") {
		t.Fatalf("expected colored CRITICAL, got %q", out)
	}
	if strings.Contains(out, "time=") || strings.Contains(out, "level=") {
		t.Fatalf("time/level should be dropped, got %q", out)
	}

	buf.Reset()
	slog.New(NewColorTextHandler(&buf, nil, true)).With("k", "v").Info("hi")
	if !strings.Contains(buf.String(), "time=") || !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("expected time and attrs, got %q", buf.String())
	}
}
