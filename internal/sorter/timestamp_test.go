package sorter

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseWhatsAppTimestamp(t *testing.T) {
	log := discardLogger()

	ts, ok := ParseWhatsAppTimestamp("IMG-20260115-WA0005.jpg", log)
	if !ok {
		t.Fatal("expected match for IMG pattern")
	}
	want := time.Date(2026, 1, 15, 0, 0, 0, 5000*1000, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("got %v, want %v", ts, want)
	}

	for _, name := range []string{
		"DOC-20251231-WA0002.pdf",
		"VID-20240229-WA0001.mp4",
		"AUD-20260301-WA0000.opus",
		"PTT-20260301-WA0010.opus",
	} {
		if _, ok := ParseWhatsAppTimestamp(name, log); !ok {
			t.Fatalf("expected match for %q", name)
		}
	}
}

func TestParseWhatsAppTimestampOffsetCap(t *testing.T) {
	ts, ok := ParseWhatsAppTimestamp("IMG-20260115-WA9999.jpg", discardLogger())
	if !ok {
		t.Fatal("expected match")
	}
	// 9999*1000 exceeds the microsecond range and is capped.
	if got := ts.Nanosecond(); got != 999999*1000 {
		t.Fatalf("offset not capped: %d ns", got)
	}
}

func TestParseWhatsAppTimestampInvalidDateFallsThrough(t *testing.T) {
	log := discardLogger()
	for _, name := range []string{
		"IMG-20261345-WA0001.jpg", // month 13
		"IMG-20260230-WA0001.jpg", // Feb 30
		"IMG-20260100-WA0001.jpg", // day 0
	} {
		if _, ok := ParseWhatsAppTimestamp(name, log); ok {
			t.Fatalf("expected non-match for invalid date %q", name)
		}
	}
}

func TestParseWhatsAppTimestampNoPattern(t *testing.T) {
	for _, name := range []string{"invoice.pdf", "photo.jpg", "XYZ-20260115-WA0001.jpg"} {
		if _, ok := ParseWhatsAppTimestamp(name, discardLogger()); ok {
			t.Fatalf("expected non-match for %q", name)
		}
	}
}

func TestResolveTimestampPriority(t *testing.T) {
	log := discardLogger()

	// Naming convention wins even when the filesystem time is earlier.
	archiveTime := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	ts, source := ResolveTimestamp("IMG-20260115-WA0001.jpg", "/nonexistent/path", archiveTime, log)
	if source != "whatsapp_filename" {
		t.Fatalf("expected whatsapp_filename source, got %s", source)
	}
	if ts.Year() != 2026 {
		t.Fatalf("expected naming-convention date, got %v", ts)
	}

	// No pattern, no stat, but an archive mtime: filesystem source.
	ts, source = ResolveTimestamp("invoice.pdf", "/nonexistent/path", archiveTime, log)
	if source != "filesystem" || !ts.Equal(archiveTime) {
		t.Fatalf("expected archive mtime with filesystem source, got %v (%s)", ts, source)
	}

	// Nothing at all: degraded current-time source.
	before := time.Now().UTC()
	ts, source = ResolveTimestamp("invoice.pdf", "/nonexistent/path", time.Time{}, log)
	if source != "current_time" {
		t.Fatalf("expected current_time source, got %s", source)
	}
	if ts.Before(before.Add(-time.Minute)) {
		t.Fatalf("current-time fallback too old: %v", ts)
	}
}

func TestFilesystemTimestampTakesEarlier(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/f.txt"
	if err := writeFile(path, []byte("x")); err != nil {
		t.Fatal(err)
	}

	// Archive time far in the past must win over the fresh mtime.
	old := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	ts, ok := filesystemTimestamp(path, old)
	if !ok || !ts.Equal(old) {
		t.Fatalf("expected archive time %v, got %v (ok=%v)", old, ts, ok)
	}

	// Archive time in the future loses to the on-disk mtime.
	future := time.Now().Add(24 * time.Hour)
	ts, ok = filesystemTimestamp(path, future)
	if !ok || ts.Equal(future) {
		t.Fatalf("expected on-disk mtime, got %v (ok=%v)", ts, ok)
	}
}
