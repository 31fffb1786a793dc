package extract

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Factura   total:   1500  ", "Factura total: 1500"},
		{"a\t\tb", "a b"},
		{"", ""},
		{"línea única", "línea única"},
	}
	for _, c := range cases {
		if got := NormalizeText(c.in); got != c.want {
			t.Fatalf("NormalizeText(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeTextStripsNonPrintable(t *testing.T) {
	in := "total\x00\x01 1500"
	got := NormalizeText(in)
	for _, r := range got {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			t.Fatalf("non-printable survived normalization: %q", got)
		}
	}
}

func TestIsPotentialInvoiceText(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{"Factura total: 1500", true},
		{"INVOICE #12345", true},
		{"Hola como estas", false},   // no keyword, no digits
		{"factura pendiente", false}, // keyword but no 2+ digit run
		{"9999 soles", false},        // digits but no keyword
		{"", false},
	}
	for _, c := range cases {
		if got := IsPotentialInvoiceText(c.content); got != c.want {
			t.Fatalf("IsPotentialInvoiceText(%q) = %v, want %v", c.content, got, c.want)
		}
	}
}

func TestTextProcessorUTF8(t *testing.T) {
	p := NewTextProcessor(discardLogger())
	path := writeTemp(t, "f.txt", []byte("Factura   N° 001-123\ntotal  1500"))

	res := p.Process(path)
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if !res.IsPotentialInvoice {
		t.Fatal("expected invoice-likelihood true")
	}
	if res.Content != "Factura N° 001-123 total 1500" {
		t.Fatalf("unexpected normalized content: %q", res.Content)
	}
}

func TestTextProcessorLatin1Fallback(t *testing.T) {
	p := NewTextProcessor(discardLogger())
	// "Facturación 25" in Latin-1: ó is 0xF3, invalid as UTF-8.
	raw := []byte("Facturaci\xf3n 25")
	path := writeTemp(t, "latin.txt", raw)

	res := p.Process(path)
	if !res.Success {
		t.Fatalf("expected latin-1 fallback to succeed: %+v", res)
	}
	if res.Content != "Facturación 25" {
		t.Fatalf("unexpected decoded content: %q", res.Content)
	}
}

func TestTextProcessorMissingFile(t *testing.T) {
	p := NewTextProcessor(discardLogger())
	res := p.Process("/nonexistent/file.txt")
	if res.Success {
		t.Fatal("expected failure for missing file")
	}
	if res.Err == "" {
		t.Fatal("expected error message")
	}
}
