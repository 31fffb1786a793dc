package constants

import "strings"

// FileKind is the semantic kind assigned to every classified file.
type FileKind string

// Stable values (these exact strings appear in responses and DB rows).
const (
	KindText  FileKind = "text"
	KindImage FileKind = "image"
	KindPDF   FileKind = "pdf"
	KindOther FileKind = "other"
)

// KindByExtension maps a normalized extension to its candidate kind.
// Extension is authoritative; the sniffed MIME type is advisory only.
var KindByExtension = map[string]FileKind{
	"txt":  KindText,
	"jpg":  KindImage,
	"jpeg": KindImage,
	"png":  KindImage,
	"pdf":  KindPDF,
}

// ExpectedMIMETypes is the per-kind allow-list used to cross-check the
// sniffed media type against the extension-derived kind.
var ExpectedMIMETypes = map[FileKind][]string{
	KindText:  {"text/plain", "text/utf-8"},
	KindImage: {"image/jpeg", "image/png", "image/jpg"},
	KindPDF:   {"application/pdf"},
}

// AllowedExtensions holds the archive-member extensions retained during
// ZIP extraction; everything else is filtered out as irrelevant.
var AllowedExtensions = map[string]struct{}{
	"txt":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"pdf":  {},
}

// OctetStream is the fallback media type when sniffing fails.
const OctetStream = "application/octet-stream"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// KindForFilename returns the extension-derived kind for a filename.
func KindForFilename(filename string) FileKind {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return KindOther
	}
	if k, ok := KindByExtension[NormalizeExt(filename[idx:])]; ok {
		return k
	}
	return KindOther
}
