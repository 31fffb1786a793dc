package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/elviscruz45/api-facturas-transmind/constants"
	"github.com/elviscruz45/api-facturas-transmind/internal/entity"
)

// Classified holds the per-kind buckets produced by one run. Records
// inside each bucket keep ascending sequence-id order.
type Classified struct {
	Buckets map[constants.FileKind][]entity.ClassifiedRecord
}

func (c Classified) Total() int {
	n := 0
	for _, b := range c.Buckets {
		n += len(b)
	}
	return n
}

// Classifier determines a semantic kind per file and deduplicates by
// content hash.
type Classifier struct {
	log *slog.Logger
}

func NewClassifier(log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{log: log}
}

// Classify sniffs the media type, derives the kind from the extension,
// cross-checks the two, hashes content for dedup and buckets each file
// by kind. Duplicate hashes are dropped silently, first seen wins. A
// per-file failure demotes the file to "other" with an empty hash so a
// single bad file never blocks the batch.
func (c *Classifier) Classify(files []entity.IndexedFile) Classified {
	out := Classified{Buckets: map[constants.FileKind][]entity.ClassifiedRecord{
		constants.KindText:  {},
		constants.KindImage: {},
		constants.KindPDF:   {},
		constants.KindOther: {},
	}}

	seen := make(map[string]struct{})

	for _, f := range files {
		hash, err := hashFile(f.FilePath)
		if err != nil {
			c.log.Error("classifier.file_failed",
				"filename", f.Filename,
				"sequence_id", f.SequenceID,
				"error", err,
			)
			out.Buckets[constants.KindOther] = append(out.Buckets[constants.KindOther], entity.ClassifiedRecord{
				SequenceID: f.SequenceID,
				Filename:   f.Filename,
				Kind:       constants.KindOther,
				MIMEType:   constants.OctetStream,
				FilePath:   f.FilePath,
				FileSize:   f.FileSize,
			})
			continue
		}

		if _, dup := seen[hash]; dup {
			c.log.Warn("classifier.duplicate_skipped",
				"filename", f.Filename,
				"sequence_id", f.SequenceID,
				"hash", truncateHash(hash),
			)
			continue
		}
		seen[hash] = struct{}{}

		mime := c.detectMIMEType(f.FilePath, f.Filename)
		kind := c.classifyKind(f.Filename, mime)

		rec := entity.ClassifiedRecord{
			SequenceID:  f.SequenceID,
			Filename:    f.Filename,
			Kind:        kind,
			MIMEType:    mime,
			ContentHash: hash,
			FilePath:    f.FilePath,
			FileSize:    f.FileSize,
		}
		out.Buckets[kind] = append(out.Buckets[kind], rec)

		c.log.Info("classifier.classified",
			"filename", f.Filename,
			"sequence_id", f.SequenceID,
			"kind", string(kind),
			"mime_type", mime,
			"hash", truncateHash(hash),
			"file_size", f.FileSize,
		)
	}

	c.log.Info("classifier.completed",
		"total_files", out.Total(),
		"text_files", len(out.Buckets[constants.KindText]),
		"image_files", len(out.Buckets[constants.KindImage]),
		"pdf_files", len(out.Buckets[constants.KindPDF]),
		"other_files", len(out.Buckets[constants.KindOther]),
	)
	return out
}

// Processable concatenates the text, image and pdf buckets and
// restores global chronological order by sequence id.
func (c *Classifier) Processable(classified Classified) []entity.ClassifiedRecord {
	var records []entity.ClassifiedRecord
	for _, kind := range []constants.FileKind{constants.KindText, constants.KindImage, constants.KindPDF} {
		records = append(records, classified.Buckets[kind]...)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].SequenceID < records[j].SequenceID
	})

	c.log.Info("classifier.processable",
		"total_processable", len(records),
		"other_files_skipped", len(classified.Buckets[constants.KindOther]),
	)
	return records
}

// detectMIMEType sniffs media type from content; filenames never feed
// the sniffer. Detection failure falls back to octet-stream only.
func (c *Classifier) detectMIMEType(path, filename string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		c.log.Error("classifier.mime_detection_failed",
			"filename", filename,
			"error", err,
		)
		return constants.OctetStream
	}
	// Drop parameters like "; charset=utf-8".
	mime := mt.String()
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}

// classifyKind derives the kind from the extension and cross-checks it
// against the sniffed media type. A mismatch is logged but the
// extension-derived kind is kept; media-type is advisory only.
func (c *Classifier) classifyKind(filename, mime string) constants.FileKind {
	kind := constants.KindForFilename(filename)
	if kind == constants.KindOther {
		return kind
	}

	expected := constants.ExpectedMIMETypes[kind]
	match := false
	for _, m := range expected {
		if m == mime {
			match = true
			break
		}
	}
	if !match {
		c.log.Warn("classifier.mime_mismatch",
			"filename", filename,
			"expected_kind", string(kind),
			"actual_mime_type", mime,
			"expected_mime_types", strings.Join(expected, ","),
		)
	}
	return kind
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func truncateHash(h string) string {
	if len(h) <= 8 {
		return h
	}
	return h[:8] + "..."
}
