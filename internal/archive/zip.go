package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/elviscruz45/api-facturas-transmind/constants"
	"github.com/elviscruz45/api-facturas-transmind/internal/common"
	"github.com/elviscruz45/api-facturas-transmind/internal/entity"
)

// maxMemberSize caps a single extracted member; WhatsApp media never
// gets anywhere near this.
const maxMemberSize = 100 << 20 // 100 MiB

// Extractor unpacks WhatsApp export archives into per-run scratch
// directories, keeping only members the pipeline can process.
type Extractor struct {
	log *slog.Logger
}

func NewExtractor(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{log: log}
}

// ExtractZip unpacks zipPath under scratchDir and returns descriptors
// for the retained members plus a cleanup that removes the scratch
// directory. Cleanup is safe to call even when an error is returned.
// Directories, hidden files, unsupported extensions and empty members
// are dropped silently; a member that escapes the scratch directory
// aborts the whole extraction.
func (e *Extractor) ExtractZip(ctx context.Context, zipPath, scratchDir string) ([]entity.FileDescriptor, func(), error) {
	runDir := filepath.Join(scratchDir, "run-"+uuid.New().String())
	cleanup := func() {
		if err := os.RemoveAll(runDir); err != nil {
			e.log.Warn("archive.cleanup_failed", "dir", runDir, "error", err)
		}
	}

	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, cleanup, common.WrapError(err, "create scratch dir")
	}

	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, cleanup, common.NewAppError("ARCHIVE_ERROR", "open archive", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	var descriptors []entity.FileDescriptor
	skipped := 0
	for _, member := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, cleanup, err
		}
		if !retain(member) {
			skipped++
			continue
		}

		desc, err := e.extractMember(member, runDir)
		if err != nil {
			return nil, cleanup, err
		}
		descriptors = append(descriptors, desc)
	}

	e.log.Info("archive.extracted",
		"archive", filepath.Base(zipPath),
		"retained", len(descriptors),
		"skipped", skipped,
	)
	return descriptors, cleanup, nil
}

func (e *Extractor) extractMember(member *zip.File, runDir string) (entity.FileDescriptor, error) {
	base := filepath.Base(member.Name)
	destPath := filepath.Join(runDir, base)

	// Path traversal guard. filepath.Base strips directories already,
	// but a crafted name can still sneak separators past it on some
	// platforms.
	rel, err := filepath.Rel(runDir, destPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return entity.FileDescriptor{}, common.NewAppError("ARCHIVE_ERROR",
			fmt.Sprintf("archive member escapes extraction dir: %s", member.Name), common.ErrInvalidInput)
	}

	src, err := member.Open()
	if err != nil {
		return entity.FileDescriptor{}, common.WrapError(err, "open member "+base)
	}
	defer func() {
		_ = src.Close()
	}()

	dst, err := os.Create(destPath)
	if err != nil {
		return entity.FileDescriptor{}, common.WrapError(err, "create "+base)
	}

	written, err := io.Copy(dst, io.LimitReader(src, maxMemberSize+1))
	closeErr := dst.Close()
	if err != nil {
		return entity.FileDescriptor{}, common.WrapError(err, "extract "+base)
	}
	if closeErr != nil {
		return entity.FileDescriptor{}, common.WrapError(closeErr, "extract "+base)
	}
	if written > maxMemberSize {
		return entity.FileDescriptor{}, common.NewAppError("ARCHIVE_ERROR",
			fmt.Sprintf("archive member too large: %s", base), common.ErrInvalidInput)
	}

	mtime := member.Modified
	if !mtime.IsZero() {
		_ = os.Chtimes(destPath, mtime, mtime)
	}

	return entity.FileDescriptor{
		OriginalName:  base,
		ExtractedPath: destPath,
		SizeBytes:     written,
		ModifiedTime:  mtime,
	}, nil
}

// retain decides whether an archive member is worth extracting.
func retain(member *zip.File) bool {
	if member.FileInfo().IsDir() {
		return false
	}
	base := filepath.Base(member.Name)
	if base == "" || strings.HasPrefix(base, ".") || strings.HasPrefix(base, "__MACOSX") {
		return false
	}
	if member.UncompressedSize64 == 0 {
		return false
	}
	ext := constants.NormalizeExt(filepath.Ext(base))
	_, ok := constants.AllowedExtensions[ext]
	return ok
}
