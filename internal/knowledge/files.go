package knowledge

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/neo-2022/regart-memory/internal/vecstore"
)

// AddFileChunks splits nothing itself: callers pass pre-chunked text. Each
// chunk becomes one entry sharing a file id. Blank or oversized chunks are
// skipped (the add sentinel, applied per chunk). Returns the file id and
// the number of chunks stored.
func (s *Store) AddFileChunks(ctx context.Context, fileName string, chunks []string, meta EntryMeta) (string, int, error) {
	if fileName == "" {
		return "", 0, fmt.Errorf("%w: file name is required", ErrInvalidMetadata)
	}
	if err := meta.Validate(); err != nil {
		return "", 0, err
	}

	fileID := uuid.NewString()
	stored := 0
	for i, chunk := range chunks {
		text, ok := s.validateText(chunk, "file chunk")
		if !ok {
			continue
		}
		vec, err := s.encoder.Encode(ctx, text)
		if err != nil {
			return fileID, stored, fmt.Errorf("embedding chunk %d of %s: %w", i, fileName, err)
		}

		m := meta
		m.Status = StatusActive
		m.CreatedAt = s.now()
		m.FileName = fileName
		m.FileID = fileID
		m.Chunk = i + 1

		err = s.files.Upsert(ctx, []vecstore.Record{{
			ID:      uuid.NewString(),
			Vector:  vec,
			Payload: payloadFromMeta(text, m),
		}})
		if err != nil {
			return fileID, stored, fmt.Errorf("writing chunk %d of %s: %w", i, fileName, err)
		}
		stored++
	}

	s.appendAudit(ctx, AuditEvent{
		Type:      "file_added",
		Workspace: meta.Workspace,
		EntryID:   fileID,
		Details:   fmt.Sprintf("%s (%d chunks)", fileName, stored),
	})
	s.logger.Info("file stored", "file", fileName, "file_id", fileID, "chunks", stored)
	return fileID, stored, nil
}

// ListFiles aggregates the file collection by file name, active entries
// only, sorted by name.
func (s *Store) ListFiles(ctx context.Context, workspace string) ([]FileInfo, error) {
	filter := vecstore.Filter{keyStatus: string(StatusActive)}
	if workspace != "" {
		filter[keyWorkspace] = workspace
	}

	counts := make(map[string]int)
	cursor := ""
	for {
		recs, next, err := s.files.Scroll(ctx, filter, 200, cursor)
		if err != nil {
			return nil, fmt.Errorf("scanning files: %w", err)
		}
		for _, rec := range recs {
			name, _ := rec.Payload[keyFileName].(string)
			if name == "" {
				continue
			}
			counts[name]++
		}
		if next == "" {
			break
		}
		cursor = next
	}

	files := make([]FileInfo, 0, len(counts))
	for name, n := range counts {
		files = append(files, FileInfo{FileName: name, Chunks: n})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].FileName < files[j].FileName
	})
	return files, nil
}

// DeleteFileByName hard-deletes every chunk of a file, regardless of
// status, and returns how many were removed. Unknown names delete zero.
func (s *Store) DeleteFileByName(ctx context.Context, fileName string) (int64, error) {
	deleted, err := s.files.DeleteByFilter(ctx, vecstore.Filter{keyFileName: fileName})
	if err != nil {
		return 0, fmt.Errorf("deleting file %s: %w", fileName, err)
	}
	if deleted > 0 {
		s.appendAudit(ctx, AuditEvent{
			Type:    "file_deleted",
			Details: fmt.Sprintf("%s (%d chunks)", fileName, deleted),
		})
		s.logger.Info("file deleted", "file", fileName, "chunks", deleted)
	}
	return deleted, nil
}

// DeleteFileChunks hard-deletes every chunk sharing a file id. The id form
// is what AddFileChunks returned; unknown ids delete zero.
func (s *Store) DeleteFileChunks(ctx context.Context, fileID string) (int64, error) {
	if fileID == "" {
		return 0, fmt.Errorf("%w: file id is required", ErrInvalidMetadata)
	}
	deleted, err := s.files.DeleteByFilter(ctx, vecstore.Filter{keyFileID: fileID})
	if err != nil {
		return 0, fmt.Errorf("deleting file chunks %s: %w", fileID, err)
	}
	if deleted > 0 {
		s.appendAudit(ctx, AuditEvent{
			Type:    "file_deleted",
			EntryID: fileID,
			Details: fmt.Sprintf("%d chunks", deleted),
		})
		s.logger.Info("file chunks deleted", "file_id", fileID, "chunks", deleted)
	}
	return deleted, nil
}

// SoftDeleteFile marks every active chunk of a file deleted without
// touching the vectors. Returns the number of chunks transitioned.
func (s *Store) SoftDeleteFile(ctx context.Context, fileName string) (int, error) {
	return s.rewriteFileChunks(ctx, fileName, string(StatusActive), map[string]any{
		keyStatus: string(StatusDeleted),
	}, "file_soft_deleted")
}

// RestoreFile reverses a soft delete.
func (s *Store) RestoreFile(ctx context.Context, fileName string) (int, error) {
	return s.rewriteFileChunks(ctx, fileName, string(StatusDeleted), map[string]any{
		keyStatus: string(StatusActive),
	}, "file_restored")
}

// PinFile raises the priority tag of every active chunk so ranking favors
// the file. Embeddings are untouched.
func (s *Store) PinFile(ctx context.Context, fileName string) (int, error) {
	return s.rewriteFileChunks(ctx, fileName, string(StatusActive), map[string]any{
		keyPriority: "pinned",
	}, "file_pinned")
}

// MoveFile reassigns every chunk of a file to another workspace.
func (s *Store) MoveFile(ctx context.Context, fileName, workspace string) (int, error) {
	return s.rewriteFileChunks(ctx, fileName, "", map[string]any{
		keyWorkspace: workspace,
	}, "file_moved")
}

// RenameFile changes the stored file name on every chunk.
func (s *Store) RenameFile(ctx context.Context, fileName, newName string) (int, error) {
	if newName == "" {
		return 0, fmt.Errorf("%w: new file name is required", ErrInvalidMetadata)
	}
	return s.rewriteFileChunks(ctx, fileName, "", map[string]any{
		keyFileName: newName,
	}, "file_renamed")
}

// rewriteFileChunks applies a payload patch to every chunk of one file,
// optionally restricted to a status. Vectors are never re-embedded; these
// are metadata-only transitions.
func (s *Store) rewriteFileChunks(ctx context.Context, fileName, status string, patch map[string]any, auditType string) (int, error) {
	filter := vecstore.Filter{keyFileName: fileName}
	if status != "" {
		filter[keyStatus] = status
	}

	var updated int
	cursor := ""
	for {
		recs, next, err := s.files.Scroll(ctx, filter, 100, cursor)
		if err != nil {
			return updated, fmt.Errorf("scanning chunks of %s: %w", fileName, err)
		}
		for _, rec := range recs {
			if err := s.files.UpdatePayload(ctx, rec.ID, patch); err != nil {
				return updated, fmt.Errorf("updating chunk %s: %w", rec.ID, err)
			}
			updated++
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if updated > 0 {
		s.appendAudit(ctx, AuditEvent{
			Type:    auditType,
			Details: fmt.Sprintf("%s (%d chunks)", fileName, updated),
		})
		s.logger.Info("file chunks updated", "file", fileName, "op", auditType, "chunks", updated)
	}
	return updated, nil
}
