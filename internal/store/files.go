package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jhughescu/dev-cms/pkg/interfaces"
	"github.com/jhughescu/dev-cms/pkg/types"
)

// FileStore implements interfaces.FileStore over the shared Manager. The
// upload pipeline that creates most of these records lives outside the sync
// engine; the engine only resolves and populates references.
type FileStore struct {
	m *Manager
}

// NewFileStore returns the file store backed by m.
func NewFileStore(m *Manager) *FileStore {
	return &FileStore{m: m}
}

const fileColumns = `id, original_name, filename, mimetype, size, url, hash, uploaded_by, uploaded_at`

// CreateFile persists a file record.
func (f *FileStore) CreateFile(ctx context.Context, file *types.FileRecord) error {
	return f.m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO files (`+fileColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			file.ID,
			file.OriginalName,
			file.Filename,
			file.Mimetype,
			file.Size,
			nullable(file.URL),
			nullable(file.Hash),
			file.UploadedBy,
			file.UploadedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert file: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a file record by id.
func (f *FileStore) GetByID(ctx context.Context, id string) (*types.FileRecord, error) {
	row := f.m.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	return scanFile(row)
}

// GetByURL retrieves a file record by its public URL.
func (f *FileStore) GetByURL(ctx context.Context, url string) (*types.FileRecord, error) {
	row := f.m.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE url = ?`, url)
	return scanFile(row)
}

// Populate resolves an ordered id list to full records, preserving input
// order and silently skipping ids that no longer resolve. A stale reference
// must not block a fan-out.
func (f *FileStore) Populate(ctx context.Context, ids []string) ([]*types.FileRecord, error) {
	records := make([]*types.FileRecord, 0, len(ids))
	for _, id := range ids {
		record, err := f.GetByID(ctx, id)
		if err != nil {
			if err == interfaces.ErrFileNotFound {
				continue
			}
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func scanFile(row scanner) (*types.FileRecord, error) {
	var file types.FileRecord
	var url, hash sql.NullString

	err := row.Scan(
		&file.ID,
		&file.OriginalName,
		&file.Filename,
		&file.Mimetype,
		&file.Size,
		&url,
		&hash,
		&file.UploadedBy,
		&file.UploadedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}

	if url.Valid {
		file.URL = url.String
	}
	if hash.Valid {
		file.Hash = hash.String
	}
	return &file, nil
}
