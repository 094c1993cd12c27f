package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Repository 封装所有对账本的 SQL 操作
type Repository struct {
	db  *DB
	now func() time.Time
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// RecordInstall 追加一条安装记录
func (r *Repository) RecordInstall(ctx context.Context, e Entry) error {
	if e.Package == "" {
		return fmt.Errorf("install record without package name")
	}

	files := e.Files
	if files == nil {
		files = []string{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("failed to marshal files: %w", err)
	}

	rec := InstallRecord{
		ID:          uuid.NewString(),
		Package:     e.Package,
		Version:     e.Version,
		Signature:   e.Signature,
		Target:      e.Target,
		Root:        e.Root,
		Source:      e.Source,
		Files:       datatypes.JSON(filesJSON),
		InstalledAt: r.now().UTC(),
	}

	if err := r.db.GetConn().WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record install: %w", err)
	}
	return nil
}

// History 按时间倒序返回安装记录
// pkg 为空时返回所有包；limit <= 0 表示不限制
func (r *Repository) History(ctx context.Context, pkg string, limit int) ([]InstallRecord, error) {
	var records []InstallRecord
	query := r.db.GetConn().WithContext(ctx).Order("installed_at DESC")
	if pkg != "" {
		query = query.Where("package = ?", pkg)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FileList 解出记录里的文件列表
func (rec *InstallRecord) FileList() ([]string, error) {
	var files []string
	if len(rec.Files) == 0 {
		return files, nil
	}
	if err := json.Unmarshal(rec.Files, &files); err != nil {
		return nil, err
	}
	return files, nil
}
