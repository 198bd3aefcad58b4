package worker

import (
	"context"
	"fmt"

	"github.com/crewdrive/crewdrive/internal/model"
	"gorm.io/gorm"
)

// Repo 人员目录。本引擎从不删除 Worker，封禁只是软标记。
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, w *model.Worker) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*model.Worker, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var w model.Worker
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repo) List(ctx context.Context, offset, limit int) ([]model.Worker, int64, error) {
	if r == nil || r.db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Worker{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var workers []model.Worker
	if err := r.db.WithContext(ctx).Order("created_at desc").Offset(offset).Limit(limit).Find(&workers).Error; err != nil {
		return nil, 0, err
	}
	return workers, total, nil
}

// SetBlocked 软封禁/解封。
func (r *Repo) SetBlocked(ctx context.Context, id string, blocked bool) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	res := r.db.WithContext(ctx).Model(&model.Worker{}).Where("id = ?", id).Update("blocked", blocked)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
