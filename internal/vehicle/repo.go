package vehicle

import (
	"context"
	"fmt"

	"github.com/crewdrive/crewdrive/internal/model"
	"gorm.io/gorm"
)

// Repo 负责车辆的生命周期。删除是两条路：没被任何 Ride 引用过的车
// 物理删除；有行车历史的车只打 deleted 标记保留行，历史 Ride 的引用
// 保持有效。deleted 的车从所有列表查询中排除，且永不复活。
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) Create(ctx context.Context, v *model.Vehicle) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Omit("Owner").Create(v).Error
}

// FindByID 按 ID 查车，包括已软删的行——历史 Ride 需要还能解析到它。
func (r *Repo) FindByID(ctx context.Context, id string) (*model.Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v model.Vehicle
	if err := db.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// List 支持按 owner_id 过滤 + 分页；软删的车一律不出现在列表里。
func (r *Repo) List(ctx context.Context, ownerID string, offset, limit int) ([]model.Vehicle, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := db.Model(&model.Vehicle{}).Where("deleted = ?", false)
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var vehicles []model.Vehicle
	if err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&vehicles).Error; err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

// UpdateOdometer 更新里程表读数（报销结算用）。
func (r *Repo) UpdateOdometer(ctx context.Context, id string, start, end int64) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	res := db.Model(&model.Vehicle{}).Where("id = ?", id).
		Updates(map[string]interface{}{"odometer_start": start, "odometer_end": end})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete 删除车辆，单事务：
//  1. 车不存在 -> 幂等 no-op；
//  2. 没有任何 Ride 引用 -> 物理删除；
//  3. 有行车历史 -> deleted = true 保留（终态）。
//
// 走哪条分支只取决于调用时刻有没有行车历史，调用方不可配置。
func (r *Repo) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v model.Vehicle
		if err := tx.Where("id = ?", id).First(&v).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}

		var rideCount int64
		if err := tx.Model(&model.Ride{}).Where("vehicle_id = ?", v.ID).Count(&rideCount).Error; err != nil {
			return err
		}

		if rideCount == 0 {
			return tx.Delete(&v).Error
		}
		return tx.Model(&v).Update("deleted", true).Error
	})
}
