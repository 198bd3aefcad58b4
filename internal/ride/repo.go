package ride

import (
	"context"
	"fmt"

	"github.com/crewdrive/crewdrive/internal/model"
	"github.com/crewdrive/crewdrive/internal/plan"
	"gorm.io/gorm"
)

// Repo 承载 Ride 的创建/更新/删除，以及核心的冲突级联：
// 任何一次成功的变更之后，同一个 DayPlan 下每个 Worker 最多
// 出现在一个 Ride 里（司机或乘客）。每个方法都是一个完整事务，
// 失败时不留下任何半成品状态（包括级联副作用）。
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Create 创建 Ride，并在同一事务内对 {司机} ∪ {乘客} 执行冲突级联。
// 司机/车辆/乘客必须已存在；相应约束由数据库外键保证，这里只显式
// 校验乘客（给出明确的 not-found 而不是裸的约束错误）。
func (r *Repo) Create(ctx context.Context, jobID, driverID, vehicleID, description string, passengerIDs []string) (*model.Ride, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}

	var out model.Ride
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		passengers, err := loadWorkers(tx, passengerIDs)
		if err != nil {
			return err
		}

		ride := model.Ride{
			ID:          newRideID(),
			JobID:       jobID,
			DriverID:    driverID,
			VehicleID:   vehicleID,
			Description: description,
			Passengers:  passengers,
		}
		// Omit("Passengers.*")：只写 ride_passengers 关联行，不回写 workers。
		if err := tx.Omit("Passengers.*").Create(&ride).Error; err != nil {
			return err
		}

		targets := append([]string{driverID}, passengerIDs...)
		if err := resolveConflicts(ctx, tx, ride.ID, targets); err != nil {
			return err
		}

		return tx.Preload("Passengers").Where("id = ?", ride.ID).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Update 更新 Ride。司机与车辆在本操作中不可变；可变的只有描述和
// 乘客集合（整体替换语义）。提供了新乘客集合时，先对它执行冲突级联
// （司机不受影响，不参与），再落库。
func (r *Repo) Update(ctx context.Context, id string, description *string, passengerIDs []string) (*model.Ride, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}

	var out model.Ride
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ride model.Ride
		if err := tx.Where("id = ?", id).First(&ride).Error; err != nil {
			return err
		}

		if passengerIDs != nil {
			if err := resolveConflicts(ctx, tx, ride.ID, passengerIDs); err != nil {
				return err
			}
			passengers, err := loadWorkers(tx, passengerIDs)
			if err != nil {
				return err
			}
			if err := tx.Model(&ride).Association("Passengers").Replace(passengers); err != nil {
				return err
			}
		}

		if description != nil {
			if err := tx.Model(&ride).Update("description", *description).Error; err != nil {
				return err
			}
		}

		return tx.Preload("Passengers").Where("id = ?", id).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete 无条件删除 Ride 及其乘客关联。删除只会收缩冲突，不会制造冲突，
// 因此不需要级联。
func (r *Repo) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ride model.Ride
		if err := tx.Where("id = ?", id).First(&ride).Error; err != nil {
			return err
		}
		if err := tx.Model(&ride).Association("Passengers").Clear(); err != nil {
			return err
		}
		return tx.Delete(&ride).Error
	})
}

func (r *Repo) FindByID(ctx context.Context, id string) (*model.Ride, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var ride model.Ride
	err := r.db.WithContext(ctx).
		Preload("Driver").Preload("Vehicle").Preload("Passengers").
		Where("id = ?", id).First(&ride).Error
	if err != nil {
		return nil, err
	}
	return &ride, nil
}

func (r *Repo) ListByJob(ctx context.Context, jobID string) ([]model.Ride, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rides []model.Ride
	err := r.db.WithContext(ctx).
		Preload("Passengers").
		Where("job_id = ?", jobID).Order("created_at asc").
		Find(&rides).Error
	if err != nil {
		return nil, err
	}
	return rides, nil
}

// resolveConflicts 冲突级联。给定参照 Ride 和即将成为其司机/乘客的
// Worker 集合 targets，在参照 Ride 所属 DayPlan 的范围内：
//
//  1. 枚举所有兄弟 Ride（排除参照 Ride 本身）；
//  2. 对仍会存活的兄弟 Ride，把落在 targets 里的乘客摘除
//     （兄弟 Ride 本身保留，乘客清空也保留）；
//  3. 司机落在 targets 里的兄弟 Ride 整体删除——车不能没有司机，
//     而该司机当天已经另有安排。
//
// 语义是"最新一次指派获胜"：静默调和而不是拒绝请求，管理员改派
// 人员时不需要先到处手工解绑。必须在事务内调用。
func resolveConflicts(ctx context.Context, tx *gorm.DB, refRideID string, targets []string) error {
	if len(targets) == 0 {
		return nil
	}

	siblings, err := plan.NewRepo(tx).SiblingRides(ctx, refRideID)
	if err != nil {
		return err
	}

	target := make(map[string]struct{}, len(targets))
	for _, id := range targets {
		target[id] = struct{}{}
	}

	// 先做乘客摘除。司机冲突的兄弟 Ride 跳过：整车马上要删，
	// 没必要先逐个摘乘客。
	for i := range siblings {
		s := &siblings[i]
		if _, drives := target[s.DriverID]; drives {
			continue
		}
		var conflicting []model.Worker
		for _, p := range s.Passengers {
			if _, ok := target[p.ID]; ok {
				conflicting = append(conflicting, p)
			}
		}
		if len(conflicting) == 0 {
			continue
		}
		if err := tx.Model(s).Association("Passengers").Delete(conflicting); err != nil {
			return fmt.Errorf("disconnect passengers from ride %s: %w", s.ID, err)
		}
	}

	// 再删司机被改派的兄弟 Ride。
	for i := range siblings {
		s := &siblings[i]
		if _, drives := target[s.DriverID]; !drives {
			continue
		}
		if err := tx.Model(s).Association("Passengers").Clear(); err != nil {
			return fmt.Errorf("clear passengers of ride %s: %w", s.ID, err)
		}
		if err := tx.Delete(&model.Ride{}, "id = ?", s.ID).Error; err != nil {
			return fmt.Errorf("delete conflicting ride %s: %w", s.ID, err)
		}
	}

	return nil
}

// loadWorkers 按 ID 加载 Worker，缺一个就报 not-found。
func loadWorkers(tx *gorm.DB, ids []string) ([]model.Worker, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var ws []model.Worker
	if err := tx.Where("id IN ?", ids).Find(&ws).Error; err != nil {
		return nil, err
	}
	if len(ws) != len(ids) {
		return nil, fmt.Errorf("load passengers: %w", gorm.ErrRecordNotFound)
	}
	return ws, nil
}
