package plan

import (
	"context"
	"fmt"

	"github.com/crewdrive/crewdrive/internal/model"
	"gorm.io/gorm"
)

// Repo 负责 DayPlan/Job 的读写，以及"同日兄弟 Ride"的范围查询。
// ride 包的冲突级联依赖 SiblingRides；事务内使用时用 NewRepo(tx) 绑定事务句柄。
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

func (r *Repo) CreatePlan(ctx context.Context, p *model.DayPlan) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(p).Error
}

// FindPlan 返回 DayPlan 及其按创建时间排序的 Job 列表。
func (r *Repo) FindPlan(ctx context.Context, id string) (*model.DayPlan, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var p model.DayPlan
	err := db.Preload("Jobs", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at asc")
	}).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePlan 删除 DayPlan，外键级联删除其下 Job（进而级联 Ride）。
func (r *Repo) DeletePlan(ctx context.Context, id string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	res := db.Delete(&model.DayPlan{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repo) AddJob(ctx context.Context, j *model.Job) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Omit("Workers", "Rides").Create(j).Error
}

func (r *Repo) FindJob(ctx context.Context, id string) (*model.Job, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var j model.Job
	if err := db.Where("id = ?", id).First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) ListJobs(ctx context.Context, planID string) ([]model.Job, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var jobs []model.Job
	err := db.Where("plan_id = ?", planID).Order("created_at asc").Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// AssignWorkers 以"整体替换"的语义更新 Job 的人员集合。
func (r *Repo) AssignWorkers(ctx context.Context, jobID string, workerIDs []string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	var j model.Job
	if err := db.Where("id = ?", jobID).First(&j).Error; err != nil {
		return err
	}
	var ws []model.Worker
	if len(workerIDs) > 0 {
		if err := db.Where("id IN ?", workerIDs).Find(&ws).Error; err != nil {
			return err
		}
		if len(ws) != len(workerIDs) {
			return fmt.Errorf("assign workers: %w", gorm.ErrRecordNotFound)
		}
	}
	return db.Model(&j).Association("Workers").Replace(ws)
}

// SiblingRides 返回与给定 Ride 同属一个 DayPlan 的所有其他 Ride
// （乘客已预加载），即冲突级联的扫描范围。
//
// 遍历路径：Ride -> Job -> DayPlan -> 全部 Job -> 全部 Ride。
// 给定的 Ride 不存在时必须响亮失败（gorm.ErrRecordNotFound）——
// 调用方在同一事务里要么刚创建它、要么已确认它存在，查不到说明调用方有逻辑错误。
func (r *Repo) SiblingRides(ctx context.Context, rideID string) ([]model.Ride, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}

	var ref model.Ride
	if err := db.Where("id = ?", rideID).First(&ref).Error; err != nil {
		return nil, fmt.Errorf("sibling lookup for ride %s: %w", rideID, err)
	}

	var job model.Job
	if err := db.Where("id = ?", ref.JobID).First(&job).Error; err != nil {
		return nil, fmt.Errorf("sibling lookup for ride %s: %w", rideID, err)
	}

	var jobIDs []string
	if err := db.Model(&model.Job{}).Where("plan_id = ?", job.PlanID).Pluck("id", &jobIDs).Error; err != nil {
		return nil, err
	}
	if len(jobIDs) == 0 {
		return nil, nil
	}

	var rides []model.Ride
	err := db.Preload("Passengers").
		Where("job_id IN ? AND id <> ?", jobIDs, rideID).
		Find(&rides).Error
	if err != nil {
		return nil, err
	}
	return rides, nil
}
