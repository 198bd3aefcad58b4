package ride

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crewdrive/crewdrive/internal/common/logger"
	"github.com/crewdrive/crewdrive/internal/model"
	"github.com/crewdrive/crewdrive/internal/plan"
	"github.com/crewdrive/crewdrive/internal/planner"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newRideID() string { return uuid.NewString() }

// ErrInvalidCommand 命令字段校验失败（HTTP 层映射为 400）。
var ErrInvalidCommand = errors.New("invalid command")

// Service 封装 Ride 领域的核心用例（不依赖 HTTP），便于复用和测试。
// 变更成功提交后向外部调度器发 fire-and-forget 通知；通知失败只记日志。
type Service struct {
	repo     *Repo
	plans    *plan.Repo
	notifier planner.Notifier
	log      logger.Logger
}

func NewService(repo *Repo, plans *plan.Repo, notifier planner.Notifier, log logger.Logger) *Service {
	if notifier == nil {
		notifier = planner.Nop{}
	}
	return &Service{repo: repo, plans: plans, notifier: notifier, log: log}
}

// CreateRideCommand 创建 Ride 的入参。
type CreateRideCommand struct {
	JobID        string
	DriverID     string
	VehicleID    string
	Description  string
	PassengerIDs []string
}

// Validate 做字段级校验并归一化（trim、乘客去重）。
// 入参形状问题在进入核心之前拦下，核心只面对良构命令。
func (c *CreateRideCommand) Validate() error {
	c.JobID = strings.TrimSpace(c.JobID)
	c.DriverID = strings.TrimSpace(c.DriverID)
	c.VehicleID = strings.TrimSpace(c.VehicleID)
	c.Description = strings.TrimSpace(c.Description)

	if c.JobID == "" {
		return fmt.Errorf("%w: job_id required", ErrInvalidCommand)
	}
	if c.DriverID == "" {
		return fmt.Errorf("%w: driver_id required", ErrInvalidCommand)
	}
	if c.VehicleID == "" {
		return fmt.Errorf("%w: vehicle_id required", ErrInvalidCommand)
	}

	ids, err := normalizePassengers(c.PassengerIDs, c.DriverID)
	if err != nil {
		return err
	}
	c.PassengerIDs = ids
	return nil
}

// UpdateRideCommand 更新 Ride 的入参。司机与车辆创建后不可变；
// PassengerIDs 为 nil 表示不改乘客，非 nil 表示整体替换。
type UpdateRideCommand struct {
	Description  *string
	PassengerIDs []string
}

func (c *UpdateRideCommand) Validate() error {
	if c.Description == nil && c.PassengerIDs == nil {
		return fmt.Errorf("%w: nothing to update", ErrInvalidCommand)
	}
	if c.Description != nil {
		d := strings.TrimSpace(*c.Description)
		c.Description = &d
	}
	if c.PassengerIDs != nil {
		ids, err := normalizePassengers(c.PassengerIDs, "")
		if err != nil {
			return err
		}
		if ids == nil {
			ids = []string{} // 显式传空集合 = 清空乘客
		}
		c.PassengerIDs = ids
	}
	return nil
}

func normalizePassengers(ids []string, driverID string) ([]string, error) {
	if ids == nil {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: passenger_ids contains empty id", ErrInvalidCommand)
		}
		if driverID != "" && id == driverID {
			return nil, fmt.Errorf("%w: driver cannot be a passenger of the same ride", ErrInvalidCommand)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return []string{}, nil
	}
	return out, nil
}

func (s *Service) CreateRide(ctx context.Context, cmd CreateRideCommand) (*model.Ride, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	r, err := s.repo.Create(ctx, cmd.JobID, cmd.DriverID, cmd.VehicleID, cmd.Description, cmd.PassengerIDs)
	if err != nil {
		return nil, err
	}

	if s.log != nil {
		s.log.WithFields(map[string]interface{}{
			"ride_id":    r.ID,
			"job_id":     r.JobID,
			"driver_id":  r.DriverID,
			"passengers": len(r.Passengers),
		}).Info("ride created")
	}
	s.notifyRidesChanged(ctx, r.JobID, r.ID)
	return r, nil
}

func (s *Service) UpdateRide(ctx context.Context, id string, cmd UpdateRideCommand) (*model.Ride, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: id required", ErrInvalidCommand)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	r, err := s.repo.Update(ctx, id, cmd.Description, cmd.PassengerIDs)
	if err != nil {
		return nil, err
	}

	if s.log != nil {
		s.log.WithFields(map[string]interface{}{
			"ride_id":    r.ID,
			"passengers": len(r.Passengers),
		}).Info("ride updated")
	}
	s.notifyRidesChanged(ctx, r.JobID, r.ID)
	return r, nil
}

func (s *Service) DeleteRide(ctx context.Context, id string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id required", ErrInvalidCommand)
	}

	r, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.notifyRidesChanged(ctx, r.JobID, r.ID)
	return nil
}

func (s *Service) GetRide(ctx context.Context, id string) (*model.Ride, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: id required", ErrInvalidCommand)
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ListRides(ctx context.Context, jobID string) ([]model.Ride, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: job_id required", ErrInvalidCommand)
	}
	return s.repo.ListByJob(ctx, jobID)
}

// notifyRidesChanged 变更已提交后才调用；任何失败都不影响本次请求的结果。
func (s *Service) notifyRidesChanged(ctx context.Context, jobID, rideID string) {
	planID := ""
	if s.plans != nil {
		if j, err := s.plans.FindJob(ctx, jobID); err == nil {
			planID = j.PlanID
		} else if !isNotFound(err) && s.log != nil {
			s.log.Warnf("resolve plan for job %s: %v", jobID, err)
		}
	}
	s.notifier.RidesChanged(ctx, planID, rideID)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
