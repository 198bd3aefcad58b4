package model

import (
	"time"
)

// Worker 是 workers 表的 GORM 模型。
// 人员既可以作为司机，也可以作为乘客；本引擎不负责删除人员，
// 只会通过 Blocked 做软封禁（封禁逻辑在外围系统）。
type Worker struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"size:64;not null"`
	Phone     string    `gorm:"size:32"`
	Email     string    `gorm:"size:128"`
	Blocked   bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Vehicle 是 vehicles 表的 GORM 模型。
// 每辆车属于唯一一个 Worker；被历史 Ride 引用过的车不允许物理删除，
// 只打 Deleted 标记（所有列表查询都要排除 Deleted 的行）。
type Vehicle struct {
	ID                 string    `gorm:"primaryKey;size:36"`
	OwnerID            string    `gorm:"index;size:36;not null"`
	Owner              Worker    `gorm:"foreignKey:OwnerID"`
	PlateNumber        string    `gorm:"size:32"`
	Seats              int       `gorm:"not null;default:4"`
	OdometerStart      int64     `gorm:"not null;default:0"`
	OdometerEnd        int64     `gorm:"not null;default:0"`
	ReimbursementCents int64     `gorm:"not null;default:0"` // 单位：分/公里
	Deleted            bool      `gorm:"not null;default:false;index"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

// DayPlan 表示一个活动日的排班：当天所有 Job 的集合。
// 删除 DayPlan 时级联删除其下所有 Job（进而级联 Ride）。
type DayPlan struct {
	ID        string    `gorm:"primaryKey;size:36"`
	EventName string    `gorm:"size:128"`
	Date      time.Time `gorm:"index;not null"`
	Jobs      []Job     `gorm:"foreignKey:PlanID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Job 是某个活动日内的一个工作单元，挂接若干人员和若干 Ride。
type Job struct {
	ID        string     `gorm:"primaryKey;size:36"`
	PlanID    string     `gorm:"index;size:36;not null"`
	Title     string     `gorm:"size:128;not null"`
	Location  string     `gorm:"size:255"`
	StartsAt  *time.Time
	EndsAt    *time.Time
	Workers   []Worker  `gorm:"many2many:job_workers"`
	Rides     []Ride    `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Ride 表示为某个 Job 服务的一次行车：一名司机、一辆车、若干乘客。
// 核心不变量：同一个 DayPlan 之下，任何 Worker 最多出现在一个 Ride 里
// （无论司机还是乘客）。该不变量由 ride 包的冲突级联在事务内维护。
type Ride struct {
	ID          string    `gorm:"primaryKey;size:36"`
	JobID       string    `gorm:"index;size:36;not null"`
	DriverID    string    `gorm:"index;size:36;not null"`
	Driver      Worker    `gorm:"foreignKey:DriverID"`
	VehicleID   string    `gorm:"index;size:36;not null"`
	Vehicle     Vehicle   `gorm:"foreignKey:VehicleID"`
	Description string    `gorm:"size:255"`
	Passengers  []Worker  `gorm:"many2many:ride_passengers;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// All 返回所有需要 AutoMigrate 的模型（顺序满足外键依赖）。
func All() []any {
	return []any{
		&Worker{},
		&Vehicle{},
		&DayPlan{},
		&Job{},
		&Ride{},
	}
}

// PassengerIDs 返回乘客 ID 列表（与加载顺序一致，语义上是集合）。
func (r *Ride) PassengerIDs() []string {
	if len(r.Passengers) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Passengers))
	for _, p := range r.Passengers {
		out = append(out, p.ID)
	}
	return out
}
