package ride

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crewdrive/crewdrive/internal/model"
	"github.com/crewdrive/crewdrive/internal/plan"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	// 内存库只允许一个连接，避免每个连接各看一份空库
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedWorker(t *testing.T, db *gorm.DB, name string) *model.Worker {
	t.Helper()
	w := &model.Worker{ID: uuid.NewString(), Name: name}
	if err := db.Create(w).Error; err != nil {
		t.Fatalf("seed worker %s: %v", name, err)
	}
	return w
}

func seedVehicle(t *testing.T, db *gorm.DB, ownerID string) *model.Vehicle {
	t.Helper()
	v := &model.Vehicle{ID: uuid.NewString(), OwnerID: ownerID, Seats: 4}
	if err := db.Omit("Owner").Create(v).Error; err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return v
}

func seedPlan(t *testing.T, db *gorm.DB) *model.DayPlan {
	t.Helper()
	p := &model.DayPlan{ID: uuid.NewString(), EventName: "summer-fest", Date: time.Now()}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return p
}

func seedJob(t *testing.T, db *gorm.DB, planID, title string) *model.Job {
	t.Helper()
	j := &model.Job{ID: uuid.NewString(), PlanID: planID, Title: title}
	if err := db.Omit("Workers", "Rides").Create(j).Error; err != nil {
		t.Fatalf("seed job %s: %v", title, err)
	}
	return j
}

func passengerSet(t *testing.T, db *gorm.DB, rideID string) map[string]bool {
	t.Helper()
	var ride model.Ride
	if err := db.Preload("Passengers").Where("id = ?", rideID).First(&ride).Error; err != nil {
		t.Fatalf("reload ride %s: %v", rideID, err)
	}
	out := make(map[string]bool, len(ride.Passengers))
	for _, p := range ride.Passengers {
		out[p.ID] = true
	}
	return out
}

// assertPlanConsistent 校验核心不变量：plan 下每个 Worker 最多出现在一个 Ride 里。
func assertPlanConsistent(t *testing.T, db *gorm.DB, planID string) {
	t.Helper()
	var jobIDs []string
	if err := db.Model(&model.Job{}).Where("plan_id = ?", planID).Pluck("id", &jobIDs).Error; err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	var rides []model.Ride
	if err := db.Preload("Passengers").Where("job_id IN ?", jobIDs).Find(&rides).Error; err != nil {
		t.Fatalf("list rides: %v", err)
	}
	seen := make(map[string]string)
	for _, r := range rides {
		ids := append([]string{r.DriverID}, r.PassengerIDs()...)
		for _, id := range ids {
			if prev, ok := seen[id]; ok && prev != r.ID {
				t.Fatalf("worker %s appears in both ride %s and ride %s", id, prev, r.ID)
			}
			seen[id] = r.ID
		}
	}
}

func TestCreateRideCascadesAcrossJobs(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRepo(db)

	w1 := seedWorker(t, db, "w1")
	w2 := seedWorker(t, db, "w2")
	w3 := seedWorker(t, db, "w3")
	w4 := seedWorker(t, db, "w4")
	v1 := seedVehicle(t, db, w1.ID)
	v2 := seedVehicle(t, db, w3.ID)
	v3 := seedVehicle(t, db, w3.ID)

	p := seedPlan(t, db)
	j1 := seedJob(t, db, p.ID, "gate")
	j2 := seedJob(t, db, p.ID, "stage")
	j3 := seedJob(t, db, p.ID, "kitchen")

	rideA, err := repo.Create(ctx, j1.ID, w1.ID, v1.ID, "", []string{w2.ID})
	if err != nil {
		t.Fatalf("create ride A: %v", err)
	}
	rideB, err := repo.Create(ctx, j2.ID, w3.ID, v2.ID, "", []string{w4.ID})
	if err != nil {
		t.Fatalf("create ride B: %v", err)
	}

	// C 带走了 B 的司机和 A 的乘客
	rideC, err := repo.Create(ctx, j3.ID, w3.ID, v3.ID, "", []string{w2.ID})
	if err != nil {
		t.Fatalf("create ride C: %v", err)
	}

	if _, err := repo.FindByID(ctx, rideB.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("ride B should be deleted, got err=%v", err)
	}
	if got := passengerSet(t, db, rideA.ID); len(got) != 0 {
		t.Fatalf("ride A passengers should be empty, got %v", got)
	}
	got := passengerSet(t, db, rideC.ID)
	if len(got) != 1 || !got[w2.ID] {
		t.Fatalf("ride C passengers should be [w2], got %v", got)
	}
	assertPlanConsistent(t, db, p.ID)
}

func TestUpdatePassengersWithoutConflict(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRepo(db)

	w1 := seedWorker(t, db, "w1")
	w2 := seedWorker(t, db, "w2")
	w3 := seedWorker(t, db, "w3")
	w4 := seedWorker(t, db, "w4")
	w5 := seedWorker(t, db, "w5")
	v1 := seedVehicle(t, db, w1.ID)
	v2 := seedVehicle(t, db, w3.ID)

	p := seedPlan(t, db)
	j1 := seedJob(t, db, p.ID, "gate")
	j2 := seedJob(t, db, p.ID, "stage")

	rideA, err := repo.Create(ctx, j1.ID, w1.ID, v1.ID, "", []string{w2.ID})
	if err != nil {
		t.Fatalf("create ride A: %v", err)
	}
	rideB, err := repo.Create(ctx, j2.ID, w3.ID, v2.ID, "", []string{w4.ID})
	if err != nil {
		t.Fatalf("create ride B: %v", err)
	}

	updated, err := repo.Update(ctx, rideA.ID, nil, []string{w2.ID, w5.ID})
	if err != nil {
		t.Fatalf("update ride A: %v", err)
	}
	got := passengerSet(t, db, updated.ID)
	if len(got) != 2 || !got[w2.ID] || !got[w5.ID] {
		t.Fatalf("ride A passengers should be [w2 w5], got %v", got)
	}

	// B 不受任何影响
	gotB := passengerSet(t, db, rideB.ID)
	if len(gotB) != 1 || !gotB[w4.ID] {
		t.Fatalf("ride B passengers should stay [w4], got %v", gotB)
	}
	assertPlanConsistent(t, db, p.ID)
}

func TestUpdateMissingRide(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRepo(db)

	w1 := seedWorker(t, db, "w1")
	w2 := seedWorker(t, db, "w2")
	v1 := seedVehicle(t, db, w1.ID)
	p := seedPlan(t, db)
	j1 := seedJob(t, db, p.ID, "gate")

	rideA, err := repo.Create(ctx, j1.ID, w1.ID, v1.ID, "", []string{w2.ID})
	if err != nil {
		t.Fatalf("create ride A: %v", err)
	}

	_, err = repo.Update(ctx, uuid.NewString(), nil, []string{w2.ID})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("update missing ride: want not-found, got %v", err)
	}

	// 失败的更新不能动到任何现存 Ride
	got := passengerSet(t, db, rideA.ID)
	if len(got) != 1 || !got[w2.ID] {
		t.Fatalf("ride A passengers should stay [w2], got %v", got)
	}
}

func TestCreateRideStealsIdleDriver(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRepo(db)

	w1 := seedWorker(t, db, "w1")
	w6 := seedWorker(t, db, "w6")
	v1 := seedVehicle(t, db, w1.ID)
	v2 := seedVehicle(t, db, w6.ID)
	p := seedPlan(t, db)
	j1 := seedJob(t, db, p.ID, "gate")
	j2 := seedJob(t, db, p.ID, "stage")

	rideD, err := repo.Create(ctx, j1.ID, w1.ID, v1.ID, "", nil)
	if err != nil {
		t.Fatalf("create ride D: %v", err)
	}

	// W1 被改派为 E 的乘客，D 整体删除
	rideE, err := repo.Create(ctx, j2.ID, w6.ID, v2.ID, "", []string{w1.ID})
	if err != nil {
		t.Fatalf("create ride E: %v", err)
	}

	if _, err := repo.FindByID(ctx, rideD.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("ride D should be deleted, got err=%v", err)
	}
	got := passengerSet(t, db, rideE.ID)
	if len(got) != 1 || !got[w1.ID] {
		t.Fatalf("ride E passengers should be [w1], got %v", got)
	}
	assertPlanConsistent(t, db, p.ID)
}

func TestUpdateSamePassengerSetIsIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRepo(db)

	w1 := seedWorker(t, db, "w1")
	w2 := seedWorker(t, db, "w2")
	w3 := seedWorker(t, db, "w3")
	v1 := seedVehicle(t, db, w1.ID)
	p := seedPlan(t, db)
	j1 := seedJob(t, db, p.ID, "gate")

	ride, err := repo.Create(ctx, j1.ID, w1.ID, v1.ID, "", []string{w2.ID, w3.ID})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := repo.Update(ctx, ride.ID, nil, []string{w2.ID, w3.ID}); err != nil {
			t.Fatalf("update #%d: %v", i+1, err)
		}
		got := passengerSet(t, db, ride.ID)
		if len(got) != 2 || !got[w2.ID] || !got[w3.ID] {
			t.Fatalf("update #%d: passengers should stay [w2 w3], got %v", i+1, got)
		}
	}
	assertPlanConsistent(t, db, p.ID)
}

func TestUpdateRollsBackCascadeOnFailure(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRepo(db)

	w1 := seedWorker(t, db, "w1")
	w2 := seedWorker(t, db, "w2")
	w3 := seedWorker(t, db, "w3")
	v1 := seedVehicle(t, db, w1.ID)
	v2 := seedVehicle(t, db, w3.ID)
	p := seedPlan(t, db)
	j1 := seedJob(t, db, p.ID, "gate")
	j2 := seedJob(t, db, p.ID, "stage")

	rideA, err := repo.Create(ctx, j1.ID, w1.ID, v1.ID, "", []string{w2.ID})
	if err != nil {
		t.Fatalf("create ride A: %v", err)
	}
	rideB, err := repo.Create(ctx, j2.ID, w3.ID, v2.ID, "", nil)
	if err != nil {
		t.Fatalf("create ride B: %v", err)
	}

	// 目标集合里混入一个不存在的乘客：级联本来会把 w2 从 A 摘除，
	// 但加载乘客失败导致整个事务回滚，A 必须保持原样。
	_, err = repo.Update(ctx, rideB.ID, nil, []string{w2.ID, uuid.NewString()})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("update with missing passenger: want not-found, got %v", err)
	}

	got := passengerSet(t, db, rideA.ID)
	if len(got) != 1 || !got[w2.ID] {
		t.Fatalf("ride A passengers should stay [w2] after rollback, got %v", got)
	}
	gotB := passengerSet(t, db, rideB.ID)
	if len(gotB) != 0 {
		t.Fatalf("ride B passengers should stay empty after rollback, got %v", gotB)
	}
}

func TestDeleteRide(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRepo(db)

	w1 := seedWorker(t, db, "w1")
	w2 := seedWorker(t, db, "w2")
	v1 := seedVehicle(t, db, w1.ID)
	p := seedPlan(t, db)
	j1 := seedJob(t, db, p.ID, "gate")

	ride, err := repo.Create(ctx, j1.ID, w1.ID, v1.ID, "", []string{w2.ID})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	if err := repo.Delete(ctx, ride.ID); err != nil {
		t.Fatalf("delete ride: %v", err)
	}
	if _, err := repo.FindByID(ctx, ride.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("deleted ride should be gone, got err=%v", err)
	}
	if err := repo.Delete(ctx, ride.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("delete missing ride: want not-found, got %v", err)
	}

	// 乘客本人不能被级联删掉
	var w model.Worker
	if err := db.Where("id = ?", w2.ID).First(&w).Error; err != nil {
		t.Fatalf("worker w2 should survive ride deletion: %v", err)
	}
}

func TestCreateRideMissingPassenger(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRepo(db)

	w1 := seedWorker(t, db, "w1")
	v1 := seedVehicle(t, db, w1.ID)
	p := seedPlan(t, db)
	j1 := seedJob(t, db, p.ID, "gate")

	_, err := repo.Create(ctx, j1.ID, w1.ID, v1.ID, "", []string{uuid.NewString()})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("create with missing passenger: want not-found, got %v", err)
	}

	var count int64
	if err := db.Model(&model.Ride{}).Count(&count).Error; err != nil {
		t.Fatalf("count rides: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed create must not leave a ride behind, got %d", count)
	}
}

func TestSiblingLookupUsedByCascade(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRepo(db)
	plans := plan.NewRepo(db)

	w1 := seedWorker(t, db, "w1")
	w2 := seedWorker(t, db, "w2")
	v1 := seedVehicle(t, db, w1.ID)
	v2 := seedVehicle(t, db, w2.ID)
	p := seedPlan(t, db)
	j1 := seedJob(t, db, p.ID, "gate")
	j2 := seedJob(t, db, p.ID, "stage")

	rideA, err := repo.Create(ctx, j1.ID, w1.ID, v1.ID, "", nil)
	if err != nil {
		t.Fatalf("create ride A: %v", err)
	}
	rideB, err := repo.Create(ctx, j2.ID, w2.ID, v2.ID, "", nil)
	if err != nil {
		t.Fatalf("create ride B: %v", err)
	}

	siblings, err := plans.SiblingRides(ctx, rideA.ID)
	if err != nil {
		t.Fatalf("sibling rides: %v", err)
	}
	if len(siblings) != 1 || siblings[0].ID != rideB.ID {
		t.Fatalf("siblings of A should be [B], got %d entries", len(siblings))
	}
}
