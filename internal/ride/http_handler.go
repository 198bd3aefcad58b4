package ride

import (
	"errors"
	"net/http"
	"time"

	"github.com/crewdrive/crewdrive/internal/common/logger"
	"github.com/crewdrive/crewdrive/internal/model"
	"github.com/crewdrive/crewdrive/internal/plan"
	"github.com/crewdrive/crewdrive/internal/planner"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler HTTP 入口：只做请求与命令之间的转换，业务全部在 Service。
type Handler struct {
	svc *Service
}

func NewHandler(db *gorm.DB, notifier planner.Notifier, log logger.Logger) *Handler {
	return &Handler{
		svc: NewService(NewRepo(db), plan.NewRepo(db), notifier, log),
	}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/rides", h.createRide)
	rg.GET("/rides/:id", h.getRide)
	rg.PATCH("/rides/:id", h.updateRide)
	rg.DELETE("/rides/:id", h.deleteRide)
	rg.GET("/jobs/:id/rides", h.listRides)
}

type createRideRequest struct {
	JobID        string   `json:"job_id"`
	DriverID     string   `json:"driver_id"`
	VehicleID    string   `json:"vehicle_id"`
	Description  string   `json:"description"`
	PassengerIDs []string `json:"passenger_ids"`
}

type updateRideRequest struct {
	Description  *string  `json:"description"`
	PassengerIDs []string `json:"passenger_ids"`
}

type rideResponse struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	DriverID     string    `json:"driver_id"`
	VehicleID    string    `json:"vehicle_id"`
	Description  string    `json:"description,omitempty"`
	PassengerIDs []string  `json:"passenger_ids"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toResponse(r *model.Ride) rideResponse {
	ids := r.PassengerIDs()
	if ids == nil {
		ids = []string{}
	}
	return rideResponse{
		ID:           r.ID,
		JobID:        r.JobID,
		DriverID:     r.DriverID,
		VehicleID:    r.VehicleID,
		Description:  r.Description,
		PassengerIDs: ids,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (h *Handler) createRide(c *gin.Context) {
	var req createRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	cmd := CreateRideCommand{
		JobID:        req.JobID,
		DriverID:     req.DriverID,
		VehicleID:    req.VehicleID,
		Description:  req.Description,
		PassengerIDs: req.PassengerIDs,
	}
	r, err := h.svc.CreateRide(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(r))
}

func (h *Handler) getRide(c *gin.Context) {
	r, err := h.svc.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(r))
}

func (h *Handler) updateRide(c *gin.Context) {
	var req updateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	cmd := UpdateRideCommand{
		Description:  req.Description,
		PassengerIDs: req.PassengerIDs,
	}
	r, err := h.svc.UpdateRide(c.Request.Context(), c.Param("id"), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(r))
}

func (h *Handler) listRides(c *gin.Context) {
	rides, err := h.svc.ListRides(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]rideResponse, 0, len(rides))
	for i := range rides {
		out = append(out, toResponse(&rides[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h *Handler) deleteRide(c *gin.Context) {
	if err := h.svc.DeleteRide(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError 把核心层错误翻译成 HTTP 状态码：
// not-found -> 404，命令校验错误 -> 400，其余（含存储层约束冲突）-> 500。
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ErrInvalidCommand):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
