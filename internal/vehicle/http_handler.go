package vehicle

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/crewdrive/crewdrive/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Handler 车辆 HTTP 入口。
type Handler struct {
	repo *Repo
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{repo: NewRepo(db)}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/vehicles", h.createVehicle)
	rg.GET("/vehicles", h.listVehicles)
	rg.GET("/vehicles/:id", h.getVehicle)
	rg.PATCH("/vehicles/:id/odometer", h.updateOdometer)
	rg.DELETE("/vehicles/:id", h.deleteVehicle)
}

type createVehicleRequest struct {
	OwnerID            string `json:"owner_id"`
	PlateNumber        string `json:"plate_number"`
	Seats              int    `json:"seats"`
	ReimbursementCents int64  `json:"reimbursement_cents"`
}

type updateOdometerRequest struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type vehicleResponse struct {
	ID                 string    `json:"id"`
	OwnerID            string    `json:"owner_id"`
	PlateNumber        string    `json:"plate_number"`
	Seats              int       `json:"seats"`
	OdometerStart      int64     `json:"odometer_start"`
	OdometerEnd        int64     `json:"odometer_end"`
	ReimbursementCents int64     `json:"reimbursement_cents"`
	Deleted            bool      `json:"deleted"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toResponse(v *model.Vehicle) vehicleResponse {
	return vehicleResponse{
		ID:                 v.ID,
		OwnerID:            v.OwnerID,
		PlateNumber:        v.PlateNumber,
		Seats:              v.Seats,
		OdometerStart:      v.OdometerStart,
		OdometerEnd:        v.OdometerEnd,
		ReimbursementCents: v.ReimbursementCents,
		Deleted:            v.Deleted,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
	}
}

func (h *Handler) createVehicle(c *gin.Context) {
	var req createVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if req.OwnerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id required"})
		return
	}
	if req.Seats <= 0 {
		req.Seats = 4
	}
	v := &model.Vehicle{
		ID:                 uuid.NewString(),
		OwnerID:            req.OwnerID,
		PlateNumber:        strings.TrimSpace(req.PlateNumber),
		Seats:              req.Seats,
		ReimbursementCents: req.ReimbursementCents,
	}
	if err := h.repo.Create(c.Request.Context(), v); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(v))
}

func (h *Handler) listVehicles(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	items, total, err := h.repo.List(c.Request.Context(), c.Query("owner_id"), (page-1)*size, size)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]vehicleResponse, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "items": out})
}

func (h *Handler) getVehicle(c *gin.Context) {
	v, err := h.repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(v))
}

func (h *Handler) updateOdometer(c *gin.Context) {
	var req updateOdometerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if req.Start < 0 || req.End < req.Start {
		c.JSON(http.StatusBadRequest, gin.H{"error": "odometer range invalid"})
		return
	}
	if err := h.repo.UpdateOdometer(c.Request.Context(), c.Param("id"), req.Start, req.End); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteVehicle 删除语义见 Repo.Delete：不存在时同样返回 204。
func (h *Handler) deleteVehicle(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
