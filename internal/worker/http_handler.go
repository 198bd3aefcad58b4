package worker

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

// Handler 人员目录 HTTP 入口。
type Handler struct {
	repo *Repo
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{repo: NewRepo(db)}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/workers", h.createWorker)
	rg.GET("/workers", h.listWorkers)
	rg.GET("/workers/:id", h.getWorker)
	rg.POST("/workers/:id/block", h.blockWorker)
}

type createWorkerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type blockWorkerRequest struct {
	Blocked bool `json:"blocked"`
}

type workerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(w *model.Worker) workerResponse {
	return workerResponse{
		ID:        w.ID,
		Name:      w.Name,
		Phone:     w.Phone,
		Email:     w.Email,
		Blocked:   w.Blocked,
		CreatedAt: w.CreatedAt,
	}
}

func (h *Handler) createWorker(c *gin.Context) {
	var req createWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	w := &model.Worker{
		ID:    uuid.NewString(),
		Name:  req.Name,
		Phone: strings.TrimSpace(req.Phone),
		Email: strings.TrimSpace(req.Email),
	}
	if err := h.repo.Create(c.Request.Context(), w); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(w))
}

func (h *Handler) listWorkers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	items, total, err := h.repo.List(c.Request.Context(), (page-1)*size, size)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]workerResponse, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "items": out})
}

func (h *Handler) getWorker(c *gin.Context) {
	w, err := h.repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(w))
}

func (h *Handler) blockWorker(c *gin.Context) {
	var req blockWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if err := h.repo.SetBlocked(c.Request.Context(), c.Param("id"), req.Blocked); err != nil {
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
