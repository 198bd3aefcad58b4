package plan

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/crewdrive/crewdrive/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Handler 排班 HTTP 入口：DayPlan 与 Job 两类资源。
type Handler struct {
	repo *Repo
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{repo: NewRepo(db)}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/plans", h.createPlan)
	rg.GET("/plans/:id", h.getPlan)
	rg.DELETE("/plans/:id", h.deletePlan)
	rg.POST("/plans/:id/jobs", h.addJob)
	rg.GET("/plans/:id/jobs", h.listJobs)
	rg.POST("/jobs/:id/workers", h.assignWorkers)
}

type createPlanRequest struct {
	EventName string    `json:"event_name"`
	Date      time.Time `json:"date"`
}

type addJobRequest struct {
	Title    string     `json:"title"`
	Location string     `json:"location"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

type assignWorkersRequest struct {
	WorkerIDs []string `json:"worker_ids"`
}

type jobResponse struct {
	ID       string     `json:"id"`
	PlanID   string     `json:"plan_id"`
	Title    string     `json:"title"`
	Location string     `json:"location,omitempty"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

type planResponse struct {
	ID        string        `json:"id"`
	EventName string        `json:"event_name"`
	Date      time.Time     `json:"date"`
	Jobs      []jobResponse `json:"jobs"`
	CreatedAt time.Time     `json:"created_at"`
}

func toJobResponse(j *model.Job) jobResponse {
	return jobResponse{
		ID:       j.ID,
		PlanID:   j.PlanID,
		Title:    j.Title,
		Location: j.Location,
		StartsAt: j.StartsAt,
		EndsAt:   j.EndsAt,
	}
}

func toPlanResponse(p *model.DayPlan) planResponse {
	jobs := make([]jobResponse, 0, len(p.Jobs))
	for i := range p.Jobs {
		jobs = append(jobs, toJobResponse(&p.Jobs[i]))
	}
	return planResponse{
		ID:        p.ID,
		EventName: p.EventName,
		Date:      p.Date,
		Jobs:      jobs,
		CreatedAt: p.CreatedAt,
	}
}

func (h *Handler) createPlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if req.Date.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date required"})
		return
	}
	p := &model.DayPlan{
		ID:        uuid.NewString(),
		EventName: strings.TrimSpace(req.EventName),
		Date:      req.Date,
	}
	if err := h.repo.CreatePlan(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPlanResponse(p))
}

func (h *Handler) getPlan(c *gin.Context) {
	p, err := h.repo.FindPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPlanResponse(p))
}

// deletePlan 连同其下所有 Job 和 Ride 一并删除。
func (h *Handler) deletePlan(c *gin.Context) {
	if err := h.repo.DeletePlan(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addJob(c *gin.Context) {
	var req addJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title required"})
		return
	}
	j := &model.Job{
		ID:       uuid.NewString(),
		PlanID:   c.Param("id"),
		Title:    req.Title,
		Location: strings.TrimSpace(req.Location),
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	}
	if err := h.repo.AddJob(c.Request.Context(), j); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toJobResponse(j))
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs, err := h.repo.ListJobs(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResponse(&jobs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h *Handler) assignWorkers(c *gin.Context) {
	var req assignWorkersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if err := h.repo.AssignWorkers(c.Request.Context(), c.Param("id"), req.WorkerIDs); err != nil {
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
