package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/printworks/jobtrack/internal/middleware"
	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/internal/service"
	"github.com/printworks/jobtrack/pkg/response"
)

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/jobs
// @Summary      Create job card
// @Description  Submit a new job card; it starts in CREATED awaiting Prepress assignment
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        request body model.CreateJobRequest true "Job card"
// @Success      201 {object} model.JobView
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs [post]
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if ok, err := bindAndValidate(c, h.validator, &req); !ok {
		return err
	}

	job, err := h.service.Create(c.UserContext(), middleware.GetActor(c), &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, job)
}

// List handles GET /api/jobs
// @Summary      List job cards
// @Description  List jobs, optionally filtered by status, priority, department, assignee, search text or urgency
// @Tags         Jobs
// @Produce      json
// @Param        status query string false "Backbone status"
// @Param        priority query string false "Priority"
// @Param        department query string false "Current department"
// @Param        assignee query string false "Assigned worker id"
// @Param        q query string false "Search display code, customer or product"
// @Param        urgent query bool false "Only urgent jobs"
// @Success      200 {object} model.JobListResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs [get]
func (h *JobHandler) List(c *fiber.Ctx) error {
	filter := model.JobFilter{
		Status:     model.Status(strings.ToUpper(c.Query("status"))),
		Priority:   model.Priority(strings.ToUpper(c.Query("priority"))),
		Department: model.Department(strings.ToUpper(c.Query("department"))),
		AssigneeID: c.Query("assignee"),
		Search:     c.Query("q", c.Query("search")),
	}

	details := map[string]string{}
	if filter.Status != "" && !filter.Status.Valid() {
		details["status"] = "unknown status"
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		details["priority"] = "unknown priority"
	}
	if filter.Department != "" && !filter.Department.Valid() {
		details["department"] = "unknown department"
	}
	if len(details) > 0 {
		return response.ValidationError(c, "Invalid filter", details)
	}

	result, err := h.service.List(c.UserContext(), filter, c.QueryBool("urgent"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}

// Get handles GET /api/jobs/:jobId
// @Summary      Get job card
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobView
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId} [get]
func (h *JobHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.Get(c.UserContext(), jobID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, job)
}

// History handles GET /api/jobs/:jobId/history
// @Summary      Job status history
// @Description  Append-only audit trail of every accepted transition
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.HistoryResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId}/history [get]
func (h *JobHandler) History(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.History(c.UserContext(), jobID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}

// Transition handles POST /api/jobs/:jobId/transitions
// @Summary      Apply lifecycle action
// @Description  Apply one action to a job; the version must match the last version read
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Param        request body model.TransitionRequest true "Transition request"
// @Success      200 {object} model.JobView
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId}/transitions [post]
func (h *JobHandler) Transition(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.TransitionRequest
	if ok, err := bindAndValidate(c, h.validator, &req); !ok {
		return err
	}

	job, err := h.service.Transition(c.UserContext(), middleware.GetActor(c), jobID, &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, job)
}
