package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/printworks/jobtrack/internal/middleware"
	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/internal/service"
	"github.com/printworks/jobtrack/pkg/response"
)

type AssignmentHandler struct {
	service   *service.AssignmentService
	validator *validator.Validate
}

func NewAssignmentHandler(svc *service.AssignmentService, v *validator.Validate) *AssignmentHandler {
	return &AssignmentHandler{
		service:   svc,
		validator: v,
	}
}

// Assign handles POST /api/jobs/:jobId/assign
// @Summary      Assign job to worker
// @Description  Give an unassigned job to a worker in its current department
// @Tags         Assignment
// @Accept       json
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Param        request body model.AssignRequest true "Assignment"
// @Success      200 {object} model.JobView
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId}/assign [post]
func (h *AssignmentHandler) Assign(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.AssignRequest
	if ok, err := bindAndValidate(c, h.validator, &req); !ok {
		return err
	}

	job, err := h.service.Assign(c.UserContext(), middleware.GetActor(c), jobID, &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, job)
}

// Reassign handles POST /api/jobs/:jobId/reassign
// @Summary      Reassign job
// @Description  Replace the current worker; exactly one assignee remains
// @Tags         Assignment
// @Accept       json
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Param        request body model.ReassignRequest true "Reassignment"
// @Success      200 {object} model.JobView
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId}/reassign [post]
func (h *AssignmentHandler) Reassign(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.ReassignRequest
	if ok, err := bindAndValidate(c, h.validator, &req); !ok {
		return err
	}

	job, err := h.service.Reassign(c.UserContext(), middleware.GetActor(c), jobID, &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, job)
}

// Review handles POST /api/jobs/:jobId/review
// @Summary      HOD review decision
// @Description  Approve (cascade to the next department) or reject (back to the same worker)
// @Tags         Assignment
// @Accept       json
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Param        request body model.ReviewRequest true "Decision"
// @Success      200 {object} model.JobView
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId}/review [post]
func (h *AssignmentHandler) Review(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.ReviewRequest
	if ok, err := bindAndValidate(c, h.validator, &req); !ok {
		return err
	}

	job, err := h.service.ReviewDecision(c.UserContext(), middleware.GetActor(c), jobID, &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, job)
}

// Bulk handles POST /api/jobs/bulk
// @Summary      Bulk lifecycle action
// @Description  Apply one action to many jobs; each id succeeds or fails on its own
// @Tags         Assignment
// @Accept       json
// @Produce      json
// @Param        request body model.BulkActionRequest true "Bulk action"
// @Success      200 {object} model.BulkActionResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/bulk [post]
func (h *AssignmentHandler) Bulk(c *fiber.Ctx) error {
	var req model.BulkActionRequest
	if ok, err := bindAndValidate(c, h.validator, &req); !ok {
		return err
	}

	result, err := h.service.BulkAction(c.UserContext(), middleware.GetActor(c), &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}
