package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/printworks/jobtrack/internal/middleware"
	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/internal/workflow"
	"github.com/printworks/jobtrack/pkg/response"
)

type CapabilityHandler struct{}

func NewCapabilityHandler() *CapabilityHandler {
	return &CapabilityHandler{}
}

// List handles GET /api/capabilities
// @Summary      Role capabilities
// @Description  The actions each role may request, so clients offer only what the server accepts
// @Tags         Jobs
// @Produce      json
// @Success      200 {object} model.CapabilitiesResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/capabilities [get]
func (h *CapabilityHandler) List(c *fiber.Ctx) error {
	resp := model.CapabilitiesResponse{
		Self:  capabilityFor(middleware.GetActor(c).Role),
		Roles: make([]model.CapabilityResponse, 0, len(model.ValidRoles)),
	}
	for _, role := range model.ValidRoles {
		resp.Roles = append(resp.Roles, capabilityFor(role))
	}
	return response.OK(c, resp)
}

func capabilityFor(role model.Role) model.CapabilityResponse {
	return model.CapabilityResponse{
		Role:    role,
		Actions: workflow.ActionsFor(role),
		Create:  workflow.CanCreate(role),
	}
}
