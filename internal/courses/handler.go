package courses

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NgouanKoffi/fullmargin-sub007/pkg/response"
)

// Handler serves the read-only course catalog endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a courses handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /courses.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	list, err := h.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Internal(c, "failed to list courses")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /courses/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	course, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == pgx.ErrNoRows {
			response.NotFound(c, "course not found")
			return
		}
		response.Internal(c, "failed to load course")
		return
	}
	if course.DeletedAt != nil || !course.IsActive {
		response.NotFound(c, "course not found")
		return
	}
	response.OK(c, course)
}
