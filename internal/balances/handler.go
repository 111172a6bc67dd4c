package balances

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/middleware"
	"github.com/NgouanKoffi/fullmargin-sub007/pkg/response"
)

// Handler serves seller balance endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a balances handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// GetMine handles GET /balance. Returns the caller's running balance.
func (h *Handler) GetMine(c *gin.Context) {
	idVal, _ := c.Get(middleware.ContextUserID)
	sellerID, ok := idVal.(uuid.UUID)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	b, err := h.repo.Get(c.Request.Context(), sellerID)
	if err != nil {
		response.Internal(c, "failed to load balance")
		return
	}
	response.OK(c, b)
}
