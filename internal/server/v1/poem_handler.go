package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chronoverse/chronoverse-api/internal/poem"
	"github.com/chronoverse/chronoverse-api/internal/server/middleware"
	"github.com/chronoverse/chronoverse-api/internal/server/validator"
	"github.com/chronoverse/chronoverse-api/internal/store"
	"github.com/chronoverse/chronoverse-api/pkg/api"
)

type PoemHandler struct {
	service     *poem.Service
	usage       store.UsageRepository
	validator   *validator.Validator
	freeMinutes int
	logger      *zap.Logger
}

func NewPoemHandler(service *poem.Service, usage store.UsageRepository, v *validator.Validator,
	freeMinutes int, logger *zap.Logger) *PoemHandler {
	return &PoemHandler{
		service:     service,
		usage:       usage,
		validator:   v,
		freeMinutes: freeMinutes,
		logger:      logger,
	}
}

// Generate handles POST /api/v1/poem.
func (h *PoemHandler) Generate(c *gin.Context) {
	var req api.PoemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// returns RFC compliant error
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}
	req.ApplyDefaults()

	ctx := c.Request.Context()
	userID := middleware.UserID(ctx)

	// Free-tier metering applies only to identified users; anonymous
	// traffic is held back by the per-IP limits instead.
	minuteBucket := time.Now().UTC().Format("2006-01-02T15:04")
	if userID != "" && h.freeMinutes > 0 {
		used, err := h.usage.MonthlyMinutes(ctx, userID, minuteBucket[:7])
		if err != nil {
			_ = c.Error(api.InternalError("Failed to check usage quota", err))
			return
		}
		if used >= h.freeMinutes {
			problem := api.QuotaExceededError(used, h.freeMinutes)
			_ = c.Error(problem)
			return
		}
	}

	resp, err := h.service.Generate(ctx, req, userID)
	if err != nil {
		_ = c.Error(api.BadRequestError(err.Error()))
		return
	}

	// A delivered poem consumes the user's current minute, cached or not.
	if userID != "" && h.freeMinutes > 0 {
		if err := h.usage.RecordMinute(ctx, userID, minuteBucket); err != nil {
			h.logger.Warn("failed to record usage minute",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, resp)
}
