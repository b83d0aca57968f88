package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chronoverse/chronoverse-api/internal/poem"
	"github.com/chronoverse/chronoverse-api/pkg/api"
)

type TonesHandler struct{}

func NewTonesHandler() *TonesHandler {
	return &TonesHandler{}
}

// List handles GET /api/v1/tones.
func (h *TonesHandler) List(c *gin.Context) {
	tones := make([]api.ToneInfo, 0, len(api.Tones))
	for _, tone := range api.Tones {
		tones = append(tones, api.ToneInfo{Tone: tone, Style: poem.StyleFor(tone)})
	}
	c.JSON(http.StatusOK, gin.H{"tones": tones})
}
