package obs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Probe checks one dependency. Name appears in the readiness report.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandlers exposes endpoints for liveness and readiness checks.
type HealthHandlers struct {
	Probes  []Probe
	Timeout time.Duration
}

func (h HealthHandlers) Livez(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h HealthHandlers) Readyz(c *gin.Context) {
	if err := h.Ready(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Ready runs every probe and joins their failures.
func (h HealthHandlers) Ready(ctx context.Context) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var errs []error
	for _, p := range h.Probes {
		if p.Check == nil {
			continue
		}
		if err := p.Check(ctx); err != nil {
			errs = append(errs, errors.New(p.Name+": "+err.Error()))
		}
	}
	return errors.Join(errs...)
}
