package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	contributiondomain "github.com/smallbiznis/condopay/internal/contribution/domain"
	"github.com/smallbiznis/condopay/internal/export"
	obslogger "github.com/smallbiznis/condopay/internal/observability/logger"
	"go.uber.org/zap"
)

const HeaderSnapshotStale = "X-Snapshot-Stale"

// GetContributions answers with the freshly computed report. When the fetch
// fails but an earlier report is cached it is returned with 503 and
// X-Snapshot-Stale so clients can still render it.
func (s *Server) GetContributions(c *gin.Context) {
	condominiumID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	year, err := parseYear(c, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	snap, err := s.contributionSvc.GetReport(c.Request.Context(), condominiumID, year)
	if err != nil {
		if errors.Is(err, contributiondomain.ErrFetchFailed) && snap.Stale {
			obslogger.WithContext(c.Request.Context(), s.log).Warn("serving stale contribution report",
				zap.String("condominium_id", condominiumID.String()),
				zap.Int("year", year),
				zap.Error(err),
			)
			c.Header(HeaderSnapshotStale, "true")
			c.JSON(http.StatusServiceUnavailable, gin.H{"data": snap})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snap})
}

func (s *Server) ExportContributions(c *gin.Context) {
	condominiumID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	year, err := parseYear(c, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	actor, _ := actorFromContext(c)
	limit, err := s.exportLimiter.Allow(ctx, actor.ID)
	if err != nil {
		if limit.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limit.RetryAfter.Seconds()))))
		}
		AbortWithError(c, err)
		return
	}
	release, err := s.exportLimiter.Acquire(ctx, condominiumID, year, string(format))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer release()

	condominium, err := s.condominiumSvc.GetByID(ctx, condominiumID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	snap, err := s.contributionSvc.GetReport(ctx, condominiumID, year)
	if err != nil {
		// A stale export would be mistaken for current data.
		AbortWithError(c, err)
		return
	}

	file, err := s.exporter.Export(ctx, export.Document{
		CondominiumName: condominium.Name,
		CondominiumSlug: condominium.Slug,
		Report:          snap.Report,
	}, format)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.DataFromReader(http.StatusOK, int64(file.Size), file.ContentType, file.Body, map[string]string{
		"Content-Disposition": `attachment; filename="` + file.Name + `"`,
	})
}
