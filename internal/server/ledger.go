package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"github.com/smallbiznis/clockwise/pkg/db/pagination"
	"go.uber.org/zap"
)

const maxPrepareLimit = 10000

func (s *Server) GetLedgerStats(c *gin.Context) {
	stats, err := s.ledger.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// PrepareLedgerBatch runs the pipeline without writing anything so operators
// can inspect what the next ingest would do.
func (s *Server) PrepareLedgerBatch(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"), s.rules.Get().PollBatchSize, maxPrepareLimit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	from, err := parseOptionalInt64(c.Query("from"))
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	fromSequenceID := ledgerdomain.MinSequenceID
	if from != nil {
		fromSequenceID = *from
	}

	batch, err := s.pipeline.PrepareFrom(c.Request.Context(), fromSequenceID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": batch})
}

func (s *Server) RunHealthCheck(c *gin.Context) {
	if !s.admitHealthCheck(c) {
		return
	}

	entry, err := s.health.Check(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("manual ledger health check",
		zap.String("status", string(entry.Status)),
		zap.String("health_log_id", entry.ID.String()),
	)
	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) ListHealthChecks(c *gin.Context) {
	pageSize, err := parseLimit(c.Query("page_size"), pagination.DefaultPageSize, pagination.MaxPageSize)
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page size"))
		return
	}

	entries, pageInfo, err := s.health.List(c.Request.Context(), pagination.Pagination{
		PageToken: strings.TrimSpace(c.Query("page_token")),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": pageInfo})
}

func (s *Server) GetLatestHealthCheck(c *gin.Context) {
	entry, err := s.health.Latest(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}
