package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
)

type recomputeSummaryRequest struct {
	EmployeeID string `json:"employee_id"`
	Date       string `json:"date"`
}

func (s *Server) RecomputeSummary(c *gin.Context) {
	var req recomputeSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	employeeID, err := parseEmployeeID(req.EmployeeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.summaries.Recompute(c.Request.Context(), employeeID, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetSummary(c *gin.Context) {
	employeeID, err := parseEmployeeID(c.Param("employee_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	date, err := parseDate(c.Param("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.summaries.Get(c.Request.Context(), employeeID, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) FinalizeSummary(c *gin.Context) {
	employeeID, err := parseEmployeeID(c.Param("employee_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	date, err := parseDate(c.Param("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.summaries.Finalize(c.Request.Context(), employeeID, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) ListEvents(c *gin.Context) {
	var query struct {
		EmployeeID string `form:"employee_id"`
		Date       string `form:"date"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	employeeID, err := parseEmployeeID(query.EmployeeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	date, err := parseDate(query.Date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	events, err := s.attendance.ListForDay(c.Request.Context(), employeeID, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}

type recordEventRequest struct {
	EmployeeID string    `json:"employee_id"`
	EventTime  time.Time `json:"event_time"`
	EventKind  string    `json:"event_kind"`
	Source     string    `json:"source"`
	RecordedBy string    `json:"recorded_by"`
}

func (s *Server) RecordEvent(c *gin.Context) {
	var req recordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if !s.admitManualEvent(c, req.RecordedBy) {
		return
	}

	event, err := s.attendance.RecordManual(c.Request.Context(), attendancedomain.RecordEventRequest{
		EmployeeID: strings.TrimSpace(req.EmployeeID),
		EventTime:  req.EventTime,
		EventKind:  req.EventKind,
		Source:     req.Source,
		RecordedBy: strings.TrimSpace(req.RecordedBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": event})
}

type correctEventRequest struct {
	EventTime   *time.Time `json:"event_time"`
	EventKind   *string    `json:"event_kind"`
	Reason      string     `json:"reason"`
	CorrectedBy string     `json:"corrected_by"`
}

func (s *Server) CorrectEvent(c *gin.Context) {
	var req correctEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if !s.admitManualEvent(c, req.CorrectedBy) {
		return
	}

	event, err := s.attendance.Correct(c.Request.Context(), attendancedomain.CorrectEventRequest{
		EventID:     strings.TrimSpace(c.Param("id")),
		EventTime:   req.EventTime,
		EventKind:   req.EventKind,
		Reason:      strings.TrimSpace(req.Reason),
		CorrectedBy: strings.TrimSpace(req.CorrectedBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": event})
}
