package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	"github.com/smallbiznis/clockwise/internal/clock"
	"github.com/smallbiznis/clockwise/internal/config"
	employeedomain "github.com/smallbiznis/clockwise/internal/employee/domain"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	obslogger "github.com/smallbiznis/clockwise/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/clockwise/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Employees employeedomain.Directory
	Events    attendancedomain.EventRepository
	Summaries attendancedomain.SummaryService
	Rules     *config.RulesConfigHolder `optional:"true"`
	Metrics   *obsmetrics.Metrics       `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	employees employeedomain.Directory
	events    attendancedomain.EventRepository
	summaries attendancedomain.SummaryService
	rules     *config.RulesConfigHolder
	metrics   *obsmetrics.Metrics
}

func NewService(p Params) attendancedomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("attendance.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		employees: p.Employees,
		events:    p.Events,
		summaries: p.Summaries,
		rules:     p.Rules,
		metrics:   p.Metrics,
	}
}

// RecordManual stores an event entered by an operator or an import job.
func (s *Service) RecordManual(ctx context.Context, req attendancedomain.RecordEventRequest) (*attendancedomain.AttendanceEvent, error) {
	employeeID, err := snowflake.ParseString(strings.TrimSpace(req.EmployeeID))
	if err != nil || employeeID == 0 {
		return nil, employeedomain.ErrInvalidEmployee
	}
	kind, err := ledgerdomain.ParseEventKind(req.EventKind)
	if err != nil {
		return nil, err
	}
	source, err := parseSource(req.Source)
	if err != nil {
		return nil, err
	}
	if req.EventTime.IsZero() {
		return nil, attendancedomain.ErrInvalidEventTime
	}

	if _, err := s.employees.GetByID(ctx, employeeID); err != nil {
		return nil, err
	}

	eventTime := req.EventTime.UTC()
	eventDate := clock.DateIn(eventTime, s.rules.Get().Location())
	if err := s.ensureOpen(ctx, employeeID, eventDate); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	event := &attendancedomain.AttendanceEvent{
		ID:           s.genID.Generate(),
		EmployeeID:   employeeID,
		EventDate:    attendancedomain.DateValue(eventDate),
		EventTime:    eventTime,
		EventKind:    kind,
		HashVerified: false,
		Source:       source,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.events.Insert(ctx, s.db, event); err != nil {
		return nil, err
	}
	obslogger.WithContext(ctx, s.log).Info("attendance event recorded",
		zap.String("event_id", event.ID.String()),
		zap.String("employee_id", employeeID.String()),
		zap.String("source", string(source)),
		zap.String("recorded_by", strings.TrimSpace(req.RecordedBy)),
	)
	s.metrics.RecordMaterialized(ctx, string(source), 1, 0, 0)

	s.recompute(ctx, employeeID, eventDate)
	return event, nil
}

// Correct amends an event in place and appends the change to its history.
func (s *Service) Correct(ctx context.Context, req attendancedomain.CorrectEventRequest) (*attendancedomain.AttendanceEvent, error) {
	eventID, err := snowflake.ParseString(strings.TrimSpace(req.EventID))
	if err != nil || eventID == 0 {
		return nil, attendancedomain.ErrInvalidEventID
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, attendancedomain.ErrInvalidReason
	}

	event, err := s.events.FindByID(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, attendancedomain.ErrEventNotFound
	}

	newTime := event.EventTime
	if req.EventTime != nil {
		if req.EventTime.IsZero() {
			return nil, attendancedomain.ErrInvalidEventTime
		}
		newTime = req.EventTime.UTC()
	}
	newKind := event.EventKind
	if req.EventKind != nil {
		newKind, err = ledgerdomain.ParseEventKind(*req.EventKind)
		if err != nil {
			return nil, err
		}
	}
	if newTime.Equal(event.EventTime) && newKind == event.EventKind {
		return nil, attendancedomain.ErrNothingToCorrect
	}

	oldDate := attendancedomain.Day(time.Time(event.EventDate))
	newDate := clock.DateIn(newTime, s.rules.Get().Location())
	if err := s.ensureOpen(ctx, event.EmployeeID, oldDate); err != nil {
		return nil, err
	}
	if !newDate.Equal(oldDate) {
		if err := s.ensureOpen(ctx, event.EmployeeID, newDate); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	correctedBy := strings.TrimSpace(req.CorrectedBy)
	event.Corrections = append(event.Corrections, attendancedomain.Correction{
		CorrectedAt:  now,
		CorrectedBy:  correctedBy,
		Reason:       reason,
		PreviousTime: event.EventTime,
		NewTime:      newTime,
		PreviousKind: event.EventKind,
		NewKind:      newKind,
	})
	if event.OriginalEventTime == nil {
		original := event.EventTime
		event.OriginalEventTime = &original
	}
	event.CorrectedAt = &now
	event.CorrectedBy = &correctedBy
	event.CorrectionReason = &reason
	event.EventTime = newTime
	event.EventKind = newKind
	event.EventDate = attendancedomain.DateValue(newDate)
	event.UpdatedAt = now

	if err := s.events.Save(ctx, s.db, event); err != nil {
		return nil, err
	}

	s.recompute(ctx, event.EmployeeID, oldDate)
	if !newDate.Equal(oldDate) {
		s.recompute(ctx, event.EmployeeID, newDate)
	}
	return event, nil
}

func (s *Service) ListForDay(ctx context.Context, employeeID snowflake.ID, date time.Time) ([]attendancedomain.AttendanceEvent, error) {
	if employeeID == 0 {
		return nil, employeedomain.ErrInvalidEmployee
	}
	if date.IsZero() {
		return nil, attendancedomain.ErrInvalidDate
	}
	return s.events.ListForDay(ctx, s.db, employeeID, attendancedomain.Day(date))
}

func (s *Service) ensureOpen(ctx context.Context, employeeID snowflake.ID, date time.Time) error {
	summary, err := s.summaries.Get(ctx, employeeID, date)
	if err != nil {
		if errors.Is(err, attendancedomain.ErrSummaryNotFound) {
			return nil
		}
		return err
	}
	if summary.IsFinalized {
		return attendancedomain.ErrSummaryFinalized
	}
	return nil
}

// recompute refreshes a summary after an event write. The event is already
// stored, so failures are logged and left to the next recompute.
func (s *Service) recompute(ctx context.Context, employeeID snowflake.ID, date time.Time) {
	if _, err := s.summaries.Recompute(ctx, employeeID, date); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("summary recompute failed",
			zap.Error(err),
			zap.String("employee_id", employeeID.String()),
			zap.Time("date", date),
		)
	}
}

func parseSource(value string) (attendancedomain.EventSource, error) {
	switch attendancedomain.EventSource(strings.ToLower(strings.TrimSpace(value))) {
	case "", attendancedomain.EventSourceManual:
		return attendancedomain.EventSourceManual, nil
	case attendancedomain.EventSourceImport:
		return attendancedomain.EventSourceImport, nil
	default:
		return "", attendancedomain.ErrInvalidSource
	}
}
