package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	employeedomain "github.com/smallbiznis/clockwise/internal/employee/domain"
)

func parseOptionalInt64(value string) (*int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseLimit returns def for an empty value and rejects anything outside [1, max].
func parseLimit(value string, def, max int) (int, error) {
	parsed, err := parseOptionalInt64(value)
	if err != nil {
		return 0, err
	}
	if parsed == nil {
		return def, nil
	}
	if *parsed <= 0 || *parsed > int64(max) {
		return 0, strconv.ErrRange
	}
	return int(*parsed), nil
}

func parseEmployeeID(value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, employeedomain.ErrInvalidEmployee
	}
	return parsed, nil
}

func parseDate(value string) (time.Time, error) {
	return attendancedomain.ParseDate(strings.TrimSpace(value))
}
