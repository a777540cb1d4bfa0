// Package domain holds the employee read model. Employees are managed by an
// external HR system; this service only looks them up.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Employee struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgUnitID     snowflake.ID `gorm:"not null;index" json:"org_unit_id"`
	IdentityToken string       `gorm:"type:text;not null;uniqueIndex" json:"identity_token"`
	FullName      string       `gorm:"type:text;not null" json:"full_name"`
	Active        bool         `gorm:"not null;default:true" json:"active"`
}

// TableName sets the database table name.
func (Employee) TableName() string { return "employees" }

type Directory interface {
	GetByID(ctx context.Context, id snowflake.ID) (*Employee, error)
	// ResolveTokens maps identity tokens to active employees. Unknown or
	// inactive tokens are absent from the result.
	ResolveTokens(ctx context.Context, tokens []string) (map[string]Employee, error)
}

var (
	ErrEmployeeNotFound = errors.New("employee_not_found")
	ErrInvalidEmployee  = errors.New("invalid_employee")
)
