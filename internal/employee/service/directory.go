package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	employeedomain "github.com/smallbiznis/clockwise/internal/employee/domain"
	"github.com/smallbiznis/clockwise/pkg/db/option"
	"github.com/smallbiznis/clockwise/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Directory struct {
	log  *zap.Logger
	repo repository.Repository[employeedomain.Employee]
}

func NewDirectory(p Params) employeedomain.Directory {
	return &Directory{
		log:  p.Log.Named("employee.directory"),
		repo: repository.ProvideStore[employeedomain.Employee](p.DB),
	}
}

func (d *Directory) GetByID(ctx context.Context, id snowflake.ID) (*employeedomain.Employee, error) {
	if id == 0 {
		return nil, employeedomain.ErrInvalidEmployee
	}
	employee, err := d.repo.FindOne(ctx, &employeedomain.Employee{ID: id})
	if err != nil {
		return nil, err
	}
	if employee == nil {
		return nil, employeedomain.ErrEmployeeNotFound
	}
	return employee, nil
}

func (d *Directory) ResolveTokens(ctx context.Context, tokens []string) (map[string]employeedomain.Employee, error) {
	resolved := make(map[string]employeedomain.Employee, len(tokens))
	if len(tokens) == 0 {
		return resolved, nil
	}

	unique := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, ok := seen[token]; ok || token == "" {
			continue
		}
		seen[token] = struct{}{}
		unique = append(unique, token)
	}

	employees, err := d.repo.Find(ctx, &employeedomain.Employee{},
		option.WithWhere("identity_token IN ? AND active = ?", unique, true),
	)
	if err != nil {
		return nil, err
	}
	for _, employee := range employees {
		resolved[employee.IdentityToken] = *employee
	}
	return resolved, nil
}
