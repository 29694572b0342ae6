package repositories

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/backstage/services/procurement/internal/models"
)

// CompanyRepository provides access to the supplier display ordering
type CompanyRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewCompanyRepository creates a new repository
func NewCompanyRepository(db *gorm.DB, readOnlyDB *gorm.DB) *CompanyRepository {
	return &CompanyRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// List returns all companies by display order
func (r *CompanyRepository) List(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	err := reader(r.db, r.readOnlyDB).WithContext(ctx).
		Order("display_order ASC, name ASC").
		Find(&companies).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list companies")
	}
	return companies, nil
}

// Upsert creates a company or updates its display order by name
func (r *CompanyRepository) Upsert(ctx context.Context, company *models.Company) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_order", "updated_at"}),
	}).Create(company).Error
	return errors.Wrap(err, "failed to upsert company")
}
