package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/agencyflow/docflow/internal/models"
	"github.com/agencyflow/docflow/internal/scope"
)

// AgencyService covers tenant lifecycle. Removal is two-phase: Archive stops
// new documents while everything issued stays readable under legal hold;
// purging individual records is a separate, audited operation on the Linker.
type AgencyService struct {
	DB *gorm.DB
}

func NewAgencyService(db *gorm.DB) *AgencyService { return &AgencyService{DB: db} }

// Archive soft-deletes the tenant. Idempotent; re-archiving keeps the
// original timestamp.
func (s *AgencyService) Archive(sc scope.Scope, actor, reason string) error {
	if !sc.Valid() {
		return scope.ErrMissingAgency
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var agency models.Agency
		if err := tx.First(&agency, "id = ?", sc.AgencyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAgencyNotFound
			}
			return err
		}
		if agency.ArchivedAt != nil {
			return nil
		}
		now := time.Now().UTC()
		if err := tx.Model(&agency).Update("archived_at", now).Error; err != nil {
			return err
		}
		audit := models.AuditLog{
			AgencyID: sc.AgencyID, Actor: actor, EntityType: "Agency", EntityID: agency.ID,
			Action: "archive", Reason: reason,
		}
		return tx.Create(&audit).Error
	})
}

// Get loads the scoped agency.
func (s *AgencyService) Get(sc scope.Scope) (*models.Agency, error) {
	if !sc.Valid() {
		return nil, scope.ErrMissingAgency
	}
	var agency models.Agency
	if err := s.DB.First(&agency, "id = ?", sc.AgencyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgencyNotFound
		}
		return nil, err
	}
	return &agency, nil
}
