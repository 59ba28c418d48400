package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/agencyflow/docflow/internal/models"
	"github.com/agencyflow/docflow/internal/scope"
)

// SequenceAllocator issues per (agency, kind) sequential document numbers.
// Numbers are never reused; gaps are tolerated (a rolled-back spawn gives its
// number up), duplicates are not.
type SequenceAllocator struct {
	DB *gorm.DB
}

func NewSequenceAllocator(db *gorm.DB) *SequenceAllocator { return &SequenceAllocator{DB: db} }

// Allocate issues the next number and its formatted label in one transaction.
func (a *SequenceAllocator) Allocate(sc scope.Scope, kind string) (int64, string, error) {
	if !sc.Valid() {
		return 0, "", scope.ErrMissingAgency
	}
	var number int64
	var label string
	err := a.DB.Transaction(func(tx *gorm.DB) error {
		n, err := a.AllocateTx(tx, sc, kind)
		if err != nil {
			return err
		}
		number = n
		label = a.LabelTx(tx, sc, kind, n)
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	return number, label, nil
}

// AllocateTx issues the next number inside an existing transaction, so spawn
// can bundle allocation with the document and edge writes.
//
// The increment is a single in-place UPDATE; the read-back afterwards sees
// this transaction's own write while the row lock taken by the UPDATE holds
// off concurrent allocators until commit. Two callers can therefore never
// observe the same value. A read-then-write here would race.
func (a *SequenceAllocator) AllocateTx(tx *gorm.DB, sc scope.Scope, kind string) (int64, error) {
	if !sc.Valid() {
		return 0, scope.ErrMissingAgency
	}
	res := sc.Where(tx.Model(&models.DocumentCounter{})).Where("kind = ?", kind).
		UpdateColumn("last_number", gorm.Expr("last_number + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		// First allocation for this (agency, kind): create the counter, then
		// increment it the same way.
		if err := a.createCounter(tx, sc, kind); err != nil {
			return 0, err
		}
		res = sc.Where(tx.Model(&models.DocumentCounter{})).Where("kind = ?", kind).
			UpdateColumn("last_number", gorm.Expr("last_number + 1"))
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 0 {
			return 0, fmt.Errorf("counter vanished for agency=%d kind=%s", sc.AgencyID, kind)
		}
	}
	var counter models.DocumentCounter
	if err := sc.Where(tx).Where("kind = ?", kind).First(&counter).Error; err != nil {
		return 0, err
	}
	return counter.LastNumber, nil
}

// createCounter inserts the counter row with the configured start value,
// verifying the agency exists first. A concurrent creation losing the unique
// race is fine; the caller re-runs the increment either way.
func (a *SequenceAllocator) createCounter(tx *gorm.DB, sc scope.Scope, kind string) error {
	var count int64
	if err := tx.Model(&models.Agency{}).Where("id = ?", sc.AgencyID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrAgencyNotFound
	}
	start := int64(1)
	var setting models.NumberingSetting
	if err := sc.Where(tx).Where("kind = ?", kind).First(&setting).Error; err == nil && setting.StartValue > 0 {
		start = setting.StartValue
	}
	counter := models.DocumentCounter{AgencyID: sc.AgencyID, Kind: kind, LastNumber: start - 1}
	if err := tx.Create(&counter).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	return nil
}

// LabelTx formats a number using the agency's numbering settings. Formatting
// never affects uniqueness; two labels differ whenever their numbers do.
func (a *SequenceAllocator) LabelTx(tx *gorm.DB, sc scope.Scope, kind string, number int64) string {
	var setting models.NumberingSetting
	_ = sc.Where(tx).Where("kind = ?", kind).First(&setting).Error
	return FormatLabel(setting, kind, number, time.Now())
}

// FormatLabel is the pure formatting rule: prefix, optional year, zero-padded
// number. Padding is a minimum width; numbers wider than it print in full.
func FormatLabel(setting models.NumberingSetting, kind string, number int64, at time.Time) string {
	prefix := setting.Prefix
	if prefix == "" {
		prefix = strings.ToUpper(kind)
		if len(prefix) > 4 {
			prefix = prefix[:4]
		}
	}
	pad := setting.PadWidth
	if pad <= 0 {
		pad = 4
	}
	if setting.IncludeYear {
		return fmt.Sprintf("%s-%d-%0*d", prefix, at.Year(), pad, number)
	}
	return fmt.Sprintf("%s-%0*d", prefix, pad, number)
}
