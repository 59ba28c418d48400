package db

import (
	"gorm.io/gorm"

	"github.com/agencyflow/docflow/internal/models"
)

// seed inserts a demo agency with numbering settings and one consultation.
// Only called when DB_SEED is set; idempotent on agency name.
func seed(db *gorm.DB) {
	var existing models.Agency
	if err := db.Where("name = ?", "Demo Agency").First(&existing).Error; err != gorm.ErrRecordNotFound {
		return
	}
	agency := models.Agency{
		Name: "Demo Agency", LegalName: "Demo Agency SARL", Email: "hello@demo.test",
		AddressLine1: "1 rue de la Paix", PostalCode: "75002", City: "Paris", Country: "FR",
	}
	if err := db.Create(&agency).Error; err != nil {
		return
	}
	settings := []models.NumberingSetting{
		{AgencyID: agency.ID, Kind: models.KindProposal, Prefix: "PROP", PadWidth: 4, StartValue: 1},
		{AgencyID: agency.ID, Kind: models.KindContract, Prefix: "CONT", PadWidth: 4, StartValue: 1},
		{AgencyID: agency.ID, Kind: models.KindInvoice, Prefix: "INV", PadWidth: 4, IncludeYear: true, StartValue: 1},
		{AgencyID: agency.ID, Kind: models.KindQuotation, Prefix: "QUO", PadWidth: 4, StartValue: 1},
	}
	for _, s := range settings {
		db.Create(&s)
	}
	consultation := models.Consultation{
		AgencyID: agency.ID, ClientName: "Jane Example", ClientCompany: "Example & Co",
		ClientEmail: "jane@example.test", City: "Lyon", Country: "FR",
		SetupFee: 1500, MonthlyFee: 450, TermMonths: 12, Currency: "EUR",
	}
	db.Create(&consultation)
}
