package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/agencyflow/docflow/internal/httpx"
	"github.com/agencyflow/docflow/internal/models"
	"github.com/agencyflow/docflow/internal/validation"
)

// ConsultationHandler manages intake records. Their answers arrive already
// validated by the form-schema engine, typed as one of the closed value
// kinds.
type ConsultationHandler struct {
	DB *gorm.DB
}

func NewConsultationHandler(db *gorm.DB) *ConsultationHandler {
	return &ConsultationHandler{DB: db}
}

type answerReq struct {
	Field       string   `json:"field"`
	Kind        string   `json:"kind"`
	TextValue   string   `json:"text_value"`
	NumberValue float64  `json:"number_value"`
	BoolValue   bool     `json:"bool_value"`
	ListValue   []string `json:"list_value"`
}

// Create: POST /consultations
func (h *ConsultationHandler) Create(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	var req struct {
		ClientName    string      `json:"client_name"`
		ClientCompany string      `json:"client_company"`
		ClientEmail   string      `json:"client_email"`
		ClientPhone   string      `json:"client_phone"`
		AddressLine1  string      `json:"address_line1"`
		AddressLine2  string      `json:"address_line2"`
		PostalCode    string      `json:"postal_code"`
		City          string      `json:"city"`
		Country       string      `json:"country"`
		SetupFee      float64     `json:"setup_fee"`
		MonthlyFee    float64     `json:"monthly_fee"`
		TermMonths    int         `json:"term_months"`
		Currency      string      `json:"currency"`
		Answers       []answerReq `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("client_name", req.ClientName, v)
	for i, a := range req.Answers {
		validation.OneOf("answers["+strconv.Itoa(i)+"].kind", a.Kind,
			[]string{models.FieldText, models.FieldNumber, models.FieldBool, models.FieldList}, v)
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}
	c := models.Consultation{
		AgencyID: sc.AgencyID, ClientName: req.ClientName, ClientCompany: req.ClientCompany,
		ClientEmail: req.ClientEmail, ClientPhone: req.ClientPhone,
		AddressLine1: req.AddressLine1, AddressLine2: req.AddressLine2,
		PostalCode: req.PostalCode, City: req.City, Country: req.Country,
		SetupFee: req.SetupFee, MonthlyFee: req.MonthlyFee, TermMonths: req.TermMonths,
		Currency: currency,
	}
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&c).Error; err != nil {
			return err
		}
		for _, a := range req.Answers {
			answer := models.IntakeAnswer{
				ConsultationID: c.ID, Field: a.Field, Kind: a.Kind,
				TextValue: a.TextValue, NumberValue: a.NumberValue, BoolValue: a.BoolValue,
			}
			if len(a.ListValue) > 0 {
				answer.ListValue = joinLines(a.ListValue)
			}
			if err := tx.Create(&answer).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_create_consultation", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": c.ID, "client_name": c.ClientName})
}

// Get: GET /consultations/get?id=...
func (h *ConsultationHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil || id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var c models.Consultation
	if err := sc.Where(h.DB).Preload("Answers").First(&c, "id = ?", id).Error; err != nil {
		httpx.JSONError(w, http.StatusNotFound, "consultation_not_found", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func joinLines(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += "\n"
		}
		out += it
	}
	return out
}
