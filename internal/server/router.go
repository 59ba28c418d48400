package server

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/agencyflow/docflow/internal/handlers"
	"github.com/agencyflow/docflow/internal/httpx"
	"github.com/agencyflow/docflow/internal/scope"
	"github.com/agencyflow/docflow/internal/services"
)

// New constructs the root http.Handler with all routes and middlewares applied.
func New(db *gorm.DB) http.Handler {
	mux := http.NewServeMux()

	// --- Health endpoints ---
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		// Lightweight DB check (SELECT 1)
		if err := db.Exec("SELECT 1").Error; err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	seq := services.NewSequenceAllocator(db)
	linker := services.NewLinker(db, seq)
	sm := services.NewStateMachine(db, linker)
	agencySvc := services.NewAgencyService(db)

	dh := handlers.NewDocumentHandler(db, sm, linker)
	th := handlers.NewTriggerHandler(linker, sm)
	ah := handlers.NewAdminHandler(sm, linker, agencySvc)
	ch := handlers.NewConsultationHandler(db)

	scoped := func(h http.HandlerFunc) http.Handler {
		return scope.RequireAgency(h)
	}

	mux.Handle("/documents", scoped(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			dh.List(w, r)
		case http.MethodPost:
			dh.Create(w, r)
		default:
			w.Header().Set("Allow", "GET,POST")
			httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		}
	}))
	mux.Handle("/documents/get", scoped(dh.Get))
	mux.Handle("/documents/transition", scoped(requirePost(dh.Transition)))
	mux.Handle("/documents/render", scoped(requirePost(dh.Render)))

	mux.Handle("/consultations", scoped(requirePost(ch.Create)))
	mux.Handle("/consultations/get", scoped(ch.Get))

	mux.Handle("/triggers/source-event", scoped(requirePost(th.SourceEvent)))
	mux.Handle("/webhooks/payment", scoped(requirePost(th.PaymentConfirmed)))

	mux.Handle("/admin/documents/reverse", scoped(requirePost(ah.Reverse)))
	mux.Handle("/admin/documents/purge", scoped(requirePost(ah.PurgeDocument)))
	mux.Handle("/admin/consultations/purge", scoped(requirePost(ah.PurgeConsultation)))
	mux.Handle("/admin/agency/archive", scoped(requirePost(ah.ArchiveAgency)))

	return scope.Middleware(mux)
}

func requirePost(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
			return
		}
		h(w, r)
	}
}
