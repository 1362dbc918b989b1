package handlers

import (
	"github.com/gorilla/mux"

	"atm-app/auth"
)

// Router wires every route. Authentication endpoints are open; everything
// under /api requires a session token and everything under /api/admin
// additionally requires the admin role.
func Router(h *Handler, mgr *auth.Manager) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/admin/login", h.AdminLogin).Methods("POST")

	s := r.PathPrefix("/api").Subrouter()
	s.Use(mgr.VerifyToken)

	s.HandleFunc("/deposit", h.Deposit).Methods("POST")
	s.HandleFunc("/withdraw", h.Withdraw).Methods("POST")
	s.HandleFunc("/balance", h.Balance).Methods("GET")
	s.HandleFunc("/transfer", h.Transfer).Methods("POST")
	s.HandleFunc("/pin", h.ChangePIN).Methods("POST")
	s.HandleFunc("/history", h.History).Methods("GET")

	adm := s.PathPrefix("/admin").Subrouter()
	adm.Use(auth.RequireAdmin)

	adm.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	adm.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	adm.HandleFunc("/limits", h.ChangeLimits).Methods("PUT")
	adm.HandleFunc("/unlock", h.Unlock).Methods("POST")
	adm.HandleFunc("/close", h.CloseAccount).Methods("POST")
	adm.HandleFunc("/stats", h.Stats).Methods("GET")
	adm.HandleFunc("/export", h.Export).Methods("GET")

	return r
}
