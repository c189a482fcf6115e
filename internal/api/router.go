package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

func NewRouter(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods("GET")
	r.HandleFunc("/", s.HandleIndex).Methods("GET")
	r.HandleFunc("/calls", s.HandleSubmit).Methods("POST")
	r.HandleFunc("/notifications", s.HandleListNotifications).Methods("GET")
	r.HandleFunc("/notifications/ws", s.HandleNotificationsWS).Methods("GET")
	r.HandleFunc("/notifications/{id}/ack", s.HandleAck).Methods("POST")
	return r
}
