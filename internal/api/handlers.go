package api

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"

	"github.com/harrylevesque/callform/internal/form"
	"github.com/harrylevesque/callform/internal/models"
	"github.com/harrylevesque/callform/internal/notify"
	"github.com/harrylevesque/callform/internal/utils"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const (
	msgPhoneRequired = "Please fill in the phone number."
	msgInFlight      = "The number is still being sent."
)

type Options struct {
	Forms    *form.Registry
	Queue    notify.Queue
	Sessions sessions.Store
	Logger   *utils.Logger

	// PollInterval is how often the websocket feed rechecks the queue. Defaults to 2s.
	PollInterval time.Duration
}

type Server struct {
	forms        *form.Registry
	queue        notify.Queue
	sessions     sessions.Store
	log          *utils.Logger
	templates    *template.Template
	upgrader     websocket.Upgrader
	pollInterval time.Duration
}

type IndexView struct {
	Phone        string
	Submitting   bool
	Error        string
	Notification *models.Notification
	Pending      int
}

func NewServer(opts Options) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Server{
		forms:        opts.Forms,
		queue:        opts.Queue,
		sessions:     opts.Sessions,
		log:          opts.Logger,
		templates:    tmpl,
		pollInterval: poll,
	}, nil
}

func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	id, err := s.formID(w, r)
	if err != nil {
		s.log.Errorf("index: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.render(w, r, s.forms.Get(id), http.StatusOK, "")
}

func (s *Server) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id, err := s.formID(w, r)
	if err != nil {
		s.log.Errorf("submit: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	f := s.forms.Get(id)
	f.OnInputChange(r.FormValue("phone"))

	// the request runs to completion even if the browser goes away
	_, err = f.OnSubmit(context.WithoutCancel(r.Context()))
	switch {
	case err == nil:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, form.ErrEmptyPhone):
		s.render(w, r, f, http.StatusBadRequest, msgPhoneRequired)
	case errors.Is(err, form.ErrSubmitInFlight):
		s.render(w, r, f, http.StatusConflict, msgInFlight)
	default:
		s.log.Errorf("submit: queue notification: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) HandleAck(w http.ResponseWriter, r *http.Request) {
	id, ok := s.existingFormID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	err := s.queue.Ack(r.Context(), id, mux.Vars(r)["id"])
	switch {
	case err == nil:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, notify.ErrNotFound):
		http.NotFound(w, r)
	default:
		s.log.Errorf("ack: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	pending := []models.Notification{}
	if id, ok := s.existingFormID(r); ok {
		var err error
		pending, err = s.queue.Pending(r.Context(), id)
		if err != nil {
			s.log.Errorf("list notifications: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pending)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, f *form.Form, status int, msg string) {
	view := IndexView{
		Phone:      f.Phone(),
		Submitting: f.State() == form.StateSubmitting,
		Error:      msg,
	}
	pending, err := s.queue.Pending(r.Context(), f.ID())
	if err != nil {
		s.log.Errorf("render: pending notifications: %v", err)
	}
	if len(pending) > 0 {
		view.Notification = &pending[0]
		view.Pending = len(pending)
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index", view); err != nil {
		s.log.Errorf("render: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
