package api

import (
	"errors"
	"net/http"

	"bookingdesk/internal/flow"
	"bookingdesk/internal/models"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) formRoutes(r *mux.Router) {
	r.HandleFunc("", s.handleStartForm).Methods(http.MethodPost)
	r.HandleFunc("/{session}", s.handleGetForm).Methods(http.MethodGet)
	r.HandleFunc("/{session}", s.handleResetForm).Methods(http.MethodDelete)
	r.HandleFunc("/{session}/service", s.handleFormService).Methods(http.MethodPost)
	r.HandleFunc("/{session}/date", s.handleFormDate).Methods(http.MethodPost)
	r.HandleFunc("/{session}/times", s.handleFormTimes).Methods(http.MethodGet)
	r.HandleFunc("/{session}/time", s.handleFormTime).Methods(http.MethodPost)
	r.HandleFunc("/{session}/contact", s.handleFormContact).Methods(http.MethodPost)
	r.HandleFunc("/{session}/submit", s.handleFormSubmit).Methods(http.MethodPost)
	r.HandleFunc("/{session}/back", s.handleFormBack).Methods(http.MethodPost)
}

type formValue struct {
	ServiceID string `json:"serviceId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

func (s *HTTPServer) handleStartForm(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Flow.Start(r.Context(), "")
	s.writeFormState(w, r, http.StatusCreated, state, err)
}

func (s *HTTPServer) handleGetForm(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Flow.Get(r.Context(), mux.Vars(r)["session"])
	s.writeFormState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleResetForm(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Flow.Reset(r.Context(), mux.Vars(r)["session"]); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleFormService(w http.ResponseWriter, r *http.Request) {
	var body formValue
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := s.deps.Flow.SelectService(r.Context(), mux.Vars(r)["session"], body.ServiceID)
	s.writeFormState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleFormDate(w http.ResponseWriter, r *http.Request) {
	var body formValue
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := s.deps.Flow.SelectDate(r.Context(), mux.Vars(r)["session"], body.Date)
	s.writeFormState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleFormTimes(w http.ResponseWriter, r *http.Request) {
	slots, err := s.deps.Flow.AvailableTimes(r.Context(), mux.Vars(r)["session"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (s *HTTPServer) handleFormTime(w http.ResponseWriter, r *http.Request) {
	var body formValue
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := s.deps.Flow.SelectTime(r.Context(), mux.Vars(r)["session"], body.Time)
	s.writeFormState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleFormContact(w http.ResponseWriter, r *http.Request) {
	var body flow.Contact
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := s.deps.Flow.SetContact(r.Context(), mux.Vars(r)["session"], body)
	s.writeFormState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Flow.Submit(r.Context(), mux.Vars(r)["session"])
	if errors.Is(err, flow.ErrSubmitFailed) && state != nil {
		s.logger.Warn().Err(err).Str("session_id", state.SessionID).Msg("form submission failed")
		writeJSON(w, http.StatusConflict, map[string]any{"error": state.Error, "form": state})
		return
	}
	s.writeFormState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleFormBack(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Flow.Back(r.Context(), mux.Vars(r)["session"])
	s.writeFormState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) writeFormState(w http.ResponseWriter, r *http.Request, statusCode int, state *models.FormState, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, statusCode, state)
}
