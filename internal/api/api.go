package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/intersection-view/internal/control"
	"github.com/thatsimonsguy/intersection-view/internal/metrics"
	"github.com/thatsimonsguy/intersection-view/internal/model"
	"github.com/thatsimonsguy/intersection-view/internal/registry"
	"github.com/thatsimonsguy/intersection-view/internal/session"
	"github.com/thatsimonsguy/intersection-view/internal/view"
)

type Server struct {
	hub  *session.Hub
	http *http.Server
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type CycleInputRequest struct {
	Green string `json:"green"`
	Red   string `json:"red"`
}

type CycleResponse struct {
	Result string            `json:"result"`
	View   view.Intersection `json:"view"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(hub *session.Hub) *Server {
	return &Server{hub: hub}
}

// Handler returns the routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/views", s.handleViews)
	mux.HandleFunc("/api/views/", s.handleViewOperations)
	mux.HandleFunc("/ws/views/", s.handleViewSocket)
	mux.Handle("/metrics", metrics.Handler())

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.http = &http.Server{Addr: addr, Handler: s.Handler()}

	log.Info().Str("address", addr).Msg("Starting REST API server")

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == "/api/views" {
		s.writeJSON(w, http.StatusOK, s.hub.List())
	} else {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleViewOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/views/")
	parts := strings.Split(path, "/")

	if len(parts) < 1 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "Road ID required")
		return
	}

	roadID, err := strconv.Atoi(parts[0])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Road ID must be an integer")
		return
	}

	if len(parts) == 1 {
		// /api/views/{id}
		switch r.Method {
		case http.MethodGet:
			s.getView(w, roadID)
		case http.MethodPost:
			s.openView(w, r, roadID)
		case http.MethodDelete:
			s.closeView(w, roadID)
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if len(parts) != 2 {
		s.writeError(w, http.StatusNotFound, "Invalid path")
		return
	}

	sess, ok := s.hub.Get(roadID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "View not open")
		return
	}

	switch op := parts[1]; {
	case op == "mode" && r.Method == http.MethodPut:
		s.setMode(w, r, sess)
	case op == "cycle-input" && r.Method == http.MethodPut:
		s.setCycleInput(w, r, sess)
	case op == "cycle" && r.Method == http.MethodPost:
		s.confirmCycle(w, sess)
	case op == "refresh" && r.Method == http.MethodPost:
		s.refresh(w, r, sess)
	case op == "mode", op == "cycle-input", op == "cycle", op == "refresh":
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	default:
		s.writeError(w, http.StatusNotFound, "Unknown operation")
	}
}

func (s *Server) getView(w http.ResponseWriter, roadID int) {
	sess, ok := s.hub.Get(roadID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "View not open")
		return
	}
	s.writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) openView(w http.ResponseWriter, r *http.Request, roadID int) {
	sess, err := s.hub.Acquire(r.Context(), roadID)
	if err != nil {
		if errors.Is(err, registry.ErrRoadNotFound) {
			s.writeError(w, http.StatusNotFound, "Road not found")
		} else {
			s.writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	log.Info().Int("road_id", roadID).Str("session_id", sess.ID()).Msg("View opened via API")
	s.writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) closeView(w http.ResponseWriter, roadID int) {
	if !s.hub.Release(roadID) {
		s.writeError(w, http.StatusNotFound, "View not open")
		return
	}
	log.Info().Int("road_id", roadID).Msg("View released via API")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	err := sess.SetMode(model.Mode(strings.ToLower(req.Mode)))
	if errors.Is(err, session.ErrInvalidMode) {
		s.writeError(w, http.StatusBadRequest, "Invalid mode. Valid modes: auto, manual")
		return
	}
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	log.Info().Int("road_id", sess.RoadID()).Str("mode", req.Mode).Msg("Mode changed via API")
	s.writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) setCycleInput(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req CycleInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := sess.SetCycleInput(req.Green, req.Red); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.View())
}

// confirmCycle always answers 200; rejected input shows only in the result and the pending flag.
func (s *Server) confirmCycle(w http.ResponseWriter, sess *session.Session) {
	res, err := sess.ConfirmCycle()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	if res == control.Submitted {
		log.Info().Int("road_id", sess.RoadID()).Msg("Cycle submitted via API")
	}
	s.writeJSON(w, http.StatusOK, CycleResponse{Result: string(res), View: sess.View()})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Refresh(r.Context()); err != nil {
		if errors.Is(err, session.ErrClosed) {
			s.writeSessionError(w, err)
		} else if errors.Is(err, registry.ErrRoadNotFound) {
			s.writeError(w, http.StatusNotFound, "Road not found")
		} else {
			s.writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrClosed) {
		s.writeError(w, http.StatusNotFound, "View not open")
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
