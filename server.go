package main

import (
	"net/http"
	"time"

	"github.com/Tutortoise/mask-stream/classifier"
	"github.com/Tutortoise/mask-stream/config"
	"github.com/Tutortoise/mask-stream/stream"
	"github.com/Tutortoise/mask-stream/web"
	"github.com/gorilla/mux"
)

type AppState struct {
	Config     *config.Config
	Classifier classifier.Classifier
	Pool       *ClassifierPool // nil with the opencv backend
	Controller *stream.Controller
	Hub        *stream.Hub
	StartedAt  time.Time

	// ClassifyTimeout bounds a still-image request, session wait included.
	// Zero uses AcquireTimeout.
	ClassifyTimeout time.Duration
}

func (s *AppState) classifyTimeout() time.Duration {
	if s.ClassifyTimeout > 0 {
		return s.ClassifyTimeout
	}
	return AcquireTimeout
}

type ClassifyResponse struct {
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
	Message     string  `json:"message"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *AppState) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stream/start", s.handleStart).Methods("POST")
	api.HandleFunc("/stream/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/classify", handleClassify(s)).Methods("POST")

	r.HandleFunc("/ws", s.handleWS).Methods("GET")
	s.addMonitoringRoutes(r)

	r.PathPrefix("/").Handler(web.Handler()).Methods("GET", "HEAD")
	return r
}

func (s *AppState) Server() *http.Server {
	return &http.Server{
		Handler:      s.Router(),
		Addr:         s.Config.Addr(),
		WriteTimeout: s.Config.Server.WriteTimeout,
		ReadTimeout:  s.Config.Server.ReadTimeout,
	}
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
}
