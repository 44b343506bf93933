package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alfonsopalomares/digital-twin/internal/anomstore"
	"github.com/alfonsopalomares/digital-twin/internal/config"
	"github.com/alfonsopalomares/digital-twin/internal/engine"
	"github.com/alfonsopalomares/digital-twin/internal/metrics"
	"github.com/alfonsopalomares/digital-twin/internal/model"
	"github.com/alfonsopalomares/digital-twin/internal/observe"
	"github.com/alfonsopalomares/digital-twin/internal/simulator"
	"github.com/alfonsopalomares/digital-twin/internal/storage"
)

type Server struct {
	cfg     *config.Manager
	store   storage.Store
	anoms   *anomstore.Store
	engine  *metrics.Engine
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string          `json:"status"`
	Time       string          `json:"time"`
	Version    string          `json:"version"`
	ConfigPath string          `json:"config_path"`
	Storage    storageStatus   `json:"storage"`
	Ingest     ingestStatus    `json:"ingest"`
	API        apiStatus       `json:"api"`
	Detection  detectionStatus `json:"detection"`
	Metrics    []string        `json:"metrics"`
}

type storageStatus struct {
	Driver string `json:"driver"`
}

type ingestStatus struct {
	Kafka bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type detectionStatus struct {
	Window         int     `json:"window"`
	ZThreshold     float64 `json:"z_threshold"`
	GroupTolerance string  `json:"group_tolerance"`
	RecoveryPolicy string  `json:"recovery_policy"`
}

func Start(ctx context.Context, cfg *config.Manager, store storage.Store, anoms *anomstore.Store, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := NewServer(cfg, store, anoms, logger, version)

	httpServer := &http.Server{Addr: current.Addr, Handler: server.Handler()}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func NewServer(cfg *config.Manager, store storage.Store, anoms *anomstore.Store, logger *slog.Logger, version string) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		anoms:   anoms,
		engine:  metrics.NewEngine(cfg.Get()),
		logger:  logger,
		version: version,
	}
}

// Handler builds the route table. Exposed separately so tests can drive the
// server through httptest without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.instrument("/status", s.handleStatus))
	mux.HandleFunc("/health", s.instrument("/health", s.handleHealth))
	mux.HandleFunc("/readings", s.instrument("/readings", s.handleReadings))
	mux.HandleFunc("/readings/latest", s.instrument("/readings/latest", s.handleLatest))
	mux.HandleFunc("/anomalies/static", s.instrument("/anomalies/static", s.handleStaticAnomalies))
	mux.HandleFunc("/anomalies/adaptive", s.instrument("/anomalies/adaptive", s.handleAdaptiveAnomalies))
	mux.HandleFunc("/anomalies/classify", s.instrument("/anomalies/classify", s.handleClassify))
	mux.HandleFunc("/anomalies/events", s.instrument("/anomalies/events", s.handleEvents))
	mux.HandleFunc("/anomalies/recent", s.instrument("/anomalies/recent", s.handleRecent))
	mux.HandleFunc("/metrics/", s.instrument("/metrics/", s.handleMetric))
	mux.HandleFunc("/simulate", s.instrument("/simulate", s.handleSimulate))
	mux.Handle("/debug/metrics", observe.Handler())
	return mux
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		observe.ObserveAPIRequest(route, strconv.Itoa(rec.status), time.Since(started))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Storage:    storageStatus{Driver: cfg.Storage.Driver},
		Ingest:     ingestStatus{Kafka: cfg.Ingest.Kafka.Enabled},
		API:        apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Detection: detectionStatus{
			Window:         cfg.Detection.Window,
			ZThreshold:     cfg.Detection.ZThreshold,
			GroupTolerance: cfg.Detection.GroupTolerance.String(),
			RecoveryPolicy: cfg.Detection.RecoveryPolicy,
		},
		Metrics: s.engine.Names(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		readings, ok := s.fetchScoped(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"readings": readings,
			"count":    len(readings),
		})
	case http.MethodDelete:
		if err := s.store.Clear(r.Context()); err != nil {
			s.serverError(w, "clear readings", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sensor, ok := parseSensorParam(w, r)
	if !ok {
		return
	}
	reading, err := s.store.Latest(r.Context(), sensor)
	if err != nil {
		if errors.Is(err, storage.ErrNoReadings) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.serverError(w, "latest reading", err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleStaticAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	readings, ok := s.fetchScoped(w, r)
	if !ok {
		return
	}
	anomalies := engine.CheckStatic(readings, s.cfg.Get().Thresholds)
	s.remember(anomalies)
	writeJSON(w, http.StatusOK, map[string]any{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

func (s *Server) handleAdaptiveAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	anomalies, ok := s.detectAdaptive(w, r)
	if !ok {
		return
	}
	s.remember(anomalies)
	writeJSON(w, http.StatusOK, map[string]any{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	anomalies, ok := s.detectAdaptive(w, r)
	if !ok {
		return
	}
	classified := engine.ClassifyAll(anomalies)
	s.remember(classified)
	writeJSON(w, http.StatusOK, map[string]any{
		"anomalies": classified,
		"count":     len(classified),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	anomalies, ok := s.detectAdaptive(w, r)
	if !ok {
		return
	}
	events := engine.GroupEvents(anomalies, s.cfg.Get().Detection.GroupTolerance)
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.Anomaly
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.anoms.Since(ts)
	} else {
		list = s.anoms.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"anomalies": list,
		"count":     len(list),
	})
}

func (s *Server) handleMetric(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/metrics/")
	fn, found := s.engine.ByName(name)
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	q, ok := parseQuery(w, r)
	if !ok {
		return
	}
	readings, err := s.store.FetchRange(r.Context(), q.Sensor, q.Start, q.End)
	if err != nil {
		s.serverError(w, "fetch readings", err)
		return
	}
	report, err := fn(readings, q)
	if err != nil {
		if isBadQuery(err) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.serverError(w, "compute metric", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	req := struct {
		Users int     `json:"users"`
		Hours float64 `json:"hours"`
		Start string  `json:"start"`
	}{Users: 1, Hours: 1}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}
	if req.Users < 0 || req.Hours <= 0 || req.Hours > 24*30 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	start := time.Now().UTC()
	if req.Start != "" {
		parsed, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		start = parsed.UTC()
	}
	sim := simulator.New(s.cfg.Get())
	readings := sim.Run(start, time.Duration(req.Hours*float64(time.Hour)), req.Users)
	if err := s.store.SaveReadings(r.Context(), readings); err != nil {
		s.serverError(w, "save simulated readings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"readings": len(readings),
		"start":    start.Format(time.RFC3339),
		"summary":  sim.Summarize(readings),
	})
}

// fetchScoped loads readings for the request's sensor/start/end parameters.
func (s *Server) fetchScoped(w http.ResponseWriter, r *http.Request) ([]model.Reading, bool) {
	q, ok := parseQuery(w, r)
	if !ok {
		return nil, false
	}
	readings, err := s.store.FetchRange(r.Context(), q.Sensor, q.Start, q.End)
	if err != nil {
		s.serverError(w, "fetch readings", err)
		return nil, false
	}
	return readings, true
}

func (s *Server) detectAdaptive(w http.ResponseWriter, r *http.Request) ([]model.Anomaly, bool) {
	q, ok := parseQuery(w, r)
	if !ok {
		return nil, false
	}
	readings, err := s.store.FetchRange(r.Context(), "", q.Start, q.End)
	if err != nil {
		s.serverError(w, "fetch readings", err)
		return nil, false
	}
	cfg := s.cfg.Get()
	window := q.Window
	if window == 0 {
		window = cfg.Detection.Window
	}
	anomalies, err := engine.DetectAdaptive(readings, engine.AdaptiveOptions{
		Window:     window,
		ZThreshold: cfg.Detection.ZThreshold,
		MinSamples: cfg.Detection.MinWindowSamples,
		Sensor:     q.Sensor,
	})
	if err != nil {
		if isBadQuery(err) {
			writeError(w, http.StatusBadRequest, err)
			return nil, false
		}
		s.serverError(w, "detect anomalies", err)
		return nil, false
	}
	return anomalies, true
}

func (s *Server) remember(anomalies []model.Anomaly) {
	if s.anoms == nil || len(anomalies) == 0 {
		return
	}
	s.anoms.Add(anomalies...)
	for _, a := range anomalies {
		observe.AddAnomalies(string(a.Kind), a.Rule, 1)
	}
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	if s.logger != nil {
		s.logger.Error(op, "err", err)
	}
	w.WriteHeader(http.StatusInternalServerError)
}

// parseQuery reads the shared query parameters. Malformed values answer 400
// before any data is touched.
func parseQuery(w http.ResponseWriter, r *http.Request) (metrics.Query, bool) {
	var q metrics.Query
	vals := r.URL.Query()
	if v := vals.Get("start"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("start must be RFC3339"))
			return q, false
		}
		ts = ts.UTC()
		q.Start = &ts
	}
	if v := vals.Get("end"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("end must be RFC3339"))
			return q, false
		}
		ts = ts.UTC()
		q.End = &ts
	}
	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		writeError(w, http.StatusBadRequest, errors.New("start must not be after end"))
		return q, false
	}
	if v := vals.Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("window must be a positive integer"))
			return q, false
		}
		q.Window = n
	}
	if v := vals.Get("users"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("users must be a positive integer"))
			return q, false
		}
		q.Users = n
	}
	if v := vals.Get("hours"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("hours must be a positive number"))
			return q, false
		}
		q.Hours = f
	}
	if v := vals.Get("sensor"); v != "" {
		sensor, err := model.ParseSensor(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return q, false
		}
		q.Sensor = sensor
	}
	return q, true
}

func parseSensorParam(w http.ResponseWriter, r *http.Request) (model.Sensor, bool) {
	v := r.URL.Query().Get("sensor")
	if v == "" {
		return "", true
	}
	sensor, err := model.ParseSensor(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return sensor, true
}

func isBadQuery(err error) bool {
	return errors.Is(err, engine.ErrBadWindow) ||
		errors.Is(err, engine.ErrUnknownSensor) ||
		errors.Is(err, engine.ErrInvalidRange)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
