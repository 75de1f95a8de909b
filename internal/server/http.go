package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	pmath "PayRunway/internal/math"
	"PayRunway/internal/observability"
	"PayRunway/internal/query"
)

const maxBodyBytes = 1 << 20

// HTTPDeps are what the HTTP surface serves from.
type HTTPDeps struct {
	Query    *query.QueryService
	Health   *observability.HealthChecker
	Gatherer prometheus.Gatherer
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
}

type handler func(r *http.Request, params map[string]string) (any, error)

// NewHTTPHandler builds the JSON API on a grpc-gateway ServeMux and mounts
// health and metrics next to it.
func NewHTTPHandler(deps HTTPDeps) (http.Handler, error) {
	api := &httpAPI{qs: deps.Query, metrics: deps.Metrics, logger: deps.Logger}
	gw := runtime.NewServeMux()

	routes := []struct {
		method, pattern, endpoint string
		h                         handler
	}{
		{http.MethodGet, "/v1/accounts/{address}/runway", "runway", api.runway},
		{http.MethodPost, "/v1/accounts/{address}/funding-plan", "funding_plan", api.plan},
		{http.MethodPost, "/v1/accounts/{address}/funding", "funding", api.execute},
		{http.MethodGet, "/v1/accounts/{address}/upload-check", "upload_check", api.uploadCheck},
		{http.MethodGet, "/v1/accounts/{address}/max-upload", "max_upload", api.maxUpload},
		{http.MethodGet, "/v1/accounts/{address}/executions", "executions", api.executions},
		{http.MethodGet, "/v1/capacity", "capacity", api.capacity},
		{http.MethodPost, "/v1/allowances", "allowances", api.allowances},
	}
	for _, rt := range routes {
		if err := gw.HandlePath(rt.method, rt.pattern, api.wrap(rt.endpoint, rt.h)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}

	mux := http.NewServeMux()
	if deps.Health != nil {
		mux.HandleFunc("/healthz", deps.Health.LivenessHandler)
		mux.HandleFunc("/readyz", deps.Health.ReadinessHandler)
	}
	if deps.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", gw)
	return mux, nil
}

// HTTPServer runs the HTTP API until its context is done.
type HTTPServer struct {
	srv    *http.Server
	logger zerolog.Logger
}

func NewHTTPServer(addr string, h http.Handler, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until ctx is done (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type httpAPI struct {
	qs      *query.QueryService
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func (a *httpAPI) wrap(endpoint string, h handler) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		var resp any
		err := a.qs.Timed(endpoint, func() error {
			var err error
			resp, err = h(r, params)
			return err
		})
		if err != nil {
			a.writeError(w, endpoint, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (a *httpAPI) writeError(w http.ResponseWriter, endpoint string, err error) {
	code := codeFor(err)
	if a.metrics != nil {
		a.metrics.QueryErrors.WithLabelValues(endpoint, code.String()).Inc()
	}
	httpStatus := runtime.HTTPStatusFromCode(code)
	if httpStatus >= 500 {
		a.logger.Error().Err(err).Str("endpoint", endpoint).Msg("request failed")
	}
	writeJSON(w, httpStatus, map[string]string{
		"error": err.Error(),
		"code":  code.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("empty request body: %w", pmath.ErrInvalidArgument)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, pmath.ErrInvalidArgument)
	}
	return nil
}

// ============================================================================
// Handlers
// ============================================================================

func (a *httpAPI) runway(r *http.Request, params map[string]string) (any, error) {
	addr, err := query.ParseAddress(params["address"])
	if err != nil {
		return nil, err
	}
	return a.qs.GetRunway(r.Context(), addr)
}

func (a *httpAPI) plan(r *http.Request, params map[string]string) (any, error) {
	addr, err := query.ParseAddress(params["address"])
	if err != nil {
		return nil, err
	}
	var req query.FundingRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	opts, err := req.ToOptions()
	if err != nil {
		return nil, err
	}
	return a.qs.PlanFunding(r.Context(), addr, opts)
}

func (a *httpAPI) execute(r *http.Request, params map[string]string) (any, error) {
	addr, err := query.ParseAddress(params["address"])
	if err != nil {
		return nil, err
	}
	var req query.FundingRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	opts, err := req.ToOptions()
	if err != nil {
		return nil, err
	}
	return a.qs.ExecuteFundingOnce(r.Context(), addr, opts, r.Header.Get("Idempotency-Key"))
}

func (a *httpAPI) uploadCheck(r *http.Request, params map[string]string) (any, error) {
	addr, err := query.ParseAddress(params["address"])
	if err != nil {
		return nil, err
	}
	size, err := pmath.ParseSize(r.URL.Query().Get("size"))
	if err != nil {
		return nil, err
	}
	return a.qs.CheckUpload(r.Context(), addr, size)
}

func (a *httpAPI) maxUpload(r *http.Request, params map[string]string) (any, error) {
	addr, err := query.ParseAddress(params["address"])
	if err != nil {
		return nil, err
	}
	return a.qs.MaxUpload(r.Context(), addr)
}

func (a *httpAPI) executions(r *http.Request, params map[string]string) (any, error) {
	addr, err := query.ParseAddress(params["address"])
	if err != nil {
		return nil, err
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit <= 0 {
			return nil, fmt.Errorf("limit %q: %w", s, pmath.ErrInvalidArgument)
		}
	}
	return a.qs.ListExecutions(r.Context(), addr, limit)
}

func (a *httpAPI) capacity(r *http.Request, _ map[string]string) (any, error) {
	q := r.URL.Query()
	amount, err := pmath.ParseAmount(q.Get("amount"))
	if err != nil {
		return nil, err
	}
	var days float64
	if s := q.Get("days"); s != "" {
		if days, err = strconv.ParseFloat(s, 64); err != nil || days < 0 {
			return nil, fmt.Errorf("days %q: %w", s, pmath.ErrInvalidArgument)
		}
	}
	return a.qs.GetCapacity(r.Context(), amount, days)
}

func (a *httpAPI) allowances(r *http.Request, _ map[string]string) (any, error) {
	var req query.AllowanceRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	return a.qs.SetAllowances(r.Context(), req.CapacityTiBPerMonth)
}
