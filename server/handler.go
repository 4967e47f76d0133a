package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/trevex/tenantscope"
)

// The identity headers are set by the authenticating gateway in front of the
// server and are trusted as is.
const (
	RoleHeader   = "X-Identity-Role"
	TenantHeader = "X-Identity-Tenant"
	// TenantParam is the query parameter elevated callers select a tenant with.
	TenantParam = "tenant"

	maxBodyBytes = 1 << 20
)

type handler struct {
	log     *slog.Logger
	storage tenantscope.Storage
	policy  *tenantscope.Policy
	metrics *Metrics
	opts    []tenantscope.Option
}

// NewHandler exposes every operation of every entity as POST /v1/{entity}/{op}.
// Each request gets its own restricted client, the storage is never reached
// without one.
func NewHandler(log *slog.Logger, storage tenantscope.Storage, policy *tenantscope.Policy, metrics *Metrics, opts ...tenantscope.Option) http.Handler {
	h := &handler{
		log:     log,
		storage: storage,
		policy:  policy,
		metrics: metrics,
		opts:    opts,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/v1/{entity}/{op}", h.execute)
	return r
}

func (h *handler) execute(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	entity, opName := chi.URLParam(r, "entity"), chi.URLParam(r, "op")

	status, body := h.serve(w, r, entity, opName)

	// Labels come from the path, only known names become series.
	if _, err := tenantscope.ParseOp(opName); err != nil {
		opName = "invalid"
	}
	if !h.known(entity) {
		entity = "unknown"
	}
	h.metrics.observe(entity, opName, status, start)
	writeJSON(w, status, body)
}

func (h *handler) serve(w http.ResponseWriter, r *http.Request, entity, opName string) (int, any) {
	identity, err := identityFromHeaders(r.Header)
	if err != nil {
		return http.StatusUnauthorized, errorBody{Error: err.Error()}
	}
	op, err := tenantscope.ParseOp(opName)
	if err != nil {
		return h.fail(r, err)
	}
	client, err := tenantscope.NewRestrictedClient(h.storage, h.policy, identity, tenantscope.TenantID(r.URL.Query().Get(TenantParam)), h.opts...)
	if err != nil {
		return h.fail(r, err)
	}

	req, err := decodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return h.fail(r, err)
	}
	req.Op, req.Entity = op, entity

	res, err := client.Execute(r.Context(), req)
	if err != nil {
		return h.fail(r, err)
	}
	records := res.Records
	if records == nil {
		records = []tenantscope.Record{}
	}
	return http.StatusOK, responseBody{Records: records, Count: res.Count}
}

func (h *handler) known(entity string) bool {
	if _, ok := h.policy.Lookup(entity); ok {
		return true
	}
	_, ok := h.policy.Schema()[entity]
	return ok
}

func (h *handler) fail(r *http.Request, err error) (int, any) {
	status := statusOf(err)
	switch status {
	case http.StatusForbidden:
		h.metrics.denials.Inc()
		h.log.Warn("tenancy denied", "path", r.URL.Path, "err", err)
	case http.StatusInternalServerError:
		h.log.Error("request failed", "path", r.URL.Path, "requestId", middleware.GetReqID(r.Context()), "err", err)
		return status, errorBody{Error: http.StatusText(status)}
	}
	return status, errorBody{Error: err.Error()}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, tenantscope.ErrNoTenantContext):
		return http.StatusForbidden
	case errors.Is(err, tenantscope.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tenantscope.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, tenantscope.ErrUnknownOp),
		errors.Is(err, tenantscope.ErrUnknownEntity),
		errors.Is(err, tenantscope.ErrUnknownField),
		errors.Is(err, tenantscope.ErrUnlistedEntity),
		errors.Is(err, tenantscope.ErrInvalidValue),
		errors.Is(err, tenantscope.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func identityFromHeaders(header http.Header) (tenantscope.Identity, error) {
	role, err := tenantscope.ParseRole(header.Get(RoleHeader))
	if err != nil {
		return tenantscope.Identity{}, err
	}
	return tenantscope.Identity{
		Role:       role,
		HomeTenant: tenantscope.TenantID(header.Get(TenantHeader)),
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
