package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/commyio/commy/internal/logger"
	"github.com/commyio/commy/pkg/manager"
	"github.com/commyio/commy/pkg/mesh"
	"github.com/commyio/commy/pkg/transport"
)

func newRouter(coordinator *mesh.MeshCoordinator, mgr *manager.SharedFileManager, router *transport.Router, authSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	meshH := &meshHandler{coordinator: coordinator}
	files := &fileHandler{mgr: mgr, router: router}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/services", func(r chi.Router) {
			r.Post("/", meshH.register)
			r.Get("/", meshH.discover)
			r.Delete("/{id}", meshH.deregister)
			r.Post("/{id}/heartbeat", meshH.heartbeat)
		})
		r.Post("/route", meshH.route)
		r.Post("/nodes/{id}/deploy", meshH.deploy)
		r.Post("/deployments", meshH.deploySelect)

		r.Route("/files", func(r chi.Router) {
			r.Use(bearerAuth(authSecret))
			r.Post("/", files.request)
			r.Delete("/{id}", files.disconnect)
			r.Post("/{id}/io", files.execute)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("api request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String())
	})
}

// bearerAuth validates the Authorization header against secret, reusing
// manager's JWT verdict logic so file requests and the manager's own
// RequestFile enforce the same token.
func bearerAuth(secret string) func(http.Handler) http.Handler {
	var provider manager.AuthProvider
	if secret == "" {
		provider = &manager.MockAuthProvider{Verdict: manager.AuthAccepted}
	} else {
		provider = manager.NewJWTAuthProvider([]byte(secret))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("Authorization")
			if err := manager.ValidateToken(r.Context(), provider, token); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, key))
}

type meshHandler struct {
	coordinator *mesh.MeshCoordinator
}

func (h *meshHandler) register(w http.ResponseWriter, r *http.Request) {
	var reg mesh.ServiceRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := h.coordinator.RegisterService(r.Context(), reg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"service_id": id.String()})
}

func (h *meshHandler) discover(w http.ResponseWriter, r *http.Request) {
	q := mesh.DiscoveryQuery{NamePattern: r.URL.Query().Get("name")}
	result := h.coordinator.Registry.Discover(r.Context(), q)
	writeJSON(w, http.StatusOK, result)
}

func (h *meshHandler) deregister(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.coordinator.DeregisterService(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *meshHandler) heartbeat(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.coordinator.Registry.Heartbeat(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *meshHandler) route(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query       mesh.DiscoveryQuery `json:"query"`
		HashContext string              `json:"hash_context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.coordinator.RouteRequest(r.Context(), body.Query, body.HashContext)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *meshHandler) deploy(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var spec mesh.DeploymentSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	spec.NodeId = nodeID

	id, err := h.coordinator.DeployService(r.Context(), spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"service_id": id.String()})
}

// deploySelect deploys a service without a caller-specified target node:
// the coordinator selects the placement via its resource/constraint/
// preferred-node algorithm.
func (h *meshHandler) deploySelect(w http.ResponseWriter, r *http.Request) {
	var spec mesh.DeploymentSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	spec.NodeId = uuid.Nil

	id, err := h.coordinator.DeployService(r.Context(), spec)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"service_id": id.String()})
}

type fileHandler struct {
	mgr    *manager.SharedFileManager
	router *transport.Router
}

func (h *fileHandler) request(w http.ResponseWriter, r *http.Request) {
	var req manager.SharedFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := h.mgr.RequestFile(r.Context(), req, r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *fileHandler) execute(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	info, ok := h.mgr.Lookup(manager.FileId(id))
	if !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	var body struct {
		Kind       string `json:"kind"`
		Offset     int64  `json:"offset"`
		Data       []byte `json:"data"`
		Length     int64  `json:"length"`
		Preference string `json:"preference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	op := transport.Operation{
		Kind:   transport.ParseOperationKind(body.Kind),
		Path:   info.Path,
		Offset: body.Offset,
		Data:   body.Data,
		Length: body.Length,
	}

	result, err := h.router.ExecuteRequest(r.Context(), op, transport.ParsePreference(body.Preference), nil)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *fileHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.mgr.DisconnectFile(r.Context(), manager.FileId(id)); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
