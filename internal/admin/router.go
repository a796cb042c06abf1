package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcoot/skirmish/internal/dependencies/clock"
	"github.com/mcoot/skirmish/internal/middleware"
)

// RouterConfig holds configuration for the admin router
type RouterConfig struct {
	Logger   *slog.Logger
	Clock    clock.Clock
	Service  *Service
	Commands *Commands
	// Gatherer backs GET /metrics; nil leaves the endpoint unregistered
	Gatherer prometheus.Gatherer
}

type handler struct {
	service  *Service
	commands *Commands
}

// NewRouter creates the admin HTTP router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	h := &handler{service: cfg.Service, commands: cfg.Commands}

	recovery := middleware.Recovery(cfg.Logger, panicHandler)
	logging := middleware.Logging(cfg.Logger, cfg.Clock)

	api := r.PathPrefix("/admin/v1").Subrouter()
	api.Use(recovery)
	api.Use(logging)

	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	api.HandleFunc("/status", h.status).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", h.leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/commands", h.listCommands).Methods(http.MethodGet)
	api.HandleFunc("/commands", h.execute).Methods(http.MethodPost)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: APIError{CodeNotFound, "Not found"}})
	})

	return r
}

func panicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	WriteError(w, NewInternalError())
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.service.Status())
}

func (h *handler) leaderboard(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.service.Leaderboard())
}

// CommandInfo describes one registered command
type CommandInfo struct {
	Name  string `json:"name"`
	Usage string `json:"usage"`
}

func (h *handler) listCommands(w http.ResponseWriter, _ *http.Request) {
	names := h.commands.Names()
	infos := make([]CommandInfo, 0, len(names))
	for _, name := range names {
		usage, _ := h.commands.Usage(name)
		infos = append(infos, CommandInfo{Name: name, Usage: usage})
	}
	WriteJSON(w, http.StatusOK, infos)
}

func (h *handler) execute(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("Invalid request body"))
		return
	}
	if req.Command == "" {
		WriteError(w, NewInvalidRequestError("command is required"))
		return
	}

	res, err := h.commands.Execute(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
