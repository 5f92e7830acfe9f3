package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
	"github.com/platinummonkey/heartbeat/pkg/httputil"
	"github.com/platinummonkey/heartbeat/pkg/ingest"
)

// IngestHandlers serves the heartbeat endpoint.
type IngestHandlers struct {
	ingester Ingester
	wrap     httputil.Middleware
}

// NewIngestHandlers creates the handlers. wrap, when not nil, decorates the
// endpoint after CORS (rate limiting).
func NewIngestHandlers(ingester Ingester, wrap httputil.Middleware) *IngestHandlers {
	return &IngestHandlers{ingester: ingester, wrap: wrap}
}

// RegisterRoutes registers the heartbeat route
func (h *IngestHandlers) RegisterRoutes(r *mux.Router) {
	var handler http.Handler = http.HandlerFunc(h.ingest)
	if h.wrap != nil {
		handler = h.wrap(handler)
	}
	handler = httputil.CORSMiddleware([]string{"*"})(handler)

	r.Handle("/p", handler).Methods(http.MethodGet, http.MethodOptions)
}

// ingest handles GET /p
// Query params:
//   - a: app id (required)
//   - d: device hash (required)
//   - e: environment, dev or prod (default prod)
//   - v: app version (default unknown)
func (h *IngestHandlers) ingest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sig := heartbeat.Signal{
		AppID:       q.Get("a"),
		DeviceHash:  heartbeat.DeviceHash(q.Get("d")),
		Environment: heartbeat.Environment(q.Get("e")),
		AppVersion:  q.Get("v"),
	}

	_, err := h.ingester.Ingest(r.Context(), sig)
	switch {
	case errors.Is(err, ingest.ErrInvalidPayload):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: ingest.ErrInvalidPayload.Error()})
	case err != nil:
		// the cause is logged by the ingester and never echoed to clients
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, ingest.ErrAppendFailed.Error())
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
