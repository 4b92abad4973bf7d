package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/orthanc-go/orthanc/internal/apierror"
	"github.com/orthanc-go/orthanc/internal/database"
	"github.com/orthanc-go/orthanc/internal/storage"
	"github.com/orthanc-go/orthanc/pkg/httpoutput"
)

// HealthHandler answers GET /health and GET /ready: the former reports
// the database connection's state for monitoring, the latter gates load
// balancer traffic on both the database and the storage root being
// usable right now.
type HealthHandler struct {
	storage storage.Store
	log     zerolog.Logger
}

func NewHealthHandler(store storage.Store, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{storage: store, log: log}
}

type healthResponse struct {
	Status    string            `json:"Status"`
	Timestamp time.Time         `json:"Timestamp"`
	Services  map[string]string `json:"Services"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	out := httpoutput.New(w, h.log, keepAlive(r))
	defer out.Close()

	resp := healthResponse{Status: "healthy", Timestamp: time.Now(), Services: map[string]string{}}

	if err := pingDatabase(); err != nil {
		resp.Services["database"] = "unhealthy: " + err.Error()
		resp.Status = "degraded"
	} else {
		resp.Services["database"] = "healthy"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	if err := out.SendJSON(status, resp); err != nil {
		h.log.Error().Err(err).Msg("failed to write health response")
	}
}

// Ready answers GET /ready, the stricter probe load balancers use to
// decide whether to send traffic: both the database and the storage root
// must be reachable right now.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	out := httpoutput.New(w, h.log, keepAlive(r))
	defer out.Close()

	if err := pingDatabase(); err != nil {
		writeError(out, r, apierror.New(apierror.Unavailable, "database not ready", err), h.log)
		return
	}

	if probe, ok := h.storage.(interface{ Writable() error }); ok {
		if err := probe.Writable(); err != nil {
			writeError(out, r, apierror.New(apierror.Unavailable, "storage root not writable", err), h.log)
			return
		}
	}

	if err := out.SendBody([]byte("OK")); err != nil {
		h.log.Error().Err(err).Msg("failed to write ready response")
	}
}

func pingDatabase() error {
	sqlDB, err := database.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
