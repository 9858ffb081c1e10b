package audit

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// HTTPRecorder records admin requests after they have been handled.
type HTTPRecorder struct {
	Service *Service
	Logger  zerolog.Logger
}

// HTTPConfig customises how the audit entry is produced for a route.
type HTTPConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
	MetadataFunc    func(*http.Request, int) map[string]any
}

// Middleware returns a chi middleware that records one audit entry per request.
// Failures to record are logged and never change the response.
func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r.Service == nil || !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, req)

			entry := Entry{
				Action:       cfg.Action,
				ResourceType: cfg.ResourceType,
				Status:       rec.Status(),
			}
			if userID, ok := common.UserID(req.Context()); ok {
				entry.ActorUserID = userID
			}
			if cfg.ResourceIDParam != "" {
				entry.ResourceID = chi.URLParam(req, cfg.ResourceIDParam)
			}
			if cfg.MetadataFunc != nil {
				if payload := cfg.MetadataFunc(req, entry.Status); payload != nil {
					if data, err := json.Marshal(payload); err == nil {
						entry.Metadata = data
					}
				}
			}

			if err := r.Service.Record(req.Context(), req, entry); err != nil {
				r.Logger.Warn().Err(err).Str("action", cfg.Action).Msg("audit record failed")
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
