package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/fieldsync/api/responses"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

// StatusSources are the read-only views the status endpoint reports.
type StatusSources struct {
	Online   func() bool
	Pending  func(ctx context.Context) (int64, error)
	DeviceID func(ctx context.Context) (string, error)
	UserID   func() (string, bool)
	// LoginURL is non-empty when the remote rejected the session and the
	// operator has to sign in again.
	LoginURL func() string
}

type statusResponse struct {
	Online   bool   `json:"online"`
	Pending  int64  `json:"pending"`
	DeviceID string `json:"deviceId"`
	UserID   string `json:"userId,omitempty"`
	LoginURL string `json:"loginUrl,omitempty"`
}

func Status(src StatusSources, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := src.Pending(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deviceID, err := src.DeviceID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := statusResponse{
			Online:   src.Online(),
			Pending:  pending,
			DeviceID: deviceID,
		}
		if src.UserID != nil {
			resp.UserID, _ = src.UserID()
		}
		if src.LoginURL != nil {
			resp.LoginURL = src.LoginURL()
		}
		responses.WriteSuccess(w, resp)
	}
}
