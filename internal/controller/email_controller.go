// internal/controller/email_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/roshaldsouza/Email-Scheduler/internal/errors"
	"github.com/roshaldsouza/Email-Scheduler/internal/model"
	"github.com/roshaldsouza/Email-Scheduler/internal/service"
)

type EmailController struct {
	Planner *service.Planner
	Logger  zerolog.Logger
}

// ScheduleEmails handles POST /emails/schedule.
func (c *EmailController) ScheduleEmails(w http.ResponseWriter, r *http.Request) {
	var req service.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"ok":      false,
			"message": "Invalid request body",
		})
		return
	}

	result, err := c.Planner.ScheduleCampaign(r.Context(), req)
	if err != nil {
		var verr *appErrors.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"ok":      false,
				"message": "Invalid request body",
				"errors":  verr.Fields,
			})
			return
		}
		c.Logger.Error().Err(err).Msg("schedule failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ok":      false,
			"message": "Failed to schedule emails",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":              true,
		"message":         "Emails scheduled",
		"campaign_id":     result.CampaignID,
		"scheduled_count": result.ScheduledCount,
		"failed":          result.Failed,
	})
}

// ListScheduled handles GET /emails/scheduled?user_email=...
func (c *EmailController) ListScheduled(w http.ResponseWriter, r *http.Request) {
	c.listFor(w, r, c.Planner.ListScheduled)
}

// ListSent handles GET /emails/sent?user_email=...
func (c *EmailController) ListSent(w http.ResponseWriter, r *http.Request) {
	c.listFor(w, r, c.Planner.ListSent)
}

func (c *EmailController) listFor(w http.ResponseWriter, r *http.Request, list func(string) ([]model.RecipientJobView, error)) {
	userEmail := r.URL.Query().Get("user_email")
	if userEmail == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"ok":      false,
			"message": "user_email is required",
		})
		return
	}

	data, err := list(userEmail)
	if err != nil {
		c.Logger.Error().Err(err).Str("user_email", userEmail).Msg("list failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ok":      false,
			"message": "Failed to fetch",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "data": data})
}

// GetCampaign handles GET /campaigns/{id}: the campaign plus per-status
// recipient counts.
func (c *EmailController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, stats, err := c.Planner.CampaignStats(id)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"ok":      false,
				"message": err.Error(),
			})
			return
		}
		c.Logger.Error().Err(err).Str("campaign_id", id).Msg("stats failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ok":      false,
			"message": "Failed to fetch campaign",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"campaign": campaign,
		"stats":    stats,
	})
}

// Health handles GET /health.
func (c *EmailController) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": "Backend running"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
