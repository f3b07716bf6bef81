package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/aweilerffp/marketing-machine-sub001/internal/dispatcher"
	"github.com/aweilerffp/marketing-machine-sub001/internal/gateway"
	"github.com/aweilerffp/marketing-machine-sub001/internal/lifecycle"
	"github.com/aweilerffp/marketing-machine-sub001/internal/timeslot"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/logging"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/middleware"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/models"
)

var (
	store  *lifecycle.Store
	engine *timeslot.Engine
	gw     *gateway.Gateway
	disp   *dispatcher.Dispatcher
	logger logging.Logger
)

// Init initializes the handlers with their collaborators
func Init(s *lifecycle.Store, e *timeslot.Engine, g *gateway.Gateway, d *dispatcher.Dispatcher, log logging.Logger) {
	store = s
	engine = e
	gw = g
	disp = d
	logger = log
}

// scheduleBody is the JSON body for SchedulePost.
type scheduleBody struct {
	CompanyID          string     `json:"company_id" binding:"required"`
	ActorID            string     `json:"actor_id" binding:"required"`
	PreferredTime      *time.Time `json:"preferred_time,omitempty"`
	UseSmartScheduling *bool      `json:"use_smart_scheduling,omitempty"`
}

// actorBody identifies the acting company/user for cancel and publish-now.
type actorBody struct {
	CompanyID string `json:"company_id" binding:"required"`
	ActorID   string `json:"actor_id" binding:"required"`
}

// SchedulePost transitions an approved post to scheduled at the optimal time
func SchedulePost(c middleware.Context) {
	var body scheduleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
		return
	}

	req := models.ScheduleRequest{
		PostID:             c.Param("id"),
		CompanyID:          body.CompanyID,
		ActorID:            body.ActorID,
		PreferredTime:      body.PreferredTime,
		UseSmartScheduling: true,
	}
	if body.UseSmartScheduling != nil {
		req.UseSmartScheduling = *body.UseSmartScheduling
	}

	result, err := store.Schedule(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CancelPost cancels a scheduled post
func CancelPost(c middleware.Context) {
	var body actorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
		return
	}

	message, err := store.Cancel(c.Request.Context(), c.Param("id"), body.CompanyID, body.ActorID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, middleware.H{"message": message})
}

// PublishNow expedites a post past its scheduled delay
func PublishNow(c middleware.Context) {
	var body actorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
		return
	}

	if err := store.PublishNow(c.Request.Context(), c.Param("id"), body.CompanyID, body.ActorID); err != nil {
		respondError(c, err)
		return
	}

	// Nudge the claim loop so the entry is picked up immediately.
	if disp != nil {
		disp.Wake()
	}

	c.JSON(http.StatusAccepted, middleware.H{"message": "post queued for immediate publish"})
}

// GetOptimalTime previews the heuristic engine's slot for a post without
// scheduling anything
func GetOptimalTime(c middleware.Context) {
	companyID := c.Query("company_id")
	if companyID == "" {
		c.JSON(http.StatusBadRequest, middleware.H{"error": "company_id is required"})
		return
	}

	var preferred *time.Time
	if raw := c.Query("preferred_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, middleware.H{"error": "preferred_time must be RFC3339"})
			return
		}
		preferred = &t
	}

	optimal := engine.ComputeOptimalTime(c.Request.Context(), companyID, c.Param("id"), preferred, true)
	c.JSON(http.StatusOK, middleware.H{"optimal_time": optimal})
}

// GetPost returns a post, including publish outcome fields for
// asynchronous failure inspection
func GetPost(c middleware.Context) {
	companyID := c.Query("company_id")
	if companyID == "" {
		c.JSON(http.StatusBadRequest, middleware.H{"error": "company_id is required"})
		return
	}

	post, err := gw.GetPost(c.Request.Context(), c.Param("id"), companyID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, post)
}

// DeletePost removes a post unless it is already published
func DeletePost(c middleware.Context) {
	companyID := c.Query("company_id")
	if companyID == "" {
		c.JSON(http.StatusBadRequest, middleware.H{"error": "company_id is required"})
		return
	}

	if err := store.Delete(c.Request.Context(), c.Param("id"), companyID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, middleware.H{"message": "post deleted"})
}

// respondError maps the typed error taxonomy onto HTTP statuses, passing
// messages through unchanged.
func respondError(c middleware.Context, err error) {
	var (
		invalidState *models.InvalidStateError
		notFound     *models.NotFoundError
		authErr      *models.AuthError
		publishErr   *models.PublishError
		storageErr   *models.StorageError
	)

	switch {
	case errors.As(err, &invalidState):
		c.JSON(http.StatusConflict, middleware.H{"error": invalidState.Message})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, middleware.H{"error": notFound.Error()})
	case errors.As(err, &authErr):
		c.JSON(http.StatusUnauthorized, middleware.H{"error": authErr.Message})
	case errors.As(err, &publishErr):
		c.JSON(http.StatusBadGateway, middleware.H{"error": publishErr.Message})
	case errors.As(err, &storageErr):
		logger.WithError(err).Error("Storage failure")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "internal server error"})
	default:
		logger.WithError(err).Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "internal server error"})
	}
}
