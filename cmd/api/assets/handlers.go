package assets

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	app "github.com/mark3748/hwtrack-go/cmd/api/app"
	authpkg "github.com/mark3748/hwtrack-go/cmd/api/auth"
	"github.com/mark3748/hwtrack-go/cmd/api/events"
	"github.com/mark3748/hwtrack-go/cmd/api/ws"
)

// actorName resolves the audit identity for history entries from the
// authenticated user.
func actorName(c *gin.Context) string {
	v, ok := c.Get("user")
	if !ok {
		return "unknown"
	}
	u, ok := v.(authpkg.AuthUser)
	if !ok {
		return "unknown"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// respondError maps service errors onto the HTTP error envelope.
func respondError(c *gin.Context, err error) {
	var te *TransitionError
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		app.AbortError(c, http.StatusNotFound, "not_found", "asset not found", nil)
	case errors.Is(err, ErrConflict):
		app.AbortError(c, http.StatusConflict, "conflict", "asset was modified concurrently, re-read and retry", nil)
	case errors.Is(err, ErrDuplicateTag):
		app.AbortError(c, http.StatusConflict, "duplicate_tag", "asset tag already exists", nil)
	case errors.Is(err, ErrInvalidOperation):
		app.AbortError(c, http.StatusBadRequest, "invalid_operation", "only retired assets can be deleted", nil)
	case errors.As(err, &te):
		app.AbortError(c, http.StatusBadRequest, "transition_rejected", te.Error(), map[string]string{
			"from": string(te.From), "to": string(te.To),
		})
	case errors.As(err, &ve):
		app.AbortError(c, http.StatusBadRequest, "validation_failed", ve.Error(), ve.Fields)
	default:
		app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}

func bindingErrors(err error) map[string]string {
	errs := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			errs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return errs
}

// ListAssets handles GET /assets
func ListAssets(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filters AssetSearchFilters
		if err := c.ShouldBindQuery(&filters); err != nil {
			app.AbortError(c, http.StatusBadRequest, "bad_query", err.Error(), nil)
			return
		}
		result, err := NewService(a.DB).ListAssets(c.Request.Context(), filters)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// CreateAsset handles POST /assets
func CreateAsset(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAssetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			app.AbortError(c, http.StatusBadRequest, "bad_request", "invalid body", bindingErrors(err))
			return
		}
		asset, err := NewService(a.DB).CreateAsset(c.Request.Context(), req, actorName(c))
		if err != nil {
			respondError(c, err)
			return
		}
		events.Emit(c.Request.Context(), a.DB, asset.ID.String(), "asset_created", asset)
		ws.PublishEvent(c.Request.Context(), a.Q, ws.Event{Type: "asset_created", Data: asset})
		c.JSON(http.StatusCreated, asset)
	}
}

// GetAsset handles GET /assets/:id
func GetAsset(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			app.AbortError(c, http.StatusBadRequest, "bad_request", "invalid asset id", nil)
			return
		}
		asset, err := NewService(a.DB).GetAsset(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, asset)
	}
}

// UpdateAsset handles PATCH /assets/:id
func UpdateAsset(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			app.AbortError(c, http.StatusBadRequest, "bad_request", "invalid asset id", nil)
			return
		}
		var req UpdateAssetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			app.AbortError(c, http.StatusBadRequest, "bad_request", "invalid body", bindingErrors(err))
			return
		}
		// If-Match carries the version the client read, as an alternative to the
		// body field.
		if req.Version == nil {
			if im := strings.Trim(c.GetHeader("If-Match"), `W/" `); im != "" {
				if v, err := strconv.Atoi(im); err == nil {
					req.Version = &v
				}
			}
		}
		asset, err := NewService(a.DB).UpdateAsset(c.Request.Context(), id, req, actorName(c))
		if err != nil {
			respondError(c, err)
			return
		}
		events.Emit(c.Request.Context(), a.DB, asset.ID.String(), "asset_updated", asset)
		ws.PublishEvent(c.Request.Context(), a.Q, ws.Event{Type: "asset_updated", Data: asset})
		c.JSON(http.StatusOK, asset)
	}
}

// DeleteAsset handles DELETE /assets/:id
func DeleteAsset(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			app.AbortError(c, http.StatusBadRequest, "bad_request", "invalid asset id", nil)
			return
		}
		if err := NewService(a.DB).DeleteAsset(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		events.Emit(c.Request.Context(), a.DB, id.String(), "asset_deleted", gin.H{"id": id})
		ws.PublishEvent(c.Request.Context(), a.Q, ws.Event{Type: "asset_deleted", Data: gin.H{"id": id}})
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// GetAssetHistory handles GET /assets/:id/history
func GetAssetHistory(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			app.AbortError(c, http.StatusBadRequest, "bad_request", "invalid asset id", nil)
			return
		}
		entries, err := NewService(a.DB).History(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if entries == nil {
			entries = []HistoryEntry{}
		}
		c.JSON(http.StatusOK, entries)
	}
}

// ListTransitions handles GET /assets/transitions?from=Status. It exposes the
// rule table read-only so forms can offer only legal target statuses.
func ListTransitions(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		from := AssetStatus(c.Query("from"))
		if !from.Valid() {
			app.AbortError(c, http.StatusBadRequest, "bad_request", "unknown status", nil)
			return
		}
		targets := AllowedTargets(from)
		if targets == nil {
			targets = []AssetStatus{}
		}
		c.JSON(http.StatusOK, gin.H{"from": from, "allowed": targets})
	}
}
