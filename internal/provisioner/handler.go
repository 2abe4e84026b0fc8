package provisioner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/constant"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/logger"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/middleware"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/openrouter"
)

// KeyCreator performs the upstream provisioning call.
type KeyCreator interface {
	CreateKey(ctx context.Context, req openrouter.KeyRequest) (*openrouter.KeyResponse, error)
}

// Handler serves the key provisioning relay.
type Handler struct {
	logger  *logger.Logger
	creator KeyCreator
	now     func() time.Time
}

// NewHandler returns a Handler that issues keys through creator.
func NewHandler(log *logger.Logger, creator KeyCreator) *Handler {
	return &Handler{
		logger:  log,
		creator: creator,
		now:     time.Now,
	}
}

// Register mounts the relay on router. POST / is the only route; everything
// else, including other methods on /, is answered with NotFound.
func Register(router *gin.Engine, h *Handler) {
	router.POST("/", h.CreateKey)
	router.NoRoute(NotFound)
	router.NoMethod(NotFound)
}

// NotFound answers unknown paths and methods.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, RouteError{Error: "Not found"})
}

// CreateKey handles POST /.
//
// The body is optional. A key is requested upstream with a fixed 24h
// lifetime and the outcome is relayed back: the upstream status and error
// body on rejection, 502 when the upstream could not be reached and 500 for
// anything else.
func (h *Handler) CreateKey(c *gin.Context) {
	log := h.logger.WithFields("request_id", middleware.GetRequestID(c))

	req, err := parseRequest(c)
	if err != nil {
		log.Debug("Rejecting request body", "error", err)
		c.JSON(http.StatusBadRequest, RouteError{Error: "Invalid JSON"})
		return
	}

	now := h.now().UTC()
	keyReq := openrouter.KeyRequest{
		Name:      constant.DefaultNamePrefix + now.Format(constant.DefaultNameLayout),
		ExpiresAt: now.Add(constant.KeyLifetime).Format(constant.ExpiresAtLayout),
		Limit:     req.Limit,
	}
	if req.Name != nil {
		keyReq.Name = *req.Name
	}

	resp, err := h.creator.CreateKey(c.Request.Context(), keyReq)
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	if resp.Key != nil {
		log.Info("Provisioned API key",
			"name", keyReq.Name,
			"expires_at", keyReq.ExpiresAt,
		)
	} else {
		log.Warn("Relayed OpenRouter response without a key",
			"name", keyReq.Name,
			"expires_at", keyReq.ExpiresAt,
		)
	}

	c.JSON(http.StatusOK, Response{
		Success:      true,
		APIKey:       resp.Key,
		Name:         keyReq.Name,
		ExpiresAt:    keyReq.ExpiresAt,
		FullResponse: resp.Body,
	})
}

func (h *Handler) respondError(c *gin.Context, log *logger.Logger, err error) {
	var apiErr *openrouter.APIError
	var connErr *openrouter.ConnectionError

	switch {
	case errors.As(err, &apiErr):
		log.Warn("OpenRouter rejected key creation", "status", apiErr.StatusCode)
		c.JSON(apiErr.StatusCode, UpstreamErrorResponse{
			Success: false,
			Error:   apiErr.Error(),
			Details: apiErr.Details,
		})
	case errors.As(err, &connErr):
		log.Error("Failed to reach OpenRouter", "reason", connErr.Reason)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Success: false,
			Error:   connErr.Error(),
		})
	default:
		log.Error("Key provisioning failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Success: false,
			Error:   "Internal error: " + err.Error(),
		})
	}
}

// parseRequest decodes the optional body. An empty body yields all defaults;
// anything else must be a JSON object with correctly typed fields.
func parseRequest(c *gin.Context) (Request, error) {
	var req Request
	if c.Request.Body == nil {
		return req, nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, constant.MaxRequestBodyBytes))
	if err != nil {
		return req, err
	}
	if len(body) == 0 {
		return req, nil
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, err
	}
	return req, nil
}
