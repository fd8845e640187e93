package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/response"
)

// errorCode maps service errors onto envelope codes.
func errorCode(err error) response.APIResponseCode {
	switch {
	case errors.Is(err, apperr.ErrInvalidPayload):
		return response.APIResponseCodeBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return response.APIResponseCodeNotFound
	case errors.Is(err, apperr.ErrLimitReached):
		return response.APIResponseCodeLimitReached
	case errors.Is(err, apperr.ErrPremiumRequired):
		return response.APIResponseCodePremiumRequired
	case errors.Is(err, apperr.ErrUpstreamUnavailable):
		return response.APIResponseCodeUpstream
	default:
		return response.APIResponseCodeError
	}
}

func writeError(c *gin.Context, err error) {
	code := errorCode(err)
	if code == response.APIResponseCodeError || code == response.APIResponseCodeUpstream {
		logctx.FromGin(c, zap.NewNop().Sugar()).Errorw("request_failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(http.StatusOK, response.ErrorT[any](code, err.Error()))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
}

func pathExternalID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("external_id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid external_id %q: %w", c.Param("external_id"), apperr.ErrInvalidPayload)
	}
	return id, nil
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
