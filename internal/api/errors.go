package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/apperror"
)

// respondError writes the JSON error body for err. Field details are included
// for validation failures.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	status := apperror.HTTPStatus(err)
	body := gin.H{"error": apperror.PublicMessage(err)}

	var appErr *apperror.Error
	if errors.As(err, &appErr) && len(appErr.Fields) > 0 {
		body["details"] = appErr.Fields
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	}

	c.AbortWithStatusJSON(status, body)
}

// badRequest aborts with a plain 400 message
func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}

// pageParams reads limit and offset query parameters. Missing values are
// returned as zero and left to the service defaults.
func pageParams(c *gin.Context) (limit, offset int, ok bool) {
	var err error
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			badRequest(c, "limit must be an integer")
			return 0, 0, false
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			badRequest(c, "offset must be an integer")
			return 0, 0, false
		}
	}
	return limit, offset, true
}
