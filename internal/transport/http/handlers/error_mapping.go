package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCase binds one sentinel error to the status and message the API
// returns for it. Handlers declare a slice of these per endpoint instead of
// repeating errors.Is ladders.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError writes the response for the first case whose
// sentinel matches err. Unmatched errors get the fallback, so wrapped
// internal detail never reaches a response body. A nil err answers 200 with
// no body.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	if match, ok := matchErrorCase(err, cases); ok {
		c.JSON(match.Status, NewErrorResponse(c, match.Message))
		return
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

func matchErrorCase(err error, cases []ErrorCase) (ErrorCase, bool) {
	for _, candidate := range cases {
		if candidate.Err == nil {
			continue
		}
		if errors.Is(err, candidate.Err) {
			return candidate, true
		}
	}
	return ErrorCase{}, false
}
