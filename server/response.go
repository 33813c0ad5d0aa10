package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/liveview/errors"
)

// DataResponse is the success envelope.
type DataResponse struct {
	Data any   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta carries the page parameters of a windowed response.
type Meta struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	Total    int  `json:"total"`
	Pages    int  `json:"pages"`
	Clamped  bool `json:"clamped,omitempty"`
	Paused   bool `json:"paused,omitempty"`
}

// RespondWithError answers with the status and body of an AppError, or a
// generic 500 for any other error.
func RespondWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	if appErr, ok := errors.AsAppError(err); ok {
		c.JSON(appErr.Status(), appErr.ToResponse())
		return
	}
	c.JSON(http.StatusInternalServerError, errors.Internal(err).ToResponse())
}

// RespondOK sends 200 wrapping data.
func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, DataResponse{Data: data})
}

// RespondOKWithMeta sends 200 with data and page metadata.
func RespondOKWithMeta(c *gin.Context, data any, meta *Meta) {
	c.JSON(http.StatusOK, DataResponse{Data: data, Meta: meta})
}

// RespondAccepted sends 202; control requests are applied asynchronously.
func RespondAccepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, DataResponse{Data: data})
}
