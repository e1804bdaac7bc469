package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/modules/serializer"
	"github.com/scidatahub/containerdb/internal/pkg/mderr"
)

// respondError maps a structured error onto the wire: the status comes
// from the error, the payload is attached for the redirect and conflict
// responses that reference an existing record.
func respondError(c *gin.Context, err error) {
	e := mderr.Classify(err)
	var data any
	switch v := e.Dataset.(type) {
	case nil:
	case *model.Dataset:
		data = serializer.BuildDataset(v)
	case *model.DatasetPlaceholder:
		data = serializer.DatasetRef{UUID: v.ID.String()}
	default:
		data = v
	}
	c.JSON(e.Status, serializer.Response{Code: e.Status, Data: data, Msg: e.Message})
}
