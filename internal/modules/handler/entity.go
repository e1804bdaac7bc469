package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scidatahub/containerdb/internal/middleware"
	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/modules/serializer"
	"github.com/scidatahub/containerdb/internal/modules/service"
)

// EntityHandler serves the read only side entity listings. Visibility
// follows the datasets the user can see.
type EntityHandler struct {
	svc service.EntityService
}

func NewEntityHandler(svc service.EntityService) *EntityHandler {
	return &EntityHandler{svc: svc}
}

func (h *EntityHandler) ListContainerTypes(c *gin.Context) {
	items, err := h.svc.ContainerTypes(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Code: http.StatusOK, Data: serializer.BuildContainerTypes(items)})
}

func (h *EntityHandler) ListSoftware(c *gin.Context) {
	items, err := h.svc.Software(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Code: http.StatusOK, Data: serializer.BuildSoftware(items)})
}

func (h *EntityHandler) ListKeywords(c *gin.Context) {
	items, err := h.svc.Keywords(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Code: http.StatusOK, Data: serializer.BuildKeywords(items)})
}

func (h *EntityHandler) ListFiles(c *gin.Context) {
	items, err := h.svc.Files(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Code: http.StatusOK, Data: serializer.BuildFiles(items)})
}

func (h *EntityHandler) RetrieveContainerType(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	ct, err := h.svc.ContainerType(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	if ct == nil {
		entityNotFound(c)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Code: http.StatusOK, Data: serializer.BuildContainerTypes([]model.ContainerType{*ct})[0]})
}

func (h *EntityHandler) RetrieveSoftware(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	sw, err := h.svc.SoftwareByID(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	if sw == nil {
		entityNotFound(c)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Code: http.StatusOK, Data: serializer.BuildSoftware([]model.Software{*sw})[0]})
}

func (h *EntityHandler) RetrieveKeyword(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	kw, err := h.svc.Keyword(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	if kw == nil {
		entityNotFound(c)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Code: http.StatusOK, Data: serializer.BuildKeywords([]model.Keyword{*kw})[0]})
}

func (h *EntityHandler) RetrieveFile(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	f, err := h.svc.File(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	if f == nil {
		entityNotFound(c)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Code: http.StatusOK, Data: serializer.BuildFiles([]model.File{*f})[0]})
}

func entityID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		entityNotFound(c)
		return uuid.Nil, false
	}
	return id, true
}

func entityNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, serializer.Response{Code: http.StatusNotFound, Msg: "Not found."})
}
