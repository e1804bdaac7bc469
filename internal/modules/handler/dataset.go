package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scidatahub/containerdb/internal/infra/cache"
	"github.com/scidatahub/containerdb/internal/middleware"
	"github.com/scidatahub/containerdb/internal/modules/repo"
	"github.com/scidatahub/containerdb/internal/modules/serializer"
	"github.com/scidatahub/containerdb/internal/modules/service"
)

type DatasetHandler struct {
	ingest   service.IngestService
	datasets service.DatasetService
	cache    *cache.DatasetCache
}

func NewDatasetHandler(ingest service.IngestService, datasets service.DatasetService, dsCache *cache.DatasetCache) *DatasetHandler {
	return &DatasetHandler{ingest: ingest, datasets: datasets, cache: dsCache}
}

// Upload ingests a container archive posted as multipart form data under
// the "uploadfile" field.
func (h *DatasetHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("uploadfile")
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("No data file found in your request!", err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	user := middleware.CurrentUser(c)
	ds, err := h.ingest.Ingest(c.Request.Context(), data, user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, serializer.Response{Code: http.StatusCreated, Data: serializer.BuildDataset(ds)})
}

type listDatasetsReq struct {
	Title  string `form:"title"`
	Author string `form:"author"`
	ID     string `form:"id"`
}

func (h *DatasetHandler) List(c *gin.Context) {
	var req listDatasetsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	user := middleware.CurrentUser(c)
	items, err := h.datasets.List(c.Request.Context(), user, repo.ListFilter{
		Title:  req.Title,
		Author: req.Author,
		ID:     req.ID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Code: http.StatusOK, Data: serializer.BuildDatasetList(items)})
}

func (h *DatasetHandler) Retrieve(c *gin.Context) {
	h.retrieve(c, true)
}

func (h *DatasetHandler) RetrieveNoRedirect(c *gin.Context) {
	h.retrieve(c, false)
}

func (h *DatasetHandler) retrieve(c *gin.Context, redirect bool) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user := middleware.CurrentUser(c)

	if redirect && user != nil {
		if raw := h.cache.Get(ctx, user.ID, id); raw != nil {
			var payload serializer.Dataset
			if err := json.Unmarshal(raw, &payload); err == nil {
				c.JSON(http.StatusOK, serializer.Response{Code: http.StatusOK, Data: payload})
				return
			}
		}
	}

	detail, status, err := h.datasets.Retrieve(ctx, user, id, redirect)
	if err != nil {
		respondError(c, err)
		return
	}
	payload := serializer.BuildDatasetDetail(detail)
	if redirect && status == http.StatusOK && user != nil {
		if raw, err := json.Marshal(payload); err == nil {
			h.cache.Set(ctx, user.ID, id, raw)
		}
	}
	c.JSON(status, serializer.Response{Code: status, Data: payload})
}

func (h *DatasetHandler) Download(c *gin.Context) {
	h.download(c, true)
}

func (h *DatasetHandler) DownloadNoRedirect(c *gin.Context) {
	h.download(c, false)
}

func (h *DatasetHandler) download(c *gin.Context, redirect bool) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	user := middleware.CurrentUser(c)
	rc, status, err := h.datasets.Download(c.Request.Context(), user, id, redirect)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()
	c.Status(status)
	c.Header("Content-Type", "application/octet-stream")
	_, _ = io.Copy(c.Writer, rc)
}

func (h *DatasetHandler) Patch(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	user := middleware.CurrentUser(c)
	problems, err := h.datasets.Patch(c.Request.Context(), user, id, fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Code: http.StatusOK, Data: problems})
}

// pathID parses the :id route parameter. Invalid identifiers read as 404
// rather than 400: the resource addressed by a malformed identifier can
// never exist.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, serializer.Response{
			Code: http.StatusNotFound,
			Msg:  "No DataSet with UUID=" + c.Param("id") + " found!",
		})
		return uuid.Nil, false
	}
	return id, true
}
