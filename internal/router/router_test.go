package router

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/scidatahub/containerdb/internal/config"
	"github.com/scidatahub/containerdb/internal/infra/blob"
	"github.com/scidatahub/containerdb/internal/infra/cache"
	"github.com/scidatahub/containerdb/internal/modules/handler"
	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/modules/repo"
	"github.com/scidatahub/containerdb/internal/modules/service"
	"github.com/scidatahub/containerdb/internal/pkg/apikey"
	"github.com/scidatahub/containerdb/internal/pkg/schema"
)

const (
	testPepper = "test-pepper"
	testSecret = "s3cr3t"
	testPrefix = "sdc_"
)

type testServer struct {
	db     *gorm.DB
	router *gin.Engine
	user   *model.User
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Group{}, &model.ContainerType{}, &model.Software{},
		&model.Keyword{}, &model.File{}, &model.Dataset{}, &model.DatasetPlaceholder{},
		&model.AccessGrant{},
	))

	user := &model.User{
		ID:         uuid.New(),
		Username:   "jane",
		APIKeyHMAC: apikey.HMAC256Hex(testPepper, testSecret),
	}
	require.NoError(t, db.Create(user).Error)

	cfg := &config.Config{}
	cfg.Auth.SecretPepper = testPepper
	cfg.Auth.TokenPrefix = testPrefix

	registry, err := schema.NewRegistry()
	require.NoError(t, err)
	store, err := blob.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	dsCache := cache.NewDatasetCache(nil)
	log := zap.NewNop()

	users := repo.NewUserRepo(db)
	datasets := repo.NewDatasetRepo(db)
	grants := repo.NewPermissionRepo(db)
	entities := repo.NewEntityRepo(db)

	perms := service.NewPermissionService(grants, users, log)
	ingest := service.NewIngestService(db, registry, store, dsCache, cfg, log)
	datasetSvc := service.NewDatasetService(datasets, users, perms, store, dsCache, cfg, log)
	entitySvc := service.NewEntityService(entities)

	r := NewRouter(RouterDeps{
		Config:         cfg,
		Log:            log,
		Users:          users,
		DatasetHandler: handler.NewDatasetHandler(ingest, datasetSvc, dsCache),
		EntityHandler:  handler.NewEntityHandler(entitySvc),
	})
	return &testServer{db: db, router: r, user: user}
}

func (s *testServer) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testPrefix+testSecret)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func containerUpload(t *testing.T, id uuid.UUID) (*bytes.Buffer, string) {
	t.Helper()
	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	write := func(name string, v any) {
		f, err := zw.Create(name)
		require.NoError(t, err)
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		_, err = f.Write(raw)
		require.NoError(t, err)
	}
	write("content.json", map[string]any{
		"uuid":          id.String(),
		"containerType": map[string]any{"name": "myImage"},
		"created":       "2022-09-06T11:25:13+00:00",
		"storageTime":   "2022-09-06T11:25:13+00:00",
		"static":        false,
		"complete":      false,
		"modelVersion":  "1.0",
	})
	write("meta.json", map[string]any{
		"author": "Jane Doe",
		"email":  "jane@example.com",
		"title":  "measurement 42",
	})
	require.NoError(t, zw.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("uploadfile", "measurement.zdc")
	require.NoError(t, err)
	_, err = part.Write(archive.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

type apiResponse struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	s := setupServer(t)
	w := s.do(t, http.MethodGet, "/health", nil, "", false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthentication(t *testing.T) {
	s := setupServer(t)

	t.Run("missing token", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/datasets", nil, "", false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/datasets", nil)
		req.Header.Set("Authorization", "Bearer "+testPrefix+"wrong")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing prefix", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/datasets", nil)
		req.Header.Set("Authorization", "Bearer "+testSecret)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/datasets", nil, "", true)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestUploadEndpoint(t *testing.T) {
	s := setupServer(t)

	t.Run("uploads a container", func(t *testing.T) {
		id := uuid.New()
		body, contentType := containerUpload(t, id)
		w := s.do(t, http.MethodPost, "/api/datasets", body, contentType, true)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decodeResponse(t, w)
		var ds struct {
			UUID string `json:"uuid"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &ds))
		assert.Equal(t, id.String(), ds.UUID)
	})

	t.Run("missing form file", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("note", "no file here"))
		require.NoError(t, mw.Close())

		w := s.do(t, http.MethodPost, "/api/datasets", &body, mw.FormDataContentType(), true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "No data file found in your request!")
	})

	t.Run("unsupported payload format", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("uploadfile", "notes.txt")
		require.NoError(t, err)
		_, err = part.Write([]byte("plain text, not a container"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		w := s.do(t, http.MethodPost, "/api/datasets", &body, mw.FormDataContentType(), true)
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
		assert.Contains(t, w.Body.String(), "File format has to be hdf5 or zip!")
	})
}

func TestRetrieveEndpoint(t *testing.T) {
	s := setupServer(t)

	id := uuid.New()
	body, contentType := containerUpload(t, id)
	w := s.do(t, http.MethodPost, "/api/datasets", body, contentType, true)
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("detail by identifier", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/datasets/"+id.String(), nil, "", true)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.Contains(t, string(resp.Data), id.String())
	})

	t.Run("download returns the stored bytes", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/datasets/"+id.String()+"/download", nil, "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
		assert.Equal(t, "PK", string(w.Body.Bytes()[:2]), "zip magic")
	})

	t.Run("unknown identifier", func(t *testing.T) {
		missing := uuid.New()
		w := s.do(t, http.MethodGet, "/api/datasets/"+missing.String(), nil, "", true)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "No DataSet with UUID="+missing.String()+" found!")
	})

	t.Run("malformed identifier reads as not found", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/datasets/not-a-uuid", nil, "", true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPatchEndpoint(t *testing.T) {
	s := setupServer(t)

	id := uuid.New()
	body, contentType := containerUpload(t, id)
	w := s.do(t, http.MethodPost, "/api/datasets", body, contentType, true)
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("rejected field", func(t *testing.T) {
		payload := bytes.NewBufferString(`{"title":"new title"}`)
		w := s.do(t, http.MethodPatch, "/api/datasets/"+id.String(), payload, "application/json", true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "The follwoing fields must not be updated: 'title'.")
	})

	t.Run("invalidation", func(t *testing.T) {
		payload := bytes.NewBufferString(`{"valid":false,"invalidation_comment":"bad run"}`)
		w := s.do(t, http.MethodPatch, "/api/datasets/"+id.String(), payload, "application/json", true)
		require.Equal(t, http.StatusOK, w.Code)

		var stored model.Dataset
		require.NoError(t, s.db.Where("id = ?", id).First(&stored).Error)
		assert.False(t, stored.Valid)
	})
}

func TestEntityListEndpoints(t *testing.T) {
	s := setupServer(t)

	id := uuid.New()
	body, contentType := containerUpload(t, id)
	w := s.do(t, http.MethodPost, "/api/datasets", body, contentType, true)
	require.Equal(t, http.StatusCreated, w.Code)

	for _, path := range []string{"/api/container-types", "/api/softwares", "/api/keywords", "/api/files"} {
		w := s.do(t, http.MethodGet, path, nil, "", true)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w = s.do(t, http.MethodGet, "/api/container-types", nil, "", true)
	assert.Contains(t, w.Body.String(), "myImage")

	t.Run("container type detail", func(t *testing.T) {
		var ct model.ContainerType
		require.NoError(t, s.db.Where("name = ?", "myImage").First(&ct).Error)

		w := s.do(t, http.MethodGet, "/api/container-types/"+ct.DBID.String(), nil, "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "myImage")
	})

	t.Run("file detail", func(t *testing.T) {
		var f model.File
		require.NoError(t, s.db.Where("name = ?", "content.json").First(&f).Error)

		w := s.do(t, http.MethodGet, "/api/files/"+f.ID.String(), nil, "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "content.json")
	})

	t.Run("unknown entity", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/keywords/"+uuid.NewString(), nil, "", true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
