package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/scidatahub/containerdb/internal/config"
	"github.com/scidatahub/containerdb/internal/infra/blob"
	"github.com/scidatahub/containerdb/internal/infra/cache"
	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/modules/repo"
	"github.com/scidatahub/containerdb/internal/pkg/mderr"
)

// DatasetService is the read and administration side of the catalog:
// detail lookup with replacement chain redirects, container download,
// listing and the permission/ownership patch endpoint.
type DatasetService interface {
	// Retrieve returns the record for id. When redirect is set and the
	// record is replaced, the chain is followed to its tip and the
	// returned status is 301 instead of 200.
	Retrieve(ctx context.Context, user *model.User, id uuid.UUID, redirect bool) (*DatasetDetail, int, error)
	// Download streams the stored container bytes, with the same chain
	// following semantics as Retrieve.
	Download(ctx context.Context, user *model.User, id uuid.UUID, redirect bool) (io.ReadCloser, int, error)
	List(ctx context.Context, user *model.User, filter repo.ListFilter) ([]model.Dataset, error)
	// Patch applies owner, permission and validity changes. It returns a
	// list of soft problems (unknown principals) alongside success.
	Patch(ctx context.Context, user *model.User, id uuid.UUID, fields map[string]any) ([]string, error)
}

type datasetService struct {
	datasets repo.DatasetRepo
	users    repo.UserRepo
	perms    PermissionService
	store    blob.Store
	cache    *cache.DatasetCache
	cfg      *config.Config
	log      *zap.Logger
}

func NewDatasetService(datasets repo.DatasetRepo, users repo.UserRepo, perms PermissionService, store blob.Store, dsCache *cache.DatasetCache, cfg *config.Config, log *zap.Logger) DatasetService {
	return &datasetService{
		datasets: datasets,
		users:    users,
		perms:    perms,
		store:    store,
		cache:    dsCache,
		cfg:      cfg,
		log:      log,
	}
}

// DatasetDetail bundles a record with its predecessor link for the
// detail serializers.
type DatasetDetail struct {
	Dataset  *model.Dataset
	Replaces model.RecordRef
}

func (s *datasetService) Retrieve(ctx context.Context, user *model.User, id uuid.UUID, redirect bool) (*DatasetDetail, int, error) {
	ds, status, err := s.resolve(ctx, user, id, redirect)
	if err != nil {
		return nil, 0, err
	}
	replaces, err := s.datasets.FindPredecessor(ctx, ds.ID)
	if err != nil {
		return nil, 0, err
	}
	return &DatasetDetail{Dataset: ds, Replaces: replaces}, status, nil
}

func (s *datasetService) Download(ctx context.Context, user *model.User, id uuid.UUID, redirect bool) (io.ReadCloser, int, error) {
	ds, status, err := s.resolve(ctx, user, id, redirect)
	if err != nil {
		return nil, 0, err
	}
	rc, err := s.store.Open(ctx, ds.ServerPath)
	if err != nil {
		return nil, 0, mderr.Classify(err)
	}
	return rc, status, nil
}

// resolve implements the shared lookup: 404 for unknown identifiers, 204
// with owner and comment for invalidated records, a permission check, and
// the optional walk to the tip of the replacement chain.
func (s *datasetService) resolve(ctx context.Context, user *model.User, id uuid.UUID, redirect bool) (*model.Dataset, int, error) {
	status := http.StatusOK
	for {
		ds, err := s.datasets.Get(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if s.cfg.Server.EnableTestIDs && strings.HasPrefix(id.String(), testIDPrefix) {
					return nil, 0, cannedDetailResponse(id)
				}
				return nil, 0, mderr.Newf(http.StatusNotFound, mderr.CodeRecordNotFound,
					"No DataSet with UUID=%s found!", id)
			}
			return nil, 0, err
		}
		if !ds.Valid {
			owner := ""
			if ds.Owner != nil {
				owner = ds.Owner.Username
			}
			return nil, 0, mderr.New(http.StatusNoContent, mderr.CodeRecordInvalidated,
				"DataSet was deleted!").WithDataset(map[string]any{
				"id":                   ds.ID.String(),
				"owner":                owner,
				"invalidation_comment": ds.InvalidationComment,
			})
		}
		if err := s.perms.EnsureReadPermission(ctx, user, ds); err != nil {
			return nil, 0, err
		}
		if redirect && ds.ReplacedByID != nil {
			id = *ds.ReplacedByID
			status = http.StatusMovedPermanently
			continue
		}
		return ds, status, nil
	}
}

// cannedDetailResponse mirrors the reserved identifier contract on the
// read side: the suffix selects the response.
func cannedDetailResponse(id uuid.UUID) error {
	s := id.String()
	switch {
	case strings.HasSuffix(s, "204"):
		return mderr.New(http.StatusNoContent, mderr.CodeRecordInvalidated, "DataSet was deleted")
	case strings.HasSuffix(s, "403"):
		return mderr.New(http.StatusForbidden, mderr.CodePermissionDenied,
			"You don't have permission to access this dataset.")
	case strings.HasSuffix(s, "301"):
		return mderr.New(http.StatusMovedPermanently, mderr.CodeRecordReplaced,
			"DataSet was replaced.").WithDataset(cannedDataset(id))
	default:
		return mderr.Newf(http.StatusNotFound, mderr.CodeRecordNotFound,
			"No DataSet with UUID=%s found!", s)
	}
}

// cannedDataset is the throwaway record served with the reserved 301
// response. It carries the standard example container metadata and never
// touches the database; the doi points back at the requested identifier.
func cannedDataset(id uuid.UUID) *model.Dataset {
	now := time.Now().UTC()
	return &model.Dataset{
		ID:          uuid.New(),
		UploadTime:  now,
		Size:        42,
		Valid:       true,
		Created:     now,
		StorageTime: now,
		ContainerType: &model.ContainerType{
			DBID: uuid.New(),
			Name: "myImage",
		},
		ModelVersion: "1.0",
		Author:       "Jane Doe",
		Email:        "jane@example.com",
		Title:        "measurement 42",
		DOI:          "https://example.com/" + id.String(),
	}
}

func (s *datasetService) List(ctx context.Context, user *model.User, filter repo.ListFilter) ([]model.Dataset, error) {
	return s.datasets.ListVisible(ctx, user, filter)
}

// patchFields is the closed set of fields the patch endpoint accepts.
var patchFields = map[string]bool{
	"readonly_users":   true,
	"readwrite_users":  true,
	"readonly_groups":  true,
	"readwrite_groups": true,
	"owner":            true,
	"valid":            true,
	// Only honored together with valid=false.
	"invalidation_comment": true,
}

func (s *datasetService) Patch(ctx context.Context, user *model.User, id uuid.UUID, fields map[string]any) ([]string, error) {
	ds, err := s.datasets.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mderr.Newf(http.StatusNotFound, mderr.CodeRecordNotFound,
				"No DataSet with UUID=%s found!", id)
		}
		return nil, err
	}
	if err := s.perms.EnsureOwner(user, ds); err != nil {
		return nil, err
	}

	var rejected []string
	for key := range fields {
		if !patchFields[key] {
			rejected = append(rejected, key)
		}
	}
	if len(rejected) != 0 {
		return nil, mderr.Newf(http.StatusBadRequest, mderr.CodeSchemaValidationFailed,
			"The follwoing fields must not be updated: '%s'.", strings.Join(rejected, "', '"))
	}

	var problems []string
	assignments := []struct {
		key    string
		action model.GrantAction
		group  bool
	}{
		{"readonly_users", model.ActionView, false},
		{"readwrite_users", model.ActionChange, false},
		{"readonly_groups", model.ActionView, true},
		{"readwrite_groups", model.ActionChange, true},
	}
	for _, a := range assignments {
		raw, present := fields[a.key]
		if !present {
			continue
		}
		names := stringList(raw)
		var errs []string
		var err error
		if a.group {
			errs, err = s.perms.SetGroups(ctx, ds.ID, a.action, names)
		} else {
			errs, err = s.perms.SetUsers(ctx, ds.ID, a.action, names)
		}
		if err != nil {
			return nil, err
		}
		problems = append(problems, errs...)
	}

	if raw, present := fields["owner"]; present {
		name, _ := raw.(string)
		newOwner, err := s.users.GetByUsername(ctx, name)
		if err != nil {
			return nil, err
		}
		if newOwner == nil {
			problems = append(problems, "New owner "+name+" does not exist")
		} else {
			ds.OwnerID = newOwner.ID
			ds.Owner = newOwner
			if err := s.datasets.Save(ctx, ds); err != nil {
				return nil, err
			}
		}
	}

	if raw, present := fields["valid"]; present {
		valid, _ := raw.(bool)
		if valid && !ds.Valid {
			problems = append(problems,
				"It is not possible to change the status of a dataset from invalid to valid.")
			return nil, mderr.New(http.StatusBadRequest, mderr.CodeRevalidationRejected,
				strings.Join(problems, "\n"))
		}
		ds.Valid = valid
		if comment, ok := fields["invalidation_comment"].(string); ok {
			ds.InvalidationComment = comment
		}
		if err := s.datasets.Save(ctx, ds); err != nil {
			return nil, err
		}
	}

	s.cache.Invalidate(ctx, ds.ID)
	return problems, nil
}

// stringList accepts both a bare string and a list of strings.
func stringList(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
