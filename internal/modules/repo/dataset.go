package repo

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/pkg/mderr"
)

// DatasetRepo owns the datasets and dataset_placeholders tables and the
// replacement chain links between them.
type DatasetRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Dataset, error)
	GetRef(ctx context.Context, id uuid.UUID) (model.RecordRef, error)
	ResolveDatasetRef(ctx context.Context, id uuid.UUID) (model.RecordRef, error)

	Create(ctx context.Context, ds *model.Dataset) error
	Save(ctx context.Context, ds *model.Dataset) error

	// ClaimStorageTime is the optimistic concurrency guard of the update
	// path: it advances storage_time from prev to next in one conditional
	// UPDATE and reports whether this writer won.
	ClaimStorageTime(ctx context.Context, id uuid.UUID, prev, next time.Time) (bool, error)

	FindStaticByHash(ctx context.Context, hash string) (*model.Dataset, error)

	// SetSuccessor links successorID as the replacement of the referenced
	// record.
	SetSuccessor(ctx context.Context, ref model.RecordRef, successorID uuid.UUID) error

	// FindPredecessor returns the record that is replaced by id, if any.
	FindPredecessor(ctx context.Context, id uuid.UUID) (model.RecordRef, error)

	DeletePlaceholder(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error

	ReplaceSoftware(ctx context.Context, ds *model.Dataset, software []model.Software) error
	ReplaceKeywords(ctx context.Context, ds *model.Dataset, keywords []model.Keyword) error
	ReplaceFiles(ctx context.Context, ds *model.Dataset, files []model.File) error

	ListVisible(ctx context.Context, user *model.User, filter ListFilter) ([]model.Dataset, error)
}

// ListFilter is the small query surface of the list endpoint.
type ListFilter struct {
	Title  string
	Author string
	ID     string
}

type datasetRepo struct {
	db *gorm.DB
}

func NewDatasetRepo(db *gorm.DB) DatasetRepo {
	return &datasetRepo{db: db}
}

func (r *datasetRepo) Get(ctx context.Context, id uuid.UUID) (*model.Dataset, error) {
	var ds model.Dataset
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Preload("ContainerType").
		Preload("UsedSoftware").
		Preload("Keywords").
		Preload("Files").
		Where("id = ?", id).
		First(&ds).Error
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

func (r *datasetRepo) GetRef(ctx context.Context, id uuid.UUID) (model.RecordRef, error) {
	ds, err := r.Get(ctx, id)
	if err == nil {
		return model.RecordRef{Full: ds}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.RecordRef{}, err
	}

	var p model.DatasetPlaceholder
	err = r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err == nil {
		return model.RecordRef{Placeholder: &p}, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.RecordRef{}, nil
	}
	return model.RecordRef{}, err
}

// ResolveDatasetRef creates a placeholder for unknown identifiers; it
// implements the forward reference semantics of the "replaces" property.
func (r *datasetRepo) ResolveDatasetRef(ctx context.Context, id uuid.UUID) (model.RecordRef, error) {
	ref, err := r.GetRef(ctx, id)
	if err != nil {
		return model.RecordRef{}, err
	}
	if !ref.IsZero() {
		return ref, nil
	}
	p := &model.DatasetPlaceholder{ID: id}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return model.RecordRef{}, err
	}
	return model.RecordRef{Placeholder: p}, nil
}

func (r *datasetRepo) Create(ctx context.Context, ds *model.Dataset) error {
	// Associations are replaced explicitly by the lifecycle engine; owner
	// and container type rows already exist.
	return r.db.WithContext(ctx).
		Omit("UsedSoftware", "Keywords", "Files", "Owner", "ContainerType").
		Create(ds).Error
}

func (r *datasetRepo) Save(ctx context.Context, ds *model.Dataset) error {
	return r.db.WithContext(ctx).Omit("UsedSoftware", "Keywords", "Files", "Owner", "ContainerType").Save(ds).Error
}

func (r *datasetRepo) ClaimStorageTime(ctx context.Context, id uuid.UUID, prev, next time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Dataset{}).
		Where("id = ? AND storage_time = ?", id, prev).
		Update("storage_time", next)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *datasetRepo) FindStaticByHash(ctx context.Context, hash string) (*model.Dataset, error) {
	var ds model.Dataset
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Where("static_hash = ?", hash).
		First(&ds).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

func (r *datasetRepo) SetSuccessor(ctx context.Context, ref model.RecordRef, successorID uuid.UUID) error {
	switch {
	case ref.Full != nil:
		ref.Full.ReplacedByID = &successorID
		return r.db.WithContext(ctx).Model(&model.Dataset{}).
			Where("id = ?", ref.Full.ID).
			Update("replaced_by_id", successorID).Error
	case ref.Placeholder != nil:
		ref.Placeholder.ReplacedByID = &successorID
		return r.db.WithContext(ctx).Model(&model.DatasetPlaceholder{}).
			Where("id = ?", ref.Placeholder.ID).
			Update("replaced_by_id", successorID).Error
	default:
		return mderr.New(http.StatusInternalServerError, mderr.CodeUnknown,
			"cannot set successor on empty record reference")
	}
}

func (r *datasetRepo) FindPredecessor(ctx context.Context, id uuid.UUID) (model.RecordRef, error) {
	var ds model.Dataset
	err := r.db.WithContext(ctx).Where("replaced_by_id = ?", id).First(&ds).Error
	if err == nil {
		return model.RecordRef{Full: &ds}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.RecordRef{}, err
	}

	var p model.DatasetPlaceholder
	err = r.db.WithContext(ctx).Where("replaced_by_id = ?", id).First(&p).Error
	if err == nil {
		return model.RecordRef{Placeholder: &p}, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.RecordRef{}, nil
	}
	return model.RecordRef{}, err
}

func (r *datasetRepo) DeletePlaceholder(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.DatasetPlaceholder{}).Error
}

// Delete removes a full record. Only test and admin paths use it; normal
// operation never hard deletes datasets.
func (r *datasetRepo) Delete(ctx context.Context, id uuid.UUID) error {
	var ds model.Dataset
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&ds).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, assoc := range []string{"UsedSoftware", "Keywords", "Files"} {
		if err := r.db.WithContext(ctx).Model(&ds).Association(assoc).Clear(); err != nil {
			return err
		}
	}
	return r.db.WithContext(ctx).Delete(&ds).Error
}

func (r *datasetRepo) ReplaceSoftware(ctx context.Context, ds *model.Dataset, software []model.Software) error {
	return r.db.WithContext(ctx).Model(ds).Association("UsedSoftware").Replace(software)
}

func (r *datasetRepo) ReplaceKeywords(ctx context.Context, ds *model.Dataset, keywords []model.Keyword) error {
	return r.db.WithContext(ctx).Model(ds).Association("Keywords").Replace(keywords)
}

func (r *datasetRepo) ReplaceFiles(ctx context.Context, ds *model.Dataset, files []model.File) error {
	return r.db.WithContext(ctx).Model(ds).Association("Files").Replace(files)
}

// visibleDatasetIDs is the subquery shared by the list endpoints: records
// the user owns or holds a grant on, directly or through a group.
func visibleDatasetIDs(db *gorm.DB, user *model.User) *gorm.DB {
	groupIDs := db.Table("user_groups").Select("group_id").Where("user_id = ?", user.ID)
	grants := db.Table("access_grants").Select("dataset_id").
		Where("user_id = ? OR group_id IN (?)", user.ID, groupIDs)
	return db.Table("datasets").Select("id").
		Where("owner_id = ? OR id IN (?)", user.ID, grants)
}

func (r *datasetRepo) ListVisible(ctx context.Context, user *model.User, filter ListFilter) ([]model.Dataset, error) {
	db := r.db.WithContext(ctx)
	q := db.
		Preload("ContainerType").
		Preload("Owner").
		Where("valid = ?", true).
		Where("id IN (?)", visibleDatasetIDs(db.Session(&gorm.Session{NewDB: true}), user))

	if filter.Title != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(filter.Title)+"%")
	}
	if filter.Author != "" {
		q = q.Where("LOWER(author) LIKE ?", "%"+strings.ToLower(filter.Author)+"%")
	}
	if filter.ID != "" {
		q = q.Where("CAST(id AS TEXT) LIKE ?", "%"+filter.ID+"%")
	}

	var out []model.Dataset
	if err := q.Order("upload_time DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
