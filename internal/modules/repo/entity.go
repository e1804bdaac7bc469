package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/scidatahub/containerdb/internal/modules/model"
)

// EntityRepo owns the lazily created, get-or-create side entities of a
// dataset: container types, software packages, keywords and files. Rows
// are reused, never updated in place.
type EntityRepo interface {
	GetOrCreateContainerType(ctx context.Context, name string, externalID, version *string) (*model.ContainerType, error)
	GetOrCreateSoftware(ctx context.Context, name, version, externalID, idType string) (*model.Software, error)
	GetOrCreateKeyword(ctx context.Context, name string) (*model.Keyword, error)
	GetOrCreateFile(ctx context.Context, file model.File) (*model.File, error)

	ListContainerTypes(ctx context.Context, user *model.User) ([]model.ContainerType, error)
	ListSoftware(ctx context.Context, user *model.User) ([]model.Software, error)
	ListKeywords(ctx context.Context, user *model.User) ([]model.Keyword, error)
	ListFiles(ctx context.Context, user *model.User) ([]model.File, error)

	GetContainerType(ctx context.Context, user *model.User, id uuid.UUID) (*model.ContainerType, error)
	GetSoftware(ctx context.Context, user *model.User, id uuid.UUID) (*model.Software, error)
	GetKeyword(ctx context.Context, user *model.User, id uuid.UUID) (*model.Keyword, error)
	GetFile(ctx context.Context, user *model.User, id uuid.UUID) (*model.File, error)
}

type entityRepo struct {
	db *gorm.DB
}

func NewEntityRepo(db *gorm.DB) EntityRepo {
	return &entityRepo{db: db}
}

func (r *entityRepo) GetOrCreateContainerType(ctx context.Context, name string, externalID, version *string) (*model.ContainerType, error) {
	q := r.db.WithContext(ctx).Where("name = ?", name)
	if externalID == nil {
		q = q.Where("external_id IS NULL")
	} else {
		q = q.Where("external_id = ?", *externalID)
	}
	if version == nil {
		q = q.Where("version IS NULL")
	} else {
		q = q.Where("version = ?", *version)
	}

	var ct model.ContainerType
	err := q.Attrs(model.ContainerType{
		DBID:       uuid.New(),
		Name:       name,
		ExternalID: externalID,
		Version:    version,
	}).FirstOrCreate(&ct).Error
	if err != nil {
		return nil, err
	}
	return &ct, nil
}

func (r *entityRepo) GetOrCreateSoftware(ctx context.Context, name, version, externalID, idType string) (*model.Software, error) {
	var sw model.Software
	err := r.db.WithContext(ctx).
		Where(map[string]any{
			"name":        name,
			"version":     version,
			"external_id": externalID,
			"id_type":     idType,
		}).
		Attrs(model.Software{
			DBID:       uuid.New(),
			Name:       name,
			Version:    version,
			ExternalID: externalID,
			IDType:     idType,
		}).
		FirstOrCreate(&sw).Error
	if err != nil {
		return nil, err
	}
	return &sw, nil
}

func (r *entityRepo) GetOrCreateKeyword(ctx context.Context, name string) (*model.Keyword, error) {
	var kw model.Keyword
	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		Attrs(model.Keyword{ID: uuid.New(), Name: name}).
		FirstOrCreate(&kw).Error
	if err != nil {
		return nil, err
	}
	return &kw, nil
}

func (r *entityRepo) GetOrCreateFile(ctx context.Context, file model.File) (*model.File, error) {
	q := r.db.WithContext(ctx).Where("name = ? AND size = ?", file.Name, file.Size)
	if file.Content == nil {
		q = q.Where("content IS NULL")
	} else {
		q = q.Where("content = ?", datatypes.JSON(file.Content))
	}

	var out model.File
	err := q.Attrs(model.File{
		ID:      uuid.New(),
		Name:    file.Name,
		Size:    file.Size,
		Content: file.Content,
	}).FirstOrCreate(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *entityRepo) ListContainerTypes(ctx context.Context, user *model.User) ([]model.ContainerType, error) {
	db := r.db.WithContext(ctx)
	visible := visibleDatasetIDs(db.Session(&gorm.Session{NewDB: true}), user)
	var out []model.ContainerType
	err := db.Where("dbid IN (?)",
		db.Session(&gorm.Session{NewDB: true}).Table("datasets").Select("container_type_id").Where("id IN (?)", visible),
	).Find(&out).Error
	return out, err
}

func (r *entityRepo) ListSoftware(ctx context.Context, user *model.User) ([]model.Software, error) {
	return listThroughJoin[model.Software](ctx, r.db, user, "dataset_software", "software_db_id", "dbid")
}

func (r *entityRepo) ListKeywords(ctx context.Context, user *model.User) ([]model.Keyword, error) {
	return listThroughJoin[model.Keyword](ctx, r.db, user, "dataset_keywords", "keyword_id", "id")
}

func (r *entityRepo) ListFiles(ctx context.Context, user *model.User) ([]model.File, error) {
	return listThroughJoin[model.File](ctx, r.db, user, "dataset_files", "file_id", "id")
}

func listThroughJoin[T any](ctx context.Context, db *gorm.DB, user *model.User, joinTable, joinColumn, pkColumn string) ([]T, error) {
	tx := db.WithContext(ctx)
	visible := visibleDatasetIDs(tx.Session(&gorm.Session{NewDB: true}), user)
	join := tx.Session(&gorm.Session{NewDB: true}).Table(joinTable).
		Select(joinColumn).Where("dataset_id IN (?)", visible)

	var out []T
	err := tx.Where(pkColumn+" IN (?)", join).Find(&out).Error
	return out, err
}

// Entity detail lookups apply the same dataset visibility filter as the
// listings. Missing and invisible both read as nil.

func (r *entityRepo) GetContainerType(ctx context.Context, user *model.User, id uuid.UUID) (*model.ContainerType, error) {
	db := r.db.WithContext(ctx)
	visible := visibleDatasetIDs(db.Session(&gorm.Session{NewDB: true}), user)
	var ct model.ContainerType
	err := db.Where("dbid = ?", id).
		Where("dbid IN (?)",
			db.Session(&gorm.Session{NewDB: true}).Table("datasets").Select("container_type_id").Where("id IN (?)", visible),
		).First(&ct).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ct, nil
}

func (r *entityRepo) GetSoftware(ctx context.Context, user *model.User, id uuid.UUID) (*model.Software, error) {
	return getThroughJoin[model.Software](ctx, r.db, user, id, "dataset_software", "software_db_id", "dbid")
}

func (r *entityRepo) GetKeyword(ctx context.Context, user *model.User, id uuid.UUID) (*model.Keyword, error) {
	return getThroughJoin[model.Keyword](ctx, r.db, user, id, "dataset_keywords", "keyword_id", "id")
}

func (r *entityRepo) GetFile(ctx context.Context, user *model.User, id uuid.UUID) (*model.File, error) {
	return getThroughJoin[model.File](ctx, r.db, user, id, "dataset_files", "file_id", "id")
}

func getThroughJoin[T any](ctx context.Context, db *gorm.DB, user *model.User, id uuid.UUID, joinTable, joinColumn, pkColumn string) (*T, error) {
	tx := db.WithContext(ctx)
	visible := visibleDatasetIDs(tx.Session(&gorm.Session{NewDB: true}), user)
	join := tx.Session(&gorm.Session{NewDB: true}).Table(joinTable).
		Select(joinColumn).Where("dataset_id IN (?)", visible)

	var out T
	err := tx.Where(pkColumn+" = ?", id).Where(pkColumn+" IN (?)", join).First(&out).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
