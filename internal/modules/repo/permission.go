package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scidatahub/containerdb/internal/modules/model"
)

type PermissionRepo interface {
	ListForDataset(ctx context.Context, datasetID uuid.UUID) ([]model.AccessGrant, error)
	GrantUser(ctx context.Context, datasetID, userID uuid.UUID, action model.GrantAction) error
	GrantGroup(ctx context.Context, datasetID, groupID uuid.UUID, action model.GrantAction) error
	RevokeUser(ctx context.Context, datasetID, userID uuid.UUID, action model.GrantAction) error
	RevokeGroup(ctx context.Context, datasetID, groupID uuid.UUID, action model.GrantAction) error
	// HasAction reports whether the user holds the action on the dataset,
	// directly or through one of their groups.
	HasAction(ctx context.Context, datasetID uuid.UUID, user *model.User, action model.GrantAction) (bool, error)
}

type permissionRepo struct {
	db *gorm.DB
}

func NewPermissionRepo(db *gorm.DB) PermissionRepo {
	return &permissionRepo{db: db}
}

func (r *permissionRepo) ListForDataset(ctx context.Context, datasetID uuid.UUID) ([]model.AccessGrant, error) {
	var grants []model.AccessGrant
	err := r.db.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("created_at ASC").
		Find(&grants).Error
	return grants, err
}

func (r *permissionRepo) GrantUser(ctx context.Context, datasetID, userID uuid.UUID, action model.GrantAction) error {
	var grant model.AccessGrant
	return r.db.WithContext(ctx).
		Where("dataset_id = ? AND user_id = ? AND action = ?", datasetID, userID, action).
		Attrs(model.AccessGrant{
			ID:        uuid.New(),
			DatasetID: datasetID,
			UserID:    &userID,
			Action:    action,
		}).
		FirstOrCreate(&grant).Error
}

func (r *permissionRepo) GrantGroup(ctx context.Context, datasetID, groupID uuid.UUID, action model.GrantAction) error {
	var grant model.AccessGrant
	return r.db.WithContext(ctx).
		Where("dataset_id = ? AND group_id = ? AND action = ?", datasetID, groupID, action).
		Attrs(model.AccessGrant{
			ID:        uuid.New(),
			DatasetID: datasetID,
			GroupID:   &groupID,
			Action:    action,
		}).
		FirstOrCreate(&grant).Error
}

func (r *permissionRepo) RevokeUser(ctx context.Context, datasetID, userID uuid.UUID, action model.GrantAction) error {
	return r.db.WithContext(ctx).
		Where("dataset_id = ? AND user_id = ? AND action = ?", datasetID, userID, action).
		Delete(&model.AccessGrant{}).Error
}

func (r *permissionRepo) RevokeGroup(ctx context.Context, datasetID, groupID uuid.UUID, action model.GrantAction) error {
	return r.db.WithContext(ctx).
		Where("dataset_id = ? AND group_id = ? AND action = ?", datasetID, groupID, action).
		Delete(&model.AccessGrant{}).Error
}

func (r *permissionRepo) HasAction(ctx context.Context, datasetID uuid.UUID, user *model.User, action model.GrantAction) (bool, error) {
	if user == nil {
		return false, nil
	}
	groupIDs := make([]uuid.UUID, 0, len(user.Groups))
	for _, g := range user.Groups {
		groupIDs = append(groupIDs, g.ID)
	}

	q := r.db.WithContext(ctx).Model(&model.AccessGrant{}).
		Where("dataset_id = ? AND action = ?", datasetID, action)
	if len(groupIDs) > 0 {
		q = q.Where("user_id = ? OR group_id IN (?)", user.ID, groupIDs)
	} else {
		q = q.Where("user_id = ?", user.ID)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
