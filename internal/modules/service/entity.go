package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/modules/repo"
)

// EntityService exposes the side entities referenced by datasets the
// user can see.
type EntityService interface {
	ContainerTypes(ctx context.Context, user *model.User) ([]model.ContainerType, error)
	Software(ctx context.Context, user *model.User) ([]model.Software, error)
	Keywords(ctx context.Context, user *model.User) ([]model.Keyword, error)
	Files(ctx context.Context, user *model.User) ([]model.File, error)

	ContainerType(ctx context.Context, user *model.User, id uuid.UUID) (*model.ContainerType, error)
	SoftwareByID(ctx context.Context, user *model.User, id uuid.UUID) (*model.Software, error)
	Keyword(ctx context.Context, user *model.User, id uuid.UUID) (*model.Keyword, error)
	File(ctx context.Context, user *model.User, id uuid.UUID) (*model.File, error)
}

type entityService struct {
	entities repo.EntityRepo
}

func NewEntityService(entities repo.EntityRepo) EntityService {
	return &entityService{entities: entities}
}

func (s *entityService) ContainerTypes(ctx context.Context, user *model.User) ([]model.ContainerType, error) {
	return s.entities.ListContainerTypes(ctx, user)
}

func (s *entityService) Software(ctx context.Context, user *model.User) ([]model.Software, error) {
	return s.entities.ListSoftware(ctx, user)
}

func (s *entityService) Keywords(ctx context.Context, user *model.User) ([]model.Keyword, error) {
	return s.entities.ListKeywords(ctx, user)
}

func (s *entityService) Files(ctx context.Context, user *model.User) ([]model.File, error) {
	return s.entities.ListFiles(ctx, user)
}

func (s *entityService) ContainerType(ctx context.Context, user *model.User, id uuid.UUID) (*model.ContainerType, error) {
	return s.entities.GetContainerType(ctx, user, id)
}

func (s *entityService) SoftwareByID(ctx context.Context, user *model.User, id uuid.UUID) (*model.Software, error) {
	return s.entities.GetSoftware(ctx, user, id)
}

func (s *entityService) Keyword(ctx context.Context, user *model.User, id uuid.UUID) (*model.Keyword, error) {
	return s.entities.GetKeyword(ctx, user, id)
}

func (s *entityService) File(ctx context.Context, user *model.User, id uuid.UUID) (*model.File, error) {
	return s.entities.GetFile(ctx, user, id)
}
