package service

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/modules/repo"
	"github.com/scidatahub/containerdb/internal/pkg/mderr"
)

// PermissionService checks and edits dataset access. Ownership always
// implies full access; grants extend it to other users and groups.
type PermissionService interface {
	EnsureReadPermission(ctx context.Context, user *model.User, ds *model.Dataset) error
	EnsureWritePermission(ctx context.Context, user *model.User, ds *model.Dataset) error
	EnsureOwner(user *model.User, ds *model.Dataset) error

	// SetUsers and SetGroups replace the full principal list for one
	// action. Unknown principal names are reported, not fatal.
	SetUsers(ctx context.Context, datasetID uuid.UUID, action model.GrantAction, usernames []string) ([]string, error)
	SetGroups(ctx context.Context, datasetID uuid.UUID, action model.GrantAction, groupnames []string) ([]string, error)

	// Principals returns the user and group names holding an action.
	Principals(ctx context.Context, datasetID uuid.UUID, action model.GrantAction) (users []string, groups []string, err error)
}

type permissionService struct {
	grants repo.PermissionRepo
	users  repo.UserRepo
	log    *zap.Logger
}

func NewPermissionService(grants repo.PermissionRepo, users repo.UserRepo, log *zap.Logger) PermissionService {
	return &permissionService{grants: grants, users: users, log: log}
}

func (s *permissionService) EnsureReadPermission(ctx context.Context, user *model.User, ds *model.Dataset) error {
	if user != nil && ds.OwnerID == user.ID {
		return nil
	}
	for _, action := range []model.GrantAction{model.ActionView, model.ActionChange} {
		ok, err := s.grants.HasAction(ctx, ds.ID, user, action)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return mderr.New(http.StatusForbidden, mderr.CodePermissionDenied,
		"You don't have permission to access this dataset.")
}

func (s *permissionService) EnsureWritePermission(ctx context.Context, user *model.User, ds *model.Dataset) error {
	if user != nil && ds.OwnerID == user.ID {
		return nil
	}
	ok, err := s.grants.HasAction(ctx, ds.ID, user, model.ActionChange)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return mderr.New(http.StatusForbidden, mderr.CodePermissionDenied,
		"You don't have permission to update this dataset.")
}

func (s *permissionService) EnsureOwner(user *model.User, ds *model.Dataset) error {
	if user != nil && ds.OwnerID == user.ID {
		return nil
	}
	return mderr.New(http.StatusForbidden, mderr.CodePermissionDenied,
		"You don't have permission to update this dataset.")
}

// SetUsers revokes the action from every user currently holding it and
// grants it to the named users instead. A user may hold only one of the
// two actions, so granting one revokes the other first.
func (s *permissionService) SetUsers(ctx context.Context, datasetID uuid.UUID, action model.GrantAction, usernames []string) ([]string, error) {
	current, err := s.grants.ListForDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	for _, g := range current {
		if g.Action == action && g.UserID != nil {
			if err := s.grants.RevokeUser(ctx, datasetID, *g.UserID, action); err != nil {
				return nil, err
			}
		}
	}

	other := otherAction(action)
	var problems []string
	for _, name := range usernames {
		user, err := s.users.GetByUsername(ctx, name)
		if err != nil {
			return nil, err
		}
		if user == nil {
			problems = append(problems, "User "+name+" does not exist")
			continue
		}
		if err := s.grants.RevokeUser(ctx, datasetID, user.ID, other); err != nil {
			return nil, err
		}
		if err := s.grants.GrantUser(ctx, datasetID, user.ID, action); err != nil {
			return nil, err
		}
	}
	return problems, nil
}

func (s *permissionService) SetGroups(ctx context.Context, datasetID uuid.UUID, action model.GrantAction, groupnames []string) ([]string, error) {
	current, err := s.grants.ListForDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	for _, g := range current {
		if g.Action == action && g.GroupID != nil {
			if err := s.grants.RevokeGroup(ctx, datasetID, *g.GroupID, action); err != nil {
				return nil, err
			}
		}
	}

	other := otherAction(action)
	var problems []string
	for _, name := range groupnames {
		group, err := s.users.GetGroupByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if group == nil {
			problems = append(problems, "Group "+name+" does not exist")
			continue
		}
		if err := s.grants.RevokeGroup(ctx, datasetID, group.ID, other); err != nil {
			return nil, err
		}
		if err := s.grants.GrantGroup(ctx, datasetID, group.ID, action); err != nil {
			return nil, err
		}
	}
	return problems, nil
}

func (s *permissionService) Principals(ctx context.Context, datasetID uuid.UUID, action model.GrantAction) ([]string, []string, error) {
	grants, err := s.grants.ListForDataset(ctx, datasetID)
	if err != nil {
		return nil, nil, err
	}
	var users, groups []string
	for _, g := range grants {
		if g.Action != action {
			continue
		}
		switch {
		case g.UserID != nil:
			user, err := s.users.GetByID(ctx, *g.UserID)
			if err != nil {
				return nil, nil, err
			}
			if user != nil {
				users = append(users, user.Username)
			}
		case g.GroupID != nil:
			group, err := s.users.GetGroupByID(ctx, *g.GroupID)
			if err != nil {
				return nil, nil, err
			}
			if group != nil {
				groups = append(groups, group.Name)
			}
		}
	}
	return users, groups, nil
}

func otherAction(action model.GrantAction) model.GrantAction {
	if action == model.ActionView {
		return model.ActionChange
	}
	return model.ActionView
}
