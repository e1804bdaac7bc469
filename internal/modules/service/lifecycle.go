package service

import (
	"context"
	"net/http"

	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/modules/repo"
	"github.com/scidatahub/containerdb/internal/pkg/fieldparse"
	"github.com/scidatahub/containerdb/internal/pkg/mderr"
)

// Lifecycle applies a validated attribute set onto a dataset record,
// enforcing the update invariants: ownership or write grant, the
// completeness lock, static hash uniqueness, monotonic storage time and
// the single successor rule of the replacement chain. It runs inside the
// ingestion transaction on transaction scoped repositories.
type Lifecycle struct {
	datasets repo.DatasetRepo
	grants   repo.PermissionRepo
}

func NewLifecycle(datasets repo.DatasetRepo, grants repo.PermissionRepo) *Lifecycle {
	return &Lifecycle{datasets: datasets, grants: grants}
}

// UpdateAttributes mutates ds according to attrs and persists it. isNew
// selects between creating the row and updating it under the optimistic
// storage time check. On success valid is always true: an accepted update
// implicitly revalidates the record.
func (l *Lifecycle) UpdateAttributes(ctx context.Context, ds *model.Dataset, attrs *fieldparse.AttributeSet, user *model.User, isNew bool) error {
	if !isNew {
		if err := l.ensureWritable(ctx, ds, user); err != nil {
			return err
		}
	}

	if attrs.Static != nil && *attrs.Static {
		if attrs.Hash == nil || *attrs.Hash == "" {
			return mderr.New(http.StatusBadRequest, mderr.CodeMissingRequiredHash,
				"A static dataset requires the hash attribute.")
		}
		existing, err := l.datasets.FindStaticByHash(ctx, *attrs.Hash)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != ds.ID {
			return mderr.Newf(http.StatusMovedPermanently, mderr.CodeStaticHashConflict,
				"A static file requires a unique hash, but there is already a file with the same hash and UUID=%s.",
				existing.ID).WithDataset(existing)
		}
	}

	if isNew {
		if attrs.StorageTime != nil {
			ds.StorageTime = *attrs.StorageTime
		}
	} else {
		// The conditional update is the authoritative guard; the local
		// comparison only avoids a pointless round trip.
		if attrs.StorageTime == nil || !attrs.StorageTime.After(ds.StorageTime) {
			return staleUpdate()
		}
		won, err := l.datasets.ClaimStorageTime(ctx, ds.ID, ds.StorageTime, *attrs.StorageTime)
		if err != nil {
			return err
		}
		if !won {
			return staleUpdate()
		}
		ds.StorageTime = *attrs.StorageTime
	}

	l.applyScalars(ds, attrs)

	if isNew {
		if err := l.datasets.Create(ctx, ds); err != nil {
			return err
		}
	} else {
		if err := l.datasets.Save(ctx, ds); err != nil {
			return err
		}
	}

	if attrs.Replaces != nil {
		if err := l.linkPredecessor(ctx, *attrs.Replaces, ds); err != nil {
			return err
		}
	}

	// Multi valued relations are authoritative in the uploaded document:
	// they replace the stored set wholesale when present and non empty.
	if len(attrs.UsedSoftware) > 0 {
		if err := l.datasets.ReplaceSoftware(ctx, ds, attrs.UsedSoftware); err != nil {
			return err
		}
	}
	if len(attrs.Keywords) > 0 {
		if err := l.datasets.ReplaceKeywords(ctx, ds, attrs.Keywords); err != nil {
			return err
		}
	}
	if len(attrs.Files) > 0 {
		if err := l.datasets.ReplaceFiles(ctx, ds, attrs.Files); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lifecycle) ensureWritable(ctx context.Context, ds *model.Dataset, user *model.User) error {
	if user == nil || ds.OwnerID != user.ID {
		ok, err := l.grants.HasAction(ctx, ds.ID, user, model.ActionChange)
		if err != nil {
			return err
		}
		if !ok {
			return mderr.New(http.StatusForbidden, mderr.CodePermissionDenied,
				"You don't have permission to update this dataset.")
		}
	}
	if ds.Complete {
		return mderr.New(http.StatusConflict, mderr.CodeRecordLocked,
			"Dataset is marked complete. No further changes allowed.")
	}
	return nil
}

func (l *Lifecycle) applyScalars(ds *model.Dataset, attrs *fieldparse.AttributeSet) {
	// An accepted update revalidates.
	ds.Valid = true
	ds.Size = attrs.Size

	if attrs.Created != nil {
		ds.Created = *attrs.Created
	}
	if attrs.Static != nil {
		ds.Static = *attrs.Static
	}
	if attrs.Complete != nil {
		ds.Complete = *attrs.Complete
	}
	if attrs.Hash != nil {
		ds.Hash = *attrs.Hash
	}
	if attrs.ContainerType != nil {
		ds.ContainerTypeID = attrs.ContainerType.DBID
		ds.ContainerType = attrs.ContainerType
	}
	if attrs.ModelVersion != nil {
		ds.ModelVersion = *attrs.ModelVersion
	}
	if attrs.Author != nil {
		ds.Author = *attrs.Author
	}
	if attrs.Email != nil {
		ds.Email = *attrs.Email
	}
	if attrs.Organization != nil {
		ds.Organization = *attrs.Organization
	}
	if attrs.Comment != nil {
		ds.Comment = *attrs.Comment
	}
	if attrs.Title != nil {
		ds.Title = *attrs.Title
	}
	if attrs.Description != nil {
		ds.Description = *attrs.Description
	}
	if attrs.Timestamp != nil {
		ds.Timestamp = attrs.Timestamp
	}
	if attrs.DOI != nil {
		ds.DOI = *attrs.DOI
	}
	if attrs.License != nil {
		ds.License = *attrs.License
	}

	// StaticHash backs the database level uniqueness constraint among
	// static records only.
	if ds.Static && ds.Hash != "" {
		h := ds.Hash
		ds.StaticHash = &h
	} else {
		ds.StaticHash = nil
	}
}

// linkPredecessor records ds as the successor of the referenced record. A
// predecessor that already has a different successor is the tip of some
// other chain; the caller must replace that successor instead.
func (l *Lifecycle) linkPredecessor(ctx context.Context, predecessor model.RecordRef, ds *model.Dataset) error {
	if predecessor.IsZero() {
		return nil
	}
	if succID := predecessor.ReplacedByID(); succID != nil {
		if *succID == ds.ID {
			return nil
		}
		succ, err := l.datasets.GetRef(ctx, *succID)
		if err != nil {
			return err
		}
		var payload any
		if succ.Full != nil {
			payload = succ.Full
		} else if succ.Placeholder != nil {
			payload = succ.Placeholder
		}
		return mderr.Newf(http.StatusConflict, mderr.CodeSuccessorConflict,
			"Failed to insert replacement relationship. The object UUID=%s is already replaced by UUID=%s. You might want to replace this dataset.",
			predecessor.ID(), *succID).WithDataset(payload)
	}

	// A record replaces at most one predecessor, across both the dataset
	// and placeholder tables. The per table unique index cannot see the
	// other table, so the cross table check lives here.
	current, err := l.datasets.FindPredecessor(ctx, ds.ID)
	if err != nil {
		return err
	}
	if !current.IsZero() && current.ID() != predecessor.ID() {
		return mderr.Newf(http.StatusConflict, mderr.CodePredecessorConflict,
			"Failed to insert replacement relationship. The object UUID=%s already replaces UUID=%s.",
			ds.ID, current.ID())
	}
	return l.datasets.SetSuccessor(ctx, predecessor, ds.ID)
}

func staleUpdate() error {
	return mderr.New(http.StatusBadRequest, mderr.CodeStaleUpdate,
		"Server version of the dataset is newer than the file you tried to upload.")
}
