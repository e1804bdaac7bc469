package serializer

import (
	"encoding/json"
	"time"

	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/modules/service"
)

// The dataset payloads keep the on-wire field names of the documents
// themselves: camelCase where the documents use camelCase.

type ContainerTypeRef struct {
	Name    string  `json:"name"`
	ID      *string `json:"id"`
	Version *string `json:"version"`
}

type SoftwareRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	ID      string `json:"id,omitempty"`
	IDType  string `json:"idType,omitempty"`
}

type KeywordRef struct {
	Name string `json:"name"`
}

type FileRef struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type DatasetRef struct {
	UUID string `json:"uuid"`
}

type Dataset struct {
	UUID         string            `json:"uuid"`
	UploadTime   time.Time         `json:"upload_time"`
	Replaces     *DatasetRef       `json:"replaces"`
	ReplacedBy   *DatasetRef       `json:"replaced_by,omitempty"`
	Complete     bool              `json:"complete"`
	Valid        bool              `json:"valid"`
	Size         int64             `json:"size"`
	Created      time.Time         `json:"created"`
	StorageTime  time.Time         `json:"storageTime"`
	Static       bool              `json:"static"`
	ContainerTyp *ContainerTypeRef `json:"containerType"`
	Hash         string            `json:"hash"`
	UsedSoftware []SoftwareRef     `json:"usedSoftware"`
	ModelVersion string            `json:"model_version"`
	Author       string            `json:"author"`
	Email        string            `json:"email"`
	Comment      string            `json:"comment"`
	Title        string            `json:"title"`
	Keywords     []KeywordRef      `json:"keywords"`
	Description  string            `json:"description"`
	Organization string            `json:"organization"`
	DOI          string            `json:"doi"`
	License      string            `json:"license"`
	Timestamp    *time.Time        `json:"timestamp"`
	Content      []FileRef         `json:"content"`
}

// BuildDataset flattens a record into its API representation.
func BuildDataset(ds *model.Dataset) Dataset {
	out := Dataset{
		UUID:         ds.ID.String(),
		UploadTime:   ds.UploadTime,
		Complete:     ds.Complete,
		Valid:        ds.Valid,
		Size:         ds.Size,
		Created:      ds.Created,
		StorageTime:  ds.StorageTime,
		Static:       ds.Static,
		Hash:         ds.Hash,
		ModelVersion: ds.ModelVersion,
		Author:       ds.Author,
		Email:        ds.Email,
		Comment:      ds.Comment,
		Title:        ds.Title,
		Description:  ds.Description,
		Organization: ds.Organization,
		DOI:          ds.DOI,
		License:      ds.License,
		Timestamp:    ds.Timestamp,
		UsedSoftware: make([]SoftwareRef, 0, len(ds.UsedSoftware)),
		Keywords:     make([]KeywordRef, 0, len(ds.Keywords)),
		Content:      make([]FileRef, 0, len(ds.Files)),
	}
	if ds.ContainerType != nil {
		out.ContainerTyp = &ContainerTypeRef{
			Name:    ds.ContainerType.Name,
			ID:      ds.ContainerType.ExternalID,
			Version: ds.ContainerType.Version,
		}
	}
	if ds.ReplacedByID != nil {
		out.ReplacedBy = &DatasetRef{UUID: ds.ReplacedByID.String()}
	}
	for _, sw := range ds.UsedSoftware {
		out.UsedSoftware = append(out.UsedSoftware, SoftwareRef{
			Name:    sw.Name,
			Version: sw.Version,
			ID:      sw.ExternalID,
			IDType:  sw.IDType,
		})
	}
	for _, kw := range ds.Keywords {
		out.Keywords = append(out.Keywords, KeywordRef{Name: kw.Name})
	}
	for _, f := range ds.Files {
		out.Content = append(out.Content, FileRef{Name: f.Name, Size: f.Size})
	}
	return out
}

// BuildDatasetDetail additionally resolves the predecessor link.
func BuildDatasetDetail(detail *service.DatasetDetail) Dataset {
	out := BuildDataset(detail.Dataset)
	if !detail.Replaces.IsZero() {
		out.Replaces = &DatasetRef{UUID: detail.Replaces.ID().String()}
	}
	return out
}

// BuildDatasetList maps a listing.
func BuildDatasetList(items []model.Dataset) []Dataset {
	out := make([]Dataset, 0, len(items))
	for i := range items {
		out = append(out, BuildDataset(&items[i]))
	}
	return out
}

type ContainerType struct {
	DBID    string  `json:"dbid"`
	Name    string  `json:"name"`
	ID      *string `json:"id"`
	Version *string `json:"version"`
}

func BuildContainerTypes(items []model.ContainerType) []ContainerType {
	out := make([]ContainerType, 0, len(items))
	for _, ct := range items {
		out = append(out, ContainerType{
			DBID:    ct.DBID.String(),
			Name:    ct.Name,
			ID:      ct.ExternalID,
			Version: ct.Version,
		})
	}
	return out
}

type Software struct {
	DBID    string `json:"dbid"`
	Name    string `json:"name"`
	Version string `json:"version"`
	ID      string `json:"id,omitempty"`
	IDType  string `json:"idType,omitempty"`
}

func BuildSoftware(items []model.Software) []Software {
	out := make([]Software, 0, len(items))
	for _, sw := range items {
		out = append(out, Software{
			DBID:    sw.DBID.String(),
			Name:    sw.Name,
			Version: sw.Version,
			ID:      sw.ExternalID,
			IDType:  sw.IDType,
		})
	}
	return out
}

type Keyword struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func BuildKeywords(items []model.Keyword) []Keyword {
	out := make([]Keyword, 0, len(items))
	for _, kw := range items {
		out = append(out, Keyword{ID: kw.ID.String(), Name: kw.Name})
	}
	return out
}

type File struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Content any    `json:"content,omitempty"`
}

func BuildFiles(items []model.File) []File {
	out := make([]File, 0, len(items))
	for _, f := range items {
		entry := File{ID: f.ID.String(), Name: f.Name, Size: f.Size}
		if len(f.Content) > 0 {
			entry.Content = json.RawMessage(f.Content)
		}
		out = append(out, entry)
	}
	return out
}
