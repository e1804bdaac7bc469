// Package fieldparse derives, from a resolved schema document, the mapping
// from document property to conversion logic. Conversion lands in a typed
// AttributeSet; a static table maps storage field names to setters, so
// every accepted field and its type is checkable at compile time.
package fieldparse

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/pkg/mderr"
	"github.com/scidatahub/containerdb/internal/pkg/schema"
)

// EntityResolver resolves cross references encountered during conversion.
// It is implemented by the repository layer and runs inside the ingestion
// transaction.
type EntityResolver interface {
	GetOrCreateContainerType(ctx context.Context, name string, externalID, version *string) (*model.ContainerType, error)
	GetOrCreateSoftware(ctx context.Context, name, version, externalID, idType string) (*model.Software, error)
	GetOrCreateKeyword(ctx context.Context, name string) (*model.Keyword, error)

	// ResolveDatasetRef returns the record for an identifier, creating a
	// placeholder when the identifier is unknown.
	ResolveDatasetRef(ctx context.Context, id uuid.UUID) (model.RecordRef, error)
}

// AttributeSet is the validated attribute dictionary handed to the
// lifecycle engine. Pointer fields distinguish "absent" from zero values;
// nil slices mean the property was not present in the document.
type AttributeSet struct {
	UUID     uuid.UUID
	Replaces *model.RecordRef

	Created     *time.Time
	StorageTime *time.Time
	Static      *bool
	Complete    *bool
	Hash        *string

	ContainerType *model.ContainerType
	UsedSoftware  []model.Software
	ModelVersion  *string

	Author       *string
	Email        *string
	Organization *string
	Comment      *string
	Title        *string
	Description  *string
	Timestamp    *time.Time
	DOI          *string
	License      *string
	Keywords     []model.Keyword

	// Filled by the pipeline, not by document conversion.
	Size  int64
	Files []model.File
}

// setters is the static storage-name to setter table. Scalar converters
// deliver their typed value here; a type mismatch is the defensive
// fallback of the pipeline, not a user error path.
var setters = map[string]func(*AttributeSet, any) error{
	"uuid": func(a *AttributeSet, v any) error {
		s, ok := v.(string)
		if !ok {
			return convertErr("uuid", v)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return convertErr("uuid", v)
		}
		a.UUID = id
		return nil
	},
	"created":       timeSetter("created", func(a *AttributeSet, t time.Time) { a.Created = &t }),
	"storage_time":  timeSetter("storage_time", func(a *AttributeSet, t time.Time) { a.StorageTime = &t }),
	"timestamp":     timeSetter("timestamp", func(a *AttributeSet, t time.Time) { a.Timestamp = &t }),
	"static":        boolSetter("static", func(a *AttributeSet, b bool) { a.Static = &b }),
	"complete":      boolSetter("complete", func(a *AttributeSet, b bool) { a.Complete = &b }),
	"hash":          stringSetter("hash", func(a *AttributeSet, s string) { a.Hash = &s }),
	"model_version": stringSetter("model_version", func(a *AttributeSet, s string) { a.ModelVersion = &s }),
	"author":        stringSetter("author", func(a *AttributeSet, s string) { a.Author = &s }),
	"email":         stringSetter("email", func(a *AttributeSet, s string) { a.Email = &s }),
	"organization":  stringSetter("organization", func(a *AttributeSet, s string) { a.Organization = &s }),
	"comment":       stringSetter("comment", func(a *AttributeSet, s string) { a.Comment = &s }),
	"title":         stringSetter("title", func(a *AttributeSet, s string) { a.Title = &s }),
	"description":   stringSetter("description", func(a *AttributeSet, s string) { a.Description = &s }),
	"doi":           stringSetter("doi", func(a *AttributeSet, s string) { a.DOI = &s }),
	"license":       stringSetter("license", func(a *AttributeSet, s string) { a.License = &s }),
}

func stringSetter(name string, set func(*AttributeSet, string)) func(*AttributeSet, any) error {
	return func(a *AttributeSet, v any) error {
		s, ok := v.(string)
		if !ok {
			return convertErr(name, v)
		}
		set(a, s)
		return nil
	}
}

func boolSetter(name string, set func(*AttributeSet, bool)) func(*AttributeSet, any) error {
	return func(a *AttributeSet, v any) error {
		b, ok := v.(bool)
		if !ok {
			return convertErr(name, v)
		}
		set(a, b)
		return nil
	}
}

func timeSetter(name string, set func(*AttributeSet, time.Time)) func(*AttributeSet, any) error {
	return func(a *AttributeSet, v any) error {
		s, ok := v.(string)
		if !ok {
			return convertErr(name, v)
		}
		// RFC 3339 requires explicit UTC/offset information, which is
		// exactly the constraint the documents must satisfy.
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return convertErr(name, v)
		}
		set(a, t)
		return nil
	}
}

func convertErr(name string, v any) error {
	return mderr.Newf(http.StatusBadRequest, mderr.CodeSchemaValidationFailed,
		"Failed to convert '%v' for attribute %q using the default parser. Make sure it has the right type.", v, name)
}

// SnakeCase translates the document naming convention (camelCase) to the
// storage convention (snake_case).
func SnakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Converter applies one document property onto the attribute set.
type Converter func(ctx context.Context, raw any, res EntityResolver, out *AttributeSet) error

// Parser maps document property names to converters for one schema
// document.
type Parser struct {
	converters map[string]Converter
}

// Generate builds the property to converter mapping for a resolved schema
// document. An array or object property the generator does not know is a
// schema/parser mismatch that must be fixed in code, and fails fast with a
// server side error.
func Generate(doc *schema.Document) (*Parser, error) {
	p := &Parser{converters: map[string]Converter{}}
	for name, rawDecl := range doc.Properties {
		decl, _ := rawDecl.(map[string]any)

		if name == "replaces" {
			p.converters[name] = convertReplaces
			continue
		}
		typ, ok := decl["type"].(string)
		if !ok {
			continue
		}

		switch typ {
		case "string":
			// The static setter table decides whether the value is kept as
			// a string or parsed as an ISO 8601 timestamp; the date-time
			// format declaration and the table must agree.
			p.converters[name] = scalarConverter(name)
		case "array":
			switch name {
			case "usedSoftware":
				p.converters[name] = convertUsedSoftware
			case "keywords":
				p.converters[name] = convertKeywords
			default:
				return nil, mderr.Newf(http.StatusInternalServerError, mderr.CodeUnsupportedSchemaProperty,
					"The model version has a property %q that is not supported.", name)
			}
		case "object":
			if name == "containerType" {
				p.converters[name] = convertContainerType
			} else {
				return nil, mderr.Newf(http.StatusInternalServerError, mderr.CodeUnsupportedSchemaProperty,
					"The model version has a property %q that is not supported.", name)
			}
		default:
			p.converters[name] = scalarConverter(name)
		}
	}
	return p, nil
}

// scalarConverter routes a scalar value through the static setter table
// under its translated storage name.
func scalarConverter(name string) Converter {
	storage := SnakeCase(name)
	return func(_ context.Context, raw any, _ EntityResolver, out *AttributeSet) error {
		set, ok := setters[storage]
		if !ok {
			return mderr.Newf(http.StatusInternalServerError, mderr.CodeUnsupportedSchemaProperty,
				"The model version has a property %q that is not supported.", name)
		}
		return set(out, raw)
	}
}

func convertReplaces(ctx context.Context, raw any, res EntityResolver, out *AttributeSet) error {
	s, ok := raw.(string)
	if !ok {
		return convertErr("replaces", raw)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return convertErr("replaces", raw)
	}
	ref, err := res.ResolveDatasetRef(ctx, id)
	if err != nil {
		return err
	}
	out.Replaces = &ref
	return nil
}

func convertUsedSoftware(ctx context.Context, raw any, res EntityResolver, out *AttributeSet) error {
	list, ok := raw.([]any)
	if !ok {
		return convertErr("usedSoftware", raw)
	}
	software := make([]model.Software, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return convertErr("usedSoftware", item)
		}
		name, ok := entry["name"].(string)
		if !ok {
			return missingAttr("usedSoftware", "name")
		}
		version, ok := entry["version"].(string)
		if !ok {
			return missingAttr("usedSoftware", "version")
		}
		var externalID, idType string
		if rawID, present := entry["id"]; present {
			externalID, ok = rawID.(string)
			if !ok {
				return convertErr("usedSoftware", rawID)
			}
			idType, ok = entry["idType"].(string)
			if !ok {
				return mderr.New(http.StatusBadRequest, mderr.CodeSchemaValidationFailed,
					"usedSoftware requires idType if id is given")
			}
		}
		sw, err := res.GetOrCreateSoftware(ctx, name, version, externalID, idType)
		if err != nil {
			return err
		}
		software = append(software, *sw)
	}
	out.UsedSoftware = software
	return nil
}

func convertKeywords(ctx context.Context, raw any, res EntityResolver, out *AttributeSet) error {
	list, ok := raw.([]any)
	if !ok {
		return convertErr("keywords", raw)
	}
	keywords := make([]model.Keyword, 0, len(list))
	for _, item := range list {
		name, ok := item.(string)
		if !ok {
			return convertErr("keywords", item)
		}
		kw, err := res.GetOrCreateKeyword(ctx, name)
		if err != nil {
			return err
		}
		keywords = append(keywords, *kw)
	}
	out.Keywords = keywords
	return nil
}

// convertContainerType accepts either a bare string (name only) or an
// object with a required name; an external id needs a version.
func convertContainerType(ctx context.Context, raw any, res EntityResolver, out *AttributeSet) error {
	switch v := raw.(type) {
	case string:
		ct, err := res.GetOrCreateContainerType(ctx, v, nil, nil)
		if err != nil {
			return err
		}
		out.ContainerType = ct
		return nil
	case map[string]any:
		name, ok := v["name"].(string)
		if !ok {
			return missingAttr("containerType", "name")
		}
		var externalID, version *string
		if rawID, present := v["id"]; present {
			s, ok := rawID.(string)
			if !ok {
				return convertErr("containerType", rawID)
			}
			externalID = &s
			ver, ok := v["version"].(string)
			if !ok {
				return mderr.New(http.StatusBadRequest, mderr.CodeSchemaValidationFailed,
					"containerType requires version attribute if id is given")
			}
			version = &ver
		} else if rawVer, present := v["version"]; present {
			s, ok := rawVer.(string)
			if !ok {
				return convertErr("containerType", rawVer)
			}
			version = &s
		}
		ct, err := res.GetOrCreateContainerType(ctx, name, externalID, version)
		if err != nil {
			return err
		}
		out.ContainerType = ct
		return nil
	default:
		return mderr.New(http.StatusBadRequest, mderr.CodeSchemaValidationFailed,
			"containerType needs to be a string (name) or a dictionary")
	}
}

func missingAttr(property, attr string) error {
	return mderr.Newf(http.StatusBadRequest, mderr.CodeSchemaValidationFailed,
		"%s requires %s attribute", property, attr)
}

// Apply runs every converter for the properties present in the validated
// document body.
func (p *Parser) Apply(ctx context.Context, body map[string]any, res EntityResolver, out *AttributeSet) error {
	for name, convert := range p.converters {
		raw, present := body[name]
		if !present {
			continue
		}
		if err := convert(ctx, raw, res, out); err != nil {
			return err
		}
	}
	return nil
}
