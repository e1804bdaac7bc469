// Package schema holds the versioned JSON schema documents that uploaded
// containers are validated against. The registry is built once at process
// start and never mutated afterwards.
package schema

import (
	"bytes"
	"embed"
	"fmt"
	"net/http"
	"sort"
	"strings"

	goversion "github.com/hashicorp/go-version"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/scidatahub/containerdb/internal/pkg/mderr"
)

//go:embed documents/*.json
var documents embed.FS

// Family names one of the two metadata document families. The families
// version independently.
type Family string

const (
	FamilyContent Family = "content"
	FamilyMeta    Family = "meta"
)

// Document is one registered schema version of a family.
type Document struct {
	Family   Family
	Version  *goversion.Version
	Compiled *jsonschema.Schema

	// Properties is the decoded "properties" object of the schema document,
	// used by the field parser generator.
	Properties map[string]any
}

// Pair is the schema combination that applies to one declared model
// version.
type Pair struct {
	Content *Document
	Meta    *Document
}

// Validate checks a decoded document instance against the schema. The
// validator's message is surfaced verbatim as a client error.
func (d *Document) Validate(instance any) error {
	if err := d.Compiled.Validate(instance); err != nil {
		return mderr.New(http.StatusBadRequest, mderr.CodeSchemaValidationFailed, err.Error())
	}
	return nil
}

// Registry resolves the applicable schema pair for an arbitrary declared
// model version string.
type Registry struct {
	min      *goversion.Version
	families map[Family][]*Document // sorted ascending by version
}

// NewRegistry compiles all embedded schema documents. It is called once
// during bootstrap; a failure here is a programming error, not user input.
func NewRegistry() (*Registry, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat()

	r := &Registry{families: map[Family][]*Document{}}

	entries, err := documents.ReadDir("documents")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		base := strings.TrimSuffix(name, ".json")
		family, rawVersion, ok := strings.Cut(base, "-")
		if !ok {
			return nil, fmt.Errorf("schema document %q: name must be <family>-<version>.json", name)
		}
		v, err := goversion.NewVersion(rawVersion)
		if err != nil {
			return nil, fmt.Errorf("schema document %q: %w", name, err)
		}

		raw, err := documents.ReadFile("documents/" + name)
		if err != nil {
			return nil, err
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("schema document %q: %w", name, err)
		}
		if err := compiler.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("schema document %q: %w", name, err)
		}
		compiled, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("schema document %q: %w", name, err)
		}

		props, _ := doc.(map[string]any)["properties"].(map[string]any)
		d := &Document{
			Family:     Family(family),
			Version:    v,
			Compiled:   compiled,
			Properties: props,
		}
		r.families[d.Family] = append(r.families[d.Family], d)
		if r.min == nil || v.LessThan(r.min) {
			r.min = v
		}
	}

	for _, docs := range r.families {
		sort.Slice(docs, func(i, j int) bool { return docs[i].Version.LessThan(docs[j].Version) })
	}
	if len(r.families[FamilyContent]) == 0 || len(r.families[FamilyMeta]) == 0 {
		return nil, fmt.Errorf("schema registry requires at least one content and one meta document")
	}
	return r, nil
}

// MinVersion is the lowest model version the server supports at all.
func (r *Registry) MinVersion() string { return r.min.Original() }

// Resolve returns the schema pair applying to the requested model version:
// per family the greatest registered version that is less than or equal to
// the requested one, using semantic version ordering. Versions below the
// server minimum are rejected eagerly, before any parsing is attempted.
func (r *Registry) Resolve(requested string) (*Pair, error) {
	v, err := goversion.NewVersion(requested)
	if err != nil {
		return nil, mderr.Newf(http.StatusBadRequest, mderr.CodeUnsupportedModelVersion,
			"Invalid model version %q: %v", requested, err)
	}
	if v.LessThan(r.min) {
		return nil, mderr.Newf(http.StatusBadRequest, mderr.CodeUnsupportedModelVersion,
			"You tried to upload a dataset complying model version %s but the server requires a minimum model version of %s",
			requested, r.MinVersion())
	}

	content := r.nearest(FamilyContent, v)
	meta := r.nearest(FamilyMeta, v)
	if content == nil || meta == nil {
		return nil, mderr.Newf(http.StatusBadRequest, mderr.CodeUnsupportedModelVersion,
			"You tried to upload a dataset complying model version %s but the server requires a minimum model version of %s",
			requested, r.MinVersion())
	}
	return &Pair{Content: content, Meta: meta}, nil
}

func (r *Registry) nearest(f Family, v *goversion.Version) *Document {
	var best *Document
	for _, d := range r.families[f] {
		if d.Version.GreaterThan(v) {
			break
		}
		best = d
	}
	return best
}
