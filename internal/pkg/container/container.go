// Package container extracts the two metadata documents and the file
// manifest from an uploaded container. The format is detected from the
// file's magic bytes, never from its name.
package container

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/pkg/mderr"
)

// Format is the detected container format, also used as the storage file
// extension.
type Format string

const (
	FormatZip  Format = "zdc"
	FormatHDF5 Format = "hdf5"
)

// Reader is the format specific adapter over one uploaded container.
type Reader interface {
	Format() Format

	// ContentDocument returns the decoded content.json document.
	ContentDocument() (map[string]any, error)
	// MetaDocument returns the decoded meta.json document.
	MetaDocument() (map[string]any, error)
	// FileManifest enumerates the files inside the container. JSON members
	// keep their parsed content.
	FileManifest() ([]model.File, error)
}

var hdf5Magic = []byte("\x89HDF\r\n\x1a\n")

// Open detects the container format and returns the matching reader.
// Declared but unimplemented formats report 501, unknown byte signatures
// report 415.
func Open(data []byte) (Reader, error) {
	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("application/zip"):
		return newZipReader(data)
	case mtype.Is("application/x-hdf") || bytes.HasPrefix(data, hdf5Magic):
		return &hdf5Reader{}, nil
	default:
		return nil, mderr.New(http.StatusUnsupportedMediaType, mderr.CodeUnsupportedContainerType,
			"File format has to be hdf5 or zip!")
	}
}

type zipReader struct {
	zr *zip.Reader
}

func newZipReader(data []byte) (*zipReader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, mderr.Newf(http.StatusBadRequest, mderr.CodeSchemaValidationFailed,
			"Broken zip container: %v", err)
	}
	return &zipReader{zr: zr}, nil
}

func (r *zipReader) Format() Format { return FormatZip }

func (r *zipReader) ContentDocument() (map[string]any, error) {
	return r.readDocument("content.json")
}

func (r *zipReader) MetaDocument() (map[string]any, error) {
	return r.readDocument("meta.json")
}

func (r *zipReader) readDocument(name string) (map[string]any, error) {
	f, err := r.zr.Open(name)
	if err != nil {
		return nil, mderr.Newf(http.StatusBadRequest, mderr.CodeSchemaValidationFailed,
			"Container does not contain a readable %s", name)
	}
	defer f.Close()

	var doc map[string]any
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, mderr.Newf(http.StatusBadRequest, mderr.CodeSchemaValidationFailed,
			"Container member %s is not valid JSON: %v", name, err)
	}
	return doc, nil
}

func (r *zipReader) FileManifest() ([]model.File, error) {
	files := make([]model.File, 0, len(r.zr.File))
	for _, member := range r.zr.File {
		if member.FileInfo().IsDir() {
			continue
		}
		file := model.File{
			Name: member.Name,
			Size: int64(member.UncompressedSize64),
		}
		if strings.HasSuffix(member.Name, ".json") {
			raw, err := readMember(member)
			if err != nil {
				return nil, err
			}
			// Only well formed JSON content is captured; the manifest row
			// itself is kept either way.
			if json.Valid(raw) {
				file.Content = raw
			}
		}
		files = append(files, file)
	}
	return files, nil
}

func readMember(member *zip.File) ([]byte, error) {
	f, err := member.Open()
	if err != nil {
		return nil, mderr.Newf(http.StatusBadRequest, mderr.CodeSchemaValidationFailed,
			"Container member %s is not readable: %v", member.Name, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// hdf5Reader is the declared but not yet implemented binary container
// format.
type hdf5Reader struct{}

func (r *hdf5Reader) Format() Format { return FormatHDF5 }

func (r *hdf5Reader) ContentDocument() (map[string]any, error) { return nil, errNotImplemented() }
func (r *hdf5Reader) MetaDocument() (map[string]any, error)    { return nil, errNotImplemented() }
func (r *hdf5Reader) FileManifest() ([]model.File, error)      { return nil, errNotImplemented() }

func errNotImplemented() error {
	return mderr.New(http.StatusNotImplemented, mderr.CodeNotImplementedFormat,
		"The server does not support to parse hdf5 files yet.")
}
