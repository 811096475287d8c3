// Package upload filters and stores the single image file a storefront form
// may carry.
//
// Rejection is permissive: a file whose declared type is not allowed is
// dropped without error, and Result reports that explicitly so callers can
// tell "no file submitted" from "file rejected".
package upload

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/jmcleod/storefront/internal/util"
	"github.com/jmcleod/storefront/internal/uuid"
)

// DefaultField is the form field that may carry the upload.
const DefaultField = "image"

// DefaultAllowedTypes are the accepted declared content types.
var DefaultAllowedTypes = []string{"image/png", "image/jpg", "image/jpeg"}

// ErrWriteFailed wraps storage failures for an accepted file.
var ErrWriteFailed = errors.New("upload write failed")

// File describes an accepted and stored upload.
type File struct {
	Field        string `json:"field"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	StoredName   string `json:"stored_name"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
}

// Result is the outcome of filtering one request.
type Result struct {
	// File is set only when a file was accepted and stored.
	File *File
	// Rejected is true when a file was submitted under the field but its
	// declared type was not allowed.
	Rejected bool
	// RejectedType is the declared type of a rejected file.
	RejectedType string
	// RejectedName is the client supplied name of a rejected file.
	RejectedName string
}

// Accepted reports whether a file was stored.
func (r Result) Accepted() bool { return r.File != nil }

// Submitted reports whether the request carried a file under the field.
func (r Result) Submitted() bool { return r.File != nil || r.Rejected }

// Filter applies the allow-list and writes accepted files to a Storage.
type Filter struct {
	field   string
	allowed map[string]struct{}
	storage Storage
	newName func(original string) string
}

// Option configures a Filter.
type Option func(*Filter)

// WithField overrides the upload form field name.
func WithField(name string) Option {
	return func(f *Filter) { f.field = name }
}

// WithAllowedTypes replaces the content type allow-list.
func WithAllowedTypes(types ...string) Option {
	return func(f *Filter) {
		f.allowed = make(map[string]struct{}, len(types))
		for _, t := range types {
			f.allowed[strings.ToLower(t)] = struct{}{}
		}
	}
}

// NewFilter returns a Filter writing to storage.
func NewFilter(storage Storage, opts ...Option) *Filter {
	f := &Filter{
		field:   DefaultField,
		storage: storage,
		newName: StorageName,
	}
	WithAllowedTypes(DefaultAllowedTypes...)(f)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Field returns the form field the filter reads.
func (f *Filter) Field() string { return f.field }

// Allowed reports whether contentType is on the allow-list. Parameters such
// as charset are ignored.
func (f *Filter) Allowed(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	_, ok := f.allowed[mt]
	return ok
}

// Apply inspects the already parsed multipart form of r. With no file under
// the field it is a no-op. Only the first file under the field is considered.
func (f *Filter) Apply(ctx context.Context, r *http.Request) (Result, error) {
	if r.MultipartForm == nil {
		return Result{}, nil
	}
	headers := r.MultipartForm.File[f.field]
	if len(headers) == 0 {
		return Result{}, nil
	}
	fh := headers[0]
	contentType := fh.Header.Get("Content-Type")
	if !f.Allowed(contentType) {
		return Result{Rejected: true, RejectedType: contentType, RejectedName: fh.Filename}, nil
	}
	file, err := f.store(ctx, fh, contentType)
	if err != nil {
		return Result{}, err
	}
	return Result{File: file}, nil
}

func (f *Filter) store(ctx context.Context, fh *multipart.FileHeader, contentType string) (*File, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening part: %w", ErrWriteFailed, err)
	}
	defer src.Close()

	mt, _, _ := mime.ParseMediaType(contentType)
	name := f.newName(fh.Filename)
	path, err := f.storage.Write(ctx, Object{
		Name:        name,
		ContentType: mt,
		Size:        fh.Size,
		Body:        src,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return &File{
		Field:        f.field,
		OriginalName: fh.Filename,
		ContentType:  mt,
		StoredName:   name,
		Path:         path,
		Size:         fh.Size,
	}, nil
}

// Discard removes a stored file, used when the request that accepted it
// fails afterwards.
func (f *Filter) Discard(ctx context.Context, file *File) error {
	if file == nil {
		return nil
	}
	return f.storage.Remove(ctx, file.StoredName)
}

// StorageName generates a collision-resistant name for an upload by
// prefixing the sanitized original name with a time-ordered UUID.
func StorageName(original string) string {
	return uuid.New() + "-" + util.SanitizeFilename(original)
}
