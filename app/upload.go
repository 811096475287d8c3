package app

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/jmcleod/storefront/upload"
)

// multipartMemory is how much of a multipart body is held in memory before
// parts spill to temporary files.
const multipartMemory = 1 << 20

// parseBody consumes the request body to completion before any pipeline
// stage runs, so the CSRF guard and upload filter both see the whole form.
func (a *App) parseBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody || !hasForm(r) {
			next.ServeHTTP(w, r)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, a.maxBodyBytes)

		var err error
		if isMultipart(r) {
			err = r.ParseMultipartForm(multipartMemory)
			if r.MultipartForm != nil {
				defer r.MultipartForm.RemoveAll()
			}
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			a.fail(w, r, fmt.Errorf("parsing request body: %w", err))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hasForm(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

func isMultipart(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "multipart/form-data"
}

// filterUpload stores an allowed image under the upload field and records the
// outcome on the request context. A disallowed file is dropped silently.
func (a *App) filterUpload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.uploads == nil || r.MultipartForm == nil {
			next.ServeHTTP(w, r)
			return
		}
		res, err := a.uploads.Apply(r.Context(), r)
		if err != nil {
			a.metrics.storeFailure("upload")
			a.fail(w, r, err)
			return
		}
		switch {
		case res.Accepted():
			if rw := boundaryWriter(w); rw != nil {
				file := res.File
				rw.onFailure(func() { a.discardUpload(r, file) })
			}
			a.metrics.upload("accepted")
			a.audit.log(AuditUploadAccepted, r,
				slog.String("stored_name", res.File.StoredName),
				slog.String("content_type", res.File.ContentType),
				slog.Int64("size", res.File.Size),
			)
		case res.Rejected:
			a.metrics.upload("rejected")
			a.audit.log(AuditUploadRejected, r,
				slog.String("content_type", res.RejectedType),
				slog.String("original_name", res.RejectedName),
			)
		}
		rc := requestContextFrom(r.Context()).withUpload(res)
		next.ServeHTTP(w, r.WithContext(rc.into(r.Context())))
	})
}

// discardUpload removes a file stored for a request that later failed, so a
// 500 leaves nothing behind in upload storage.
func (a *App) discardUpload(r *http.Request, file *upload.File) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), a.storeTimeout)
	defer cancel()
	if err := a.uploads.Discard(ctx, file); err != nil {
		a.metrics.storeFailure("upload")
		a.logger.ErrorContext(ctx, "discarding upload of failed request",
			slog.String("stored_name", file.StoredName),
			slog.String("error", err.Error()),
		)
		return
	}
	a.metrics.upload("discarded")
	a.audit.log(AuditUploadDiscarded, r, slog.String("stored_name", file.StoredName))
}
