package upload

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type part struct {
	field, filename, contentType, body string
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("title", "Book"))
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/admin/add-product", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, r.ParseMultipartForm(1<<20))
	t.Cleanup(func() { r.MultipartForm.RemoveAll() })
	return r
}

func TestApplyAcceptsImageTypes(t *testing.T) {
	for _, ct := range []string{"image/png", "image/jpg", "image/jpeg", "IMAGE/PNG"} {
		t.Run(ct, func(t *testing.T) {
			dir := t.TempDir()
			f := NewFilter(NewDiskStorage(dir))
			r := multipartRequest(t, part{"image", "cat.png", ct, "pixels"})

			res, err := f.Apply(context.Background(), r)
			require.NoError(t, err)
			require.True(t, res.Accepted())
			assert.True(t, res.Submitted())
			assert.False(t, res.Rejected)

			file := res.File
			assert.Equal(t, "cat.png", file.OriginalName)
			assert.Equal(t, strings.ToLower(ct), file.ContentType)
			assert.True(t, strings.HasSuffix(file.StoredName, "-cat.png"))
			assert.NotEqual(t, "cat.png", file.StoredName)
			assert.Equal(t, filepath.Join(dir, file.StoredName), file.Path)
			assert.Equal(t, int64(6), file.Size)

			data, err := os.ReadFile(file.Path)
			require.NoError(t, err)
			assert.Equal(t, "pixels", string(data))
		})
	}
}

func TestApplyRejectsOtherTypes(t *testing.T) {
	for _, ct := range []string{"application/pdf", "image/gif", "text/plain", ""} {
		t.Run(ct, func(t *testing.T) {
			dir := t.TempDir()
			f := NewFilter(NewDiskStorage(dir))
			r := multipartRequest(t, part{"image", "doc.pdf", ct, "%PDF"})

			res, err := f.Apply(context.Background(), r)
			require.NoError(t, err)
			assert.False(t, res.Accepted())
			assert.True(t, res.Rejected)
			assert.True(t, res.Submitted())
			assert.Nil(t, res.File)
			assert.Equal(t, "doc.pdf", res.RejectedName)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries, "rejected uploads must not touch the destination")
		})
	}
}

func TestApplyNoFile(t *testing.T) {
	f := NewFilter(NewDiskStorage(t.TempDir()))

	res, err := f.Apply(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.False(t, res.Submitted())

	r := multipartRequest(t, part{"other", "cat.png", "image/png", "x"})
	res, err = f.Apply(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, res.Submitted())
	assert.Equal(t, "Book", r.FormValue("title"))
}

func TestApplyOnlyFirstFile(t *testing.T) {
	dir := t.TempDir()
	f := NewFilter(NewDiskStorage(dir))
	r := multipartRequest(t,
		part{"image", "a.png", "image/png", "a"},
		part{"image", "b.png", "image/png", "b"},
	)
	res, err := f.Apply(context.Background(), r)
	require.NoError(t, err)
	require.True(t, res.Accepted())
	assert.Equal(t, "a.png", res.File.OriginalName)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestApplyCustomFieldAndTypes(t *testing.T) {
	f := NewFilter(NewDiskStorage(t.TempDir()), WithField("photo"), WithAllowedTypes("image/webp"))
	assert.Equal(t, "photo", f.Field())

	r := multipartRequest(t, part{"photo", "p.webp", "image/webp", "w"})
	res, err := f.Apply(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, res.Accepted())

	assert.False(t, f.Allowed("image/png"))
}

type failingStorage struct{}

func (failingStorage) Write(context.Context, Object) (string, error) {
	return "", errors.New("disk full")
}

func (failingStorage) Remove(context.Context, string) error { return nil }

func TestApplyWriteFailure(t *testing.T) {
	f := NewFilter(failingStorage{})
	r := multipartRequest(t, part{"image", "cat.png", "image/png", "x"})

	res, err := f.Apply(context.Background(), r)
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.False(t, res.Accepted())
}

func TestApplyUnwritableDestination(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "images")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	f := NewFilter(NewDiskStorage(blocker))
	r := multipartRequest(t, part{"image", "cat.png", "image/png", "x"})
	_, err := f.Apply(context.Background(), r)
	assert.ErrorIs(t, err, ErrWriteFailed)
}

func TestConcurrentUploadsSameName(t *testing.T) {
	dir := t.TempDir()
	f := NewFilter(NewDiskStorage(dir))

	const n = 16
	reqs := make([]*http.Request, n)
	for i := range reqs {
		reqs[i] = multipartRequest(t, part{"image", "same.jpg", "image/jpeg", "img"})
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		names = make(map[string]struct{})
	)
	for _, r := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.Apply(context.Background(), r)
			if !assert.NoError(t, err) || !assert.True(t, res.Accepted()) {
				return
			}
			mu.Lock()
			names[res.File.StoredName] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, names, n)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, n)
}

func TestDiskStorageRefusesOverwriteAndTraversal(t *testing.T) {
	dir := t.TempDir()
	d := NewDiskStorage(dir)
	ctx := context.Background()

	_, err := d.Write(ctx, Object{Name: "x.png", Body: strings.NewReader("1")})
	require.NoError(t, err)
	_, err = d.Write(ctx, Object{Name: "x.png", Body: strings.NewReader("2")})
	assert.Error(t, err)

	_, err = d.Write(ctx, Object{Name: "../escape.png", Body: strings.NewReader("3")})
	assert.Error(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "x.png"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
}

func TestDiscardRemovesStoredFile(t *testing.T) {
	dir := t.TempDir()
	f := NewFilter(NewDiskStorage(dir))
	r := multipartRequest(t, part{"image", "cat.png", "image/png", "x"})

	res, err := f.Apply(context.Background(), r)
	require.NoError(t, err)
	require.True(t, res.Accepted())
	_, err = os.Stat(filepath.Join(dir, res.File.StoredName))
	require.NoError(t, err)

	require.NoError(t, f.Discard(context.Background(), res.File))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A second discard of the same file is a no-op.
	assert.NoError(t, f.Discard(context.Background(), res.File))
	assert.NoError(t, f.Discard(context.Background(), nil))
}

func TestDiskStorageRemoveRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	outside := filepath.Join(base, "keep.png")
	require.NoError(t, os.WriteFile(outside, []byte("1"), 0o644))

	d := NewDiskStorage(filepath.Join(base, "images"))
	assert.Error(t, d.Remove(context.Background(), "../keep.png"))
	assert.Error(t, d.Remove(context.Background(), ""))
	_, err := os.Stat(outside)
	assert.NoError(t, err)
}

func TestStorageName(t *testing.T) {
	a := StorageName("../my cat.png")
	b := StorageName("../my cat.png")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, "-my_cat.png"))
	assert.NotContains(t, a, "/")
}
