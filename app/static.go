package app

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// imagesHandler serves stored uploads from dir. Directories and missing
// files get the Not-Found response rather than a listing.
func (a *App) imagesHandler(prefix, dir string) http.Handler {
	fsys := os.DirFS(dir)
	static := http.StripPrefix(prefix, http.FileServer(http.FS(fsys)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cleanPath := strings.TrimPrefix(path.Clean("/"+strings.TrimPrefix(r.URL.Path, prefix)), "/")
		if cleanPath == "" || cleanPath == "." {
			a.notFound(w, r)
			return
		}
		info, err := fs.Stat(fsys, cleanPath)
		if err != nil || info.IsDir() {
			a.notFound(w, r)
			return
		}
		static.ServeHTTP(w, r)
	})
}
