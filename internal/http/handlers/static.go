package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/storage"
)

// StaticObject serves a locally stored object behind a signed URL.
func (a *App) StaticObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := chi.URLParam(r, "bucket"), chi.URLParam(r, "*")
	q := r.URL.Query()
	if err := a.Files.Verify(bucket, key, q.Get("expires"), q.Get("sig")); err != nil {
		if errors.Is(err, storage.ErrInvalidSignature) {
			a.error(w, http.StatusForbidden, "forbidden", "invalid or expired signature")
			return
		}
		a.fail(w, r, err)
		return
	}
	f, err := a.Files.Open(bucket, key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
