package handler

import (
	"net/http"
	"path"
	"strings"
)

// Uploads は /uploads/ 配下のコミット済み画像を配信する。
// ディレクトリ一覧とドットファイル（.staging 等）は 404 にする。
func Uploads(prefix, dir string) http.Handler {
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := path.Clean("/" + strings.TrimPrefix(r.URL.Path, prefix))
		if strings.HasSuffix(r.URL.Path, "/") || strings.Contains(clean, "/.") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
		files.ServeHTTP(w, r)
	})
}
