package server

import (
	"net/http"
	"strings"

	"RapLab/logger"
	"RapLab/storage"

	"github.com/minio/minio-go/v7"
)

// handleMedia streams a stored audio object. Range requests are honored.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		writeError(w, http.StatusServiceUnavailable, "media storage not configured")
		return
	}
	objectName := strings.TrimPrefix(r.URL.Path, "/media/")
	if objectName == "" || !strings.HasPrefix(objectName, storage.TrackPrefix) || strings.Contains(objectName, "..") {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	obj, info, err := s.media.Open(r.Context(), objectName)
	if err != nil {
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			logger.Warn("[Media] failed to open object", logger.String("object", objectName), logger.ErrorField(err))
		}
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer obj.Close()

	contentType := info.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.ContentTypeFor(objectName)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000") // 对象名带 uuid，内容不变

	http.ServeContent(w, r, objectName, info.LastModified, obj)
}
