package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/chatgw/internal/authlimit"
	"github.com/MrWong99/chatgw/pkg/objectstore"
)

const maxUploadBytes = 32 << 20 // 32 MiB

// uploadRequest is the multipart-free JSON upload body: the client already
// has the bytes in memory (from a canvas attachment or drag-drop), so this
// mirrors the WebSocket chat frame's own base64-file convention rather than
// introducing a second, multipart upload path.
type uploadRequest struct {
	Filename string `json:"filename" validate:"required"`
	Content  string `json:"content_base64" validate:"required"`
}

type uploadResponse struct {
	Key   string `json:"key"`
	Token string `json:"token,omitempty"`
}

func (routes *Routes) uploadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := authlimit.IdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := routes.validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "content_base64 is not valid base64")
		return
	}

	obj, err := routes.deps.Store.Upload(r.Context(), id.Email, req.Filename, body, "", objectstore.SourceUser, nil)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	resp := uploadResponse{Key: obj.Key}
	if routes.deps.Tokens != nil {
		token, err := routes.mintDownloadToken(id.Email, obj.Key)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "could not mint download token")
			return
		}
		resp.Token = token
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

func (routes *Routes) downloadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := authlimit.IdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	key := chi.URLParam(r, "*")
	if routes.deps.Tokens != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeJSONError(w, http.StatusForbidden, "missing download token")
			return
		}
		if _, err := routes.deps.Tokens.VerifyForKey(token, key); err != nil {
			writeJSONError(w, http.StatusForbidden, "invalid or expired download token")
			return
		}
	}

	content, err := routes.deps.Store.Get(r.Context(), id.Email, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "file not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "download failed")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", content.Filename))
	if content.ContentType != "" {
		w.Header().Set("Content-Type", content.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content.Body)
}

func (routes *Routes) mintDownloadToken(userEmail, key string) (string, error) {
	if routes.deps.DownloadTTL > 0 {
		return routes.deps.Tokens.IssueWithTTL(userEmail, key, routes.deps.DownloadTTL)
	}
	return routes.deps.Tokens.Issue(userEmail, key)
}
