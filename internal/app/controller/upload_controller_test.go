package controller

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadController_PresignReturnPhoto(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/uploads/return-photos/presign", "", map[string]interface{}{
		"filename":     "damage.jpg",
		"content_type": "image/jpeg",
		"size":         1024,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "returns/x.jpg", body["key"])
	assert.NotEmpty(t, body["upload_url"])

	w = s.do(t, http.MethodPost, "/api/v1/uploads/return-photos/presign", "", map[string]interface{}{
		"filename":     "notes.pdf",
		"content_type": "application/pdf",
		"size":         1024,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/uploads/return-photos/presign", "", map[string]interface{}{
		"filename": "damage.jpg",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
