package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

func setupUploadRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/api/upload-photo", handler.UploadPhoto)
	return r
}

func multipartPhoto(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("photo", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUploadPhotoSuccess(t *testing.T) {
	dir := t.TempDir()
	handler := NewMessageHandler(new(mocks.MessageRepositoryMock), dir, "/media/photos")
	router := setupUploadRouter(handler)

	body, contentType := multipartPhoto(t, "cat.png", pngHeader, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload-photo", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, strings.HasPrefix(resp["url"], "/media/photos/"))
	assert.True(t, strings.HasSuffix(resp["url"], ".png"))

	stored := filepath.Join(dir, strings.TrimPrefix(resp["url"], "/media/photos/"))
	_, err := os.Stat(stored)
	assert.NoError(t, err)
}

func TestUploadPhotoRejectsNonImage(t *testing.T) {
	handler := NewMessageHandler(new(mocks.MessageRepositoryMock), t.TempDir(), "/media/photos")
	router := setupUploadRouter(handler)

	body, contentType := multipartPhoto(t, "notes.txt", []byte("plain text"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload-photo", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "File must be an image", resp["error"])
}

func TestUploadPhotoMissingFile(t *testing.T) {
	handler := NewMessageHandler(new(mocks.MessageRepositoryMock), t.TempDir(), "/media/photos")
	router := setupUploadRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/upload-photo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadPhotoAttachesToMessage(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(messages, t.TempDir(), "/media/photos")
	router := setupUploadRouter(handler)

	messages.On("AttachPhoto", mock.Anything, 9, 1, mock.AnythingOfType("string")).Return(nil).Once()

	body, contentType := multipartPhoto(t, "cat.png", pngHeader, map[string]string{"message_id": "9"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload-photo", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messages.AssertExpectations(t)
}
