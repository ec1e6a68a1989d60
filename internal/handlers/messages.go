package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

const maxPhotoSize = 5 << 20

// MessageHandler serves message history, read acknowledgements and photo
// uploads.
type MessageHandler struct {
	messages     repositories.MessageRepository
	photoDir     string
	photoBaseURL string
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, photoDir, photoBaseURL string) *MessageHandler {
	return &MessageHandler{messages: messages, photoDir: photoDir, photoBaseURL: photoBaseURL}
}

// ListMessages returns the conversation between the caller and ?receiver=<id>,
// both directions, oldest first. Without a receiver param the list is empty.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	userID := c.GetInt("userID")

	receiver := c.Query("receiver")
	if receiver == "" {
		c.JSON(http.StatusOK, gin.H{"messages": []models.Message{}})
		return
	}
	peerID, err := strconv.Atoi(receiver)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receiver id"})
		return
	}

	msgs, err := h.messages.GetConversation(c.Request.Context(), userID, peerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkRead acknowledges every unread message from sender_id to the caller.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	var req struct {
		SenderID int `json:"sender_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if err := h.messages.MarkConversationRead(c.Request.Context(), req.SenderID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark messages read"})
		return
	}

	c.Status(http.StatusNoContent)
}

// UploadPhoto stores an image under a unique name and optionally attaches it
// to one of the caller's messages.
func (h *MessageHandler) UploadPhoto(c *gin.Context) {
	file, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No photo provided"})
		return
	}
	if file.Size > maxPhotoSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read photo"})
		return
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil || !isImage(mtype.String()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File must be an image"})
		return
	}

	name := uuid.NewString() + filepath.Ext(file.Filename)
	if err := os.MkdirAll(h.photoDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store photo"})
		return
	}
	if err := c.SaveUploadedFile(file, filepath.Join(h.photoDir, name)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store photo"})
		return
	}

	url := h.photoBaseURL + "/" + name

	// Optional attachment to an already-sent message owned by the caller.
	if messageID := c.PostForm("message_id"); messageID != "" {
		id, err := strconv.Atoi(messageID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
			return
		}
		userID := c.GetInt("userID")
		if err := h.messages.AttachPhoto(c.Request.Context(), id, userID, url); err != nil {
			if errors.Is(err, repositories.ErrMessageNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not attach photo"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func isImage(mime string) bool {
	return len(mime) > 6 && mime[:6] == "image/"
}
