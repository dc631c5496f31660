package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"careercoach/internal/document"
	"careercoach/internal/media"
	"careercoach/internal/oracle"
)

const (
	defaultMaxUpload = 50 << 20 // 50 MB
	maxDocumentBytes = 5 << 20  // 5 MB
)

// readUpload reads the named multipart file, rejecting anything larger than
// limit. The content type falls back to sniffing when the client omits it.
func readUpload(c *gin.Context, field string, limit int64) ([]byte, string, string, int, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	file, err := c.FormFile(field)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", "", http.StatusRequestEntityTooLarge, errors.New("file too large")
		}
		return nil, "", "", http.StatusBadRequest, errors.New(field + " is required")
	}
	if file.Size > limit {
		return nil, "", "", http.StatusRequestEntityTooLarge, errors.New("file too large")
	}
	data, err := readFileHeader(file, limit)
	if err != nil {
		return nil, "", "", http.StatusBadRequest, errors.New("open file failed")
	}
	contentType := strings.TrimSpace(file.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, filepath.Base(file.Filename), 0, nil
}

func readFileHeader(file *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}

func (h *Handler) uploadMedia(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	data, contentType, filename, status, err := readUpload(c, "file", h.maxUpload)
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if !media.Allowed(contentType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
		return
	}
	obj, err := h.media.Save(c.Request.Context(), userID, filename, contentType, bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save file failed"})
		return
	}
	c.JSON(http.StatusCreated, obj)
}

// serveMedia streams a stored recording back to its owner.
func (h *Handler) serveMedia(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	if !media.OwnedBy(key, userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
		return
	}
	body, contentType, err := h.media.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) || errors.Is(err, media.ErrInvalidKey) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "open media failed"})
		return
	}
	defer body.Close()
	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}

// transcribe accepts either a multipart "audio" file or a JSON body naming an
// uploaded media key.
func (h *Handler) transcribe(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var audio oracle.Audio
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		data, contentType, _, status, err := readUpload(c, "audio", h.maxUpload)
		if err != nil {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		if !media.Allowed(contentType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
			return
		}
		audio = oracle.Audio{Data: data, MimeType: contentType}
	} else {
		var req struct {
			MediaKey string `json:"media_key"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.MediaKey) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "media_key is required"})
			return
		}
		if !media.OwnedBy(req.MediaKey, userID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		body, contentType, err := h.media.Open(c.Request.Context(), req.MediaKey)
		if err != nil {
			if errors.Is(err, media.ErrNotFound) || errors.Is(err, media.ErrInvalidKey) {
				c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "open media failed"})
			return
		}
		data, err := io.ReadAll(io.LimitReader(body, h.maxUpload))
		body.Close()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read media failed"})
			return
		}
		audio = oracle.Audio{Data: data, MimeType: contentType}
	}

	var transcript string
	err := h.workers.Submit(c.Request.Context(), userID, func(ctx context.Context) error {
		var err error
		transcript, err = h.interviews.Transcribe(ctx, userID, audio)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcript": transcript})
}

// extractDocument turns an uploaded job description into plain text that
// can be sent back as the job_description of a new interview.
func (h *Handler) extractDocument(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	data, contentType, filename, status, err := readUpload(c, "file", maxDocumentBytes)
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	kind := document.DetectType(contentType, filename)
	text, err := document.ExtractText(kind, data)
	if err != nil {
		if errors.Is(err, document.ErrUnsupported) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"file_name": filename,
		"mime":      kind,
		"text":      text,
	})
}
