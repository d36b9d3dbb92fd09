package pinning

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes the upload gateway over HTTP
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates the gateway handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the gateway under the given route group
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/ipfs/upload", h.Upload)
}

// Upload accepts a multipart body with an optional `metadata` JSON field
// and zero or more `files` parts, pins the content and returns the final
// content id.
func (h *Handler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart form data"})
		return
	}

	var metadata []byte
	if v := c.PostForm("metadata"); v != "" {
		metadata = []byte(v)
	}

	var files []UploadFile
	var closers []interface{ Close() error }
	defer func() {
		for _, f := range closers {
			f.Close()
		}
	}()
	for _, header := range form.File["files"] {
		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file part: " + header.Filename})
			return
		}
		closers = append(closers, f)
		files = append(files, UploadFile{Name: header.Filename, Size: header.Size, Content: f})
	}

	cid, err := h.service.Upload(c.Request.Context(), metadata, files, c.GetString("identity"))
	if err != nil {
		if errors.Is(err, ErrEmptyUpload) || errors.Is(err, ErrInvalidMetadata) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Warn("upload failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contentId": cid})
}
