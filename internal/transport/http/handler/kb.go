package handler

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"ragchat/internal/app"
	"ragchat/internal/ingest"
	"ragchat/internal/transport/http/response"
)

type KBHandler struct {
	kbService *app.KnowledgeBaseService
}

type CreateBaseRequest struct {
	Name string `json:"name" binding:"max=128"`
}

func NewKBHandler(kbService *app.KnowledgeBaseService) *KBHandler {
	return &KBHandler{kbService: kbService}
}

func (h *KBHandler) CreateBase(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	var req CreateBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	base, err := h.kbService.CreateBase(tenantID, req.Name)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create knowledge base failed")
		return
	}

	response.OK(c, base)
}

func (h *KBHandler) ListBases(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	bases, err := h.kbService.ListBases(tenantID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list knowledge bases failed")
		return
	}

	response.OK(c, bases)
}

func (h *KBHandler) DeleteBase(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	if err := h.kbService.DeleteBase(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete knowledge base failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted_base_id": c.Param("id")})
}

func (h *KBHandler) ListDocuments(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	docs, err := h.kbService.ListDocuments(tenantID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		}
		return
	}

	response.OK(c, docs)
}

func (h *KBHandler) UploadDocument(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file field")
		return
	}
	if fileHeader.Size > ingest.MaxFileSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "open uploaded file failed")
		return
	}
	defer file.Close()

	doc, err := h.kbService.UploadDocument(c.Request.Context(), app.UploadDocumentInput{
		TenantID: tenantID,
		BaseID:   c.Param("id"),
		FileName: fileHeader.Filename,
		MimeType: resolveMimeType(fileHeader.Header.Get("Content-Type"), fileHeader.Filename),
		Content:  file,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		case errors.Is(err, app.ErrQuotaExceeded):
			response.Error(c, http.StatusForbidden, response.CodeQuotaExceeded, err.Error())
		case errors.Is(err, ingest.ErrUnsupportedFormat):
			response.Error(c, http.StatusUnsupportedMediaType, response.CodeUnsupportedFormat, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload document failed")
		}
		return
	}

	response.OK(c, doc)
}

func (h *KBHandler) DeleteDocument(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	err := h.kbService.DeleteDocument(c.Request.Context(), tenantID, c.Param("id"), c.Param("doc_id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted_document_id": c.Param("doc_id")})
}

// resolveMimeType falls back to the file extension when the client sent no
// usable content type.
func resolveMimeType(contentType, fileName string) string {
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	if byExt := mime.TypeByExtension(filepath.Ext(fileName)); byExt != "" {
		return byExt
	}
	return contentType
}
