package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ragchat/internal/app"
	"ragchat/internal/ingest"
	"ragchat/internal/transport/http/response"
)

type TempDocHandler struct {
	tempDocService *app.TempDocService
}

func NewTempDocHandler(tempDocService *app.TempDocService) *TempDocHandler {
	return &TempDocHandler{tempDocService: tempDocService}
}

func (h *TempDocHandler) Upload(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	sessionID := c.Param("id")
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

	tempFile, err := h.tempDocService.Upload(c.Request.Context(), app.UploadTempDocInput{
		TenantID:  tenantID,
		SessionID: sessionID,
		FileName:  fileHeader.Filename,
		MimeType:  resolveMimeType(fileHeader.Header.Get("Content-Type"), fileHeader.Filename),
		Content:   file,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, ingest.ErrUnsupportedFormat):
			response.Error(c, http.StatusUnsupportedMediaType, response.CodeUnsupportedFormat, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload temp document failed")
		}
		return
	}

	response.OK(c, tempFile)
}

func (h *TempDocHandler) List(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	files, err := h.tempDocService.ListLive(tenantID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list temp documents failed")
		}
		return
	}

	response.OK(c, files)
}

func (h *TempDocHandler) Cleanup(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	if err := h.tempDocService.Cleanup(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "cleanup temp documents failed")
		}
		return
	}

	response.OK(c, gin.H{"session_id": c.Param("id")})
}
