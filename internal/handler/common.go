// Package handler contains the thin HTTP layer: bind, call the service,
// write the envelope. No domain rules live here.
package handler

import (
	"io"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"backend/internal/service"
	"backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

func parseID(c *gin.Context, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		return 0, apperror.BadRequest("Identificador inválido")
	}
	return uint(id), nil
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

// readImageUpload pulls the "imagen" file and "tipo_imagen" field out of a
// multipart form, enforcing the extension whitelist and the size cap.
func readImageUpload(c *gin.Context, maxSize int64) (service.UploadImageInput, error) {
	file, err := c.FormFile("imagen")
	if err != nil {
		return service.UploadImageInput{}, apperror.BadRequest("Falta el archivo de imagen")
	}
	if file.Size > maxSize {
		return service.UploadImageInput{}, apperror.BadRequest("El archivo supera el tamaño máximo permitido")
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedImageExts[ext] {
		return service.UploadImageInput{}, apperror.BadRequest("Formato de imagen no soportado (jpg, jpeg, png, webp)")
	}

	data, err := readAll(file)
	if err != nil {
		return service.UploadImageInput{}, err
	}
	return service.UploadImageInput{
		Tipo:      c.PostForm("tipo_imagen"),
		Data:      data,
		Extension: ext,
	}, nil
}

func readAll(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
