package server

import (
	"fmt"
	"io"

	"chitchat/internal/media"
	"chitchat/internal/models"

	"github.com/gofiber/fiber/v2"
)

// UploadImage handles POST /api/media/images
// @Summary Upload a post image
// @Description Stores the image and returns the URL to attach to a post
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param image formData file true "Image file"
// @Success 201 {object} media.Upload
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /media/images [post]
func (s *Server) UploadImage(c *fiber.Ctx) error {
	if !s.uploader.Enabled() {
		return s.respondError(c, models.ErrStorageDisabled)
	}

	file, err := c.FormFile("image")
	if err != nil {
		return s.respondError(c, models.NewValidationError("No file uploaded"))
	}
	if file.Size > s.uploader.MaxBytes() {
		return s.respondError(c, models.NewValidationError(
			fmt.Sprintf("File too large (max %dMB)", s.uploader.MaxBytes()/(1024*1024))))
	}

	f, err := file.Open()
	if err != nil {
		return s.respondError(c, models.NewInternalError(err))
	}
	defer func() { _ = f.Close() }()

	// One byte past the limit is enough for the uploader to reject it.
	content, err := io.ReadAll(io.LimitReader(f, s.uploader.MaxBytes()+1))
	if err != nil {
		return s.respondError(c, models.NewInternalError(err))
	}

	upload, err := s.uploader.Upload(c.UserContext(), media.UploadInput{
		UserID:      viewer(c),
		ContentType: file.Header.Get(fiber.HeaderContentType),
		Content:     content,
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(upload)
}
