package marketplace

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
)

func uploadDir() string {
	if dir := os.Getenv("UPLOAD_DIR"); dir != "" {
		return dir
	}
	return "uploads"
}

// requireServiceOwner loads the service and checks the caller is its creator.
// A false return means the error response has already been written and the
// handler must return nil.
func requireServiceOwner(c echo.Context, serviceID string) (*Service, bool) {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		httperr.Unauthorized(c, "unauthorized")
		return nil, false
	}
	if _, err := uuid.Parse(serviceID); err != nil {
		httperr.BadRequest(c, "invalid service id")
		return nil, false
	}

	ctx := c.Request().Context()
	svc, err := fetchService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httperr.NotFound(c, "service not found")
		} else {
			httperr.Internal(c, "failed to fetch service")
		}
		return nil, false
	}
	if svc.Deleted {
		httperr.NotFound(c, "service not found")
		return nil, false
	}
	owner, err := ownerUserID(ctx, svc)
	if err != nil {
		httperr.Internal(c, "failed to resolve service owner")
		return nil, false
	}
	if owner != uid {
		httperr.Forbidden(c, "only the service creator can manage images")
		return nil, false
	}
	return svc, true
}

// ListServiceImages returns the image filenames attached to a service.
// GET /services/:id/images
func ListServiceImages(c echo.Context) error {
	serviceID := c.Param("id")
	if _, err := uuid.Parse(serviceID); err != nil {
		return httperr.BadRequest(c, "invalid service id")
	}

	rows, err := db.Conn.Query(c.Request().Context(),
		`SELECT id, filename, created_at FROM service_images
         WHERE service_id = $1 ORDER BY created_at ASC`,
		serviceID,
	)
	if err != nil {
		return httperr.Internal(c, "could not fetch service images")
	}
	defer rows.Close()

	type image struct {
		ID        string    `json:"id"`
		Filename  string    `json:"filename"`
		CreatedAt time.Time `json:"created_at"`
	}
	images := []image{}
	for rows.Next() {
		var img image
		if err := rows.Scan(&img.ID, &img.Filename, &img.CreatedAt); err != nil {
			return httperr.Internal(c, "failed to parse image record")
		}
		images = append(images, img)
	}

	return c.JSON(http.StatusOK, echo.Map{"images": images})
}

// CreateServiceImage stores an uploaded image for a service. Multipart field
// name: image.
// PUT /services/:id/images
func CreateServiceImage(c echo.Context) error {
	svc, ok := requireServiceOwner(c, c.Param("id"))
	if !ok {
		return nil
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return httperr.BadRequest(c, "multipart field image is required")
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
	default:
		return httperr.BadRequest(c, "unsupported image format")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return httperr.Internal(c, "could not read upload")
	}
	defer src.Close()

	if err := os.MkdirAll(uploadDir(), 0o755); err != nil {
		return httperr.Internal(c, "could not prepare upload directory")
	}

	imageID := uuid.New().String()
	filename := svc.ID + "-" + imageID + ext
	dst, err := os.Create(filepath.Join(uploadDir(), filename))
	if err != nil {
		return httperr.Internal(c, "could not store upload")
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return httperr.Internal(c, "could not store upload")
	}

	_, err = db.Conn.Exec(c.Request().Context(),
		`INSERT INTO service_images (id, service_id, filename) VALUES ($1, $2, $3)`,
		imageID, svc.ID, filename,
	)
	if err != nil {
		os.Remove(filepath.Join(uploadDir(), filename))
		return httperr.Internal(c, "could not record image")
	}

	return c.JSON(http.StatusOK, echo.Map{"image_id": imageID, "filename": filename})
}

// DeleteServiceImage removes one image from a service.
// DELETE /services/:id/images/:image
func DeleteServiceImage(c echo.Context) error {
	svc, ok := requireServiceOwner(c, c.Param("id"))
	if !ok {
		return nil
	}

	imageID := c.Param("image")
	if _, err := uuid.Parse(imageID); err != nil {
		return httperr.BadRequest(c, "invalid image id")
	}

	var filename string
	err := db.Conn.QueryRow(c.Request().Context(),
		`DELETE FROM service_images WHERE id = $1 AND service_id = $2 RETURNING filename`,
		imageID, svc.ID,
	).Scan(&filename)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "image not found")
		}
		return httperr.Internal(c, "could not delete image")
	}

	// Removing the file is best-effort; the record is gone either way.
	_ = os.Remove(filepath.Join(uploadDir(), filename))

	return c.JSON(http.StatusOK, echo.Map{"image_id": imageID})
}
