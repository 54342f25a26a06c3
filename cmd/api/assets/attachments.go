package assets

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	app "github.com/mark3748/hwtrack-go/cmd/api/app"
)

// Attachment is a stored document for an asset: a purchase receipt, a photo of
// damage accompanying a repair report, and the like.
type Attachment struct {
	ID         string `json:"id"`
	AssetID    string `json:"asset_id"`
	Filename   string `json:"filename"`
	Bytes      int64  `json:"bytes"`
	MIME       string `json:"mime"`
	UploadedBy string `json:"uploaded_by"`
	CreatedAt  string `json:"created_at"`
}

// ListAttachments handles GET /assets/:id/attachments
func ListAttachments(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		assetID := c.Param("id")
		const q = `select id::text, asset_id::text, filename, bytes, mime, uploaded_by, created_at::text
			from asset_attachments where asset_id=$1 order by created_at asc`
		rows, err := a.DB.Query(c.Request.Context(), q, assetID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer rows.Close()
		out := []Attachment{}
		for rows.Next() {
			var att Attachment
			if err := rows.Scan(&att.ID, &att.AssetID, &att.Filename, &att.Bytes,
				&att.MIME, &att.UploadedBy, &att.CreatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			out = append(out, att)
		}
		c.JSON(http.StatusOK, out)
	}
}

// UploadAttachment handles POST /assets/:id/attachments (multipart form,
// field "file"). The object is stored under a generated key; the original
// filename is kept as metadata only.
func UploadAttachment(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.M == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "object store not configured"})
			return
		}
		assetID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
			return
		}
		var exists bool
		if err := a.DB.QueryRow(c.Request.Context(),
			`select exists(select 1 from assets where id=$1)`, assetID).Scan(&exists); err != nil || !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
			return
		}

		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
			return
		}
		defer f.Close()

		mime := fh.Header.Get("Content-Type")
		if mime == "" {
			mime = "application/octet-stream"
		}
		objectKey := uuid.NewString() + filepath.Ext(fh.Filename)
		if _, err := a.M.PutObject(c.Request.Context(), a.Cfg.MinIOBucket, objectKey, f, fh.Size,
			minio.PutObjectOptions{ContentType: mime}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store object"})
			return
		}

		const q = `
			insert into asset_attachments (asset_id, object_key, filename, bytes, mime, uploaded_by)
			values ($1,$2,$3,$4,$5,$6)
			returning id::text, asset_id::text, filename, bytes, mime, uploaded_by, created_at::text`
		var att Attachment
		if err := a.DB.QueryRow(c.Request.Context(), q, assetID, objectKey,
			filepath.Base(fh.Filename), fh.Size, mime, actorName(c)).
			Scan(&att.ID, &att.AssetID, &att.Filename, &att.Bytes, &att.MIME,
				&att.UploadedBy, &att.CreatedAt); err != nil {
			_ = a.M.RemoveObject(c.Request.Context(), a.Cfg.MinIOBucket, objectKey, minio.RemoveObjectOptions{})
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, att)
	}
}

// DownloadAttachment handles GET /assets/:id/attachments/:attID. Filesystem
// stores are served directly; MinIO redirects to a short-lived presigned URL.
func DownloadAttachment(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var objectKey, filename, mime string
		err := a.DB.QueryRow(c.Request.Context(),
			`select object_key, filename, mime from asset_attachments where id=$1 and asset_id=$2`,
			c.Param("attID"), c.Param("id")).Scan(&objectKey, &filename, &mime)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		switch store := a.M.(type) {
		case *app.FsObjectStore:
			path, err := store.ObjectFilePath(a.Cfg.MinIOBucket, objectKey)
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
			c.Header("Content-Type", mime)
			c.File(path)
		case *minio.Client:
			u, err := store.PresignedGetObject(c.Request.Context(), a.Cfg.MinIOBucket, objectKey,
				15*time.Minute, url.Values{
					"response-content-disposition": []string{fmt.Sprintf("attachment; filename=%q", filename)},
				})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "presign"})
				return
			}
			c.Redirect(http.StatusTemporaryRedirect, u.String())
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "object store not configured"})
		}
	}
}

// DeleteAttachment handles DELETE /assets/:id/attachments/:attID
func DeleteAttachment(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var objectKey string
		err := a.DB.QueryRow(c.Request.Context(),
			`select object_key from asset_attachments where id=$1 and asset_id=$2`,
			c.Param("attID"), c.Param("id")).Scan(&objectKey)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if a.M != nil {
			_ = a.M.RemoveObject(c.Request.Context(), a.Cfg.MinIOBucket, objectKey, minio.RemoveObjectOptions{})
		}
		if _, err := a.DB.Exec(c.Request.Context(),
			`delete from asset_attachments where id=$1`, c.Param("attID")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
