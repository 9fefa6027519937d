package handler

import (
	"gnetwork/internal/api/dto"
	"gnetwork/internal/pkg/consts"
	"gnetwork/internal/pkg/minio"
	"gnetwork/internal/pkg/response"
	"gnetwork/internal/pkg/util"
	"gnetwork/internal/service"
	"io"
	log "log/slog"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 可执行文件不作为聊天附件
var rejectedMimeTypes = []string{
	"application/x-elf",
	"application/x-executable",
	"application/x-msdownload",
	"application/vnd.microsoft.portable-executable",
}

type MediaHandler struct {
	maxBytes int64
}

func NewMediaHandler(maxUploadMB int64) *MediaHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &MediaHandler{maxBytes: maxUploadMB << 20}
}

// Upload 上传聊天附件，返回值可直接填入发送消息的媒体字段
func (s *MediaHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if file.Size > s.maxBytes {
		response.Error(c, service.ErrFileTooLarge)
		return
	}

	reader, err := file.Open()
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	defer func() { _ = reader.Close() }()

	contentType, err := util.DetectContentType(reader)
	if err != nil {
		response.Error(c, service.ErrFileNotSupported)
		return
	}
	for _, rejected := range rejectedMimeTypes {
		if strings.HasPrefix(contentType, rejected) {
			response.Error(c, service.ErrFileNotSupported)
			return
		}
	}
	mediaType := util.MediaTypeOf(contentType)

	meta := &dto.MediaMetadataDTO{
		Filename: file.Filename,
		Size:     file.Size,
		MimeType: contentType,
	}
	if mediaType == consts.MediaTypeImage {
		w, h, err := util.ImageSize(reader)
		if err != nil {
			log.WarnContext(ctx, "解析图片尺寸失败", "filename", file.Filename, "err", err)
		} else {
			meta.Width, meta.Height = w, h
		}
		if _, err = reader.Seek(0, io.SeekStart); err != nil {
			response.Error(c, service.UnExpectedError)
			return
		}
	}

	objectName := time.Now().Format("2006/01/02/") + uuid.NewString() + path.Ext(file.Filename)
	fileKey, err := minio.UploadFile(ctx, objectName, reader, file.Size, contentType)
	if err != nil {
		log.ErrorContext(ctx, "MinIO 上传失败", "err", err)
		response.Error(c, service.UnExpectedError)
		return
	}

	log.InfoContext(ctx, "附件上传成功", "fileKey", fileKey, "type", contentType, "userID", c.GetString("user_id"))
	response.Success(c, &dto.MediaUploadDTO{
		MediaURL:      minio.GetPublicURL(fileKey),
		MediaType:     mediaType,
		MediaMetadata: meta,
	})
}
