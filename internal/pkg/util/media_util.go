package util

import (
	"gnetwork/internal/pkg/consts"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

// DetectContentType 按文件内容识别 MIME，不信任客户端声明的类型，读取后回到文件开头
func DetectContentType(r io.ReadSeeker) (string, error) {
	mime, err := mimetype.DetectReader(r)
	if err != nil {
		return "", err
	}
	if _, err = r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mime.String(), nil
}

// MediaTypeOf 根据 MIME 推断消息媒体类型，图片为 image、音频为 voice，其余为 file
func MediaTypeOf(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, consts.MimePrefixImage+"/"):
		return consts.MediaTypeImage
	case strings.HasPrefix(mimeType, consts.MimePrefixAudio+"/"):
		return consts.MediaTypeVoice
	default:
		return consts.MediaTypeFile
	}
}

// ImageSize 解码图片获取宽高，考虑 EXIF 方向
func ImageSize(r io.Reader) (int, int, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}
