package dto

// MediaUploadDTO 上传结果，可直接作为消息的媒体字段
type MediaUploadDTO struct {
	MediaURL      string            `json:"mediaUrl"`
	MediaType     string            `json:"mediaType"`
	MediaMetadata *MediaMetadataDTO `json:"mediaMetadata"`
}
