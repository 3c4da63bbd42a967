// Package tasks 定义了通过 Kafka 传递的异步任务结构。
package tasks

// PreviewUploadTask 是预览图持久化任务。
// ImageURL 和 ImageBase64 二选一：抓取发现的远程图用 URL，
// 客户端直接上传的截图用 Base64。
type PreviewUploadTask struct {
	ContentID   string `json:"content_id"`
	UserID      string `json:"user_id"`
	ImageURL    string `json:"image_url,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	MIMEType    string `json:"mime_type,omitempty"`
}
