// Package storage 提供了与对象存储服务（MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"brainly-go/internal/config"
	"brainly-go/pkg/log"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，不存在则创建
	ctx := context.Background()
	exists, err := MinioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := MinioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}
}

// UploadFromURL 下载一张图片并上传到 MinIO，返回可公开访问的 URL。
// 任何失败都返回空字符串，预览图属于可降级的副作用，不影响主流程。
func UploadFromURL(ctx context.Context, cfg config.MinIOConfig, imageURL string) string {
	if imageURL == "" {
		return ""
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		log.Warnf("[Storage] 创建预览图下载请求失败: %v", err)
		return ""
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		log.Warnf("[Storage] 下载预览图失败, url: %s, error: %v", imageURL, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warnf("[Storage] 下载预览图返回非 200 状态码: %s", resp.Status)
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		log.Warnf("[Storage] 读取预览图内容失败: %v", err)
		return ""
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	ext := ".jpg"
	if u, perr := url.Parse(imageURL); perr == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}

	objectName := cfg.PreviewPrefix + uuid.NewString() + ext
	return putPreviewObject(ctx, cfg, objectName, data, contentType)
}

// UploadFromBase64 将 base64 编码的图片直接上传到 MinIO，返回可公开访问的 URL。
// 任何失败都返回空字符串。
func UploadFromBase64(ctx context.Context, cfg config.MinIOConfig, base64Data, mimeType string) string {
	if base64Data == "" {
		return ""
	}

	// 去掉 data:image/xxx;base64, 前缀（若存在）
	if idx := strings.Index(base64Data, "base64,"); idx >= 0 {
		base64Data = base64Data[idx+len("base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		log.Warnf("[Storage] 解码 base64 预览图失败: %v", err)
		return ""
	}

	ext := "jpg"
	if parts := strings.SplitN(mimeType, "/", 2); len(parts) == 2 && parts[1] != "" {
		ext = parts[1]
	}

	objectName := cfg.PreviewPrefix + uuid.NewString() + "." + ext
	return putPreviewObject(ctx, cfg, objectName, data, mimeType)
}

// putPreviewObject 上传对象并拼接公开访问 URL。
func putPreviewObject(ctx context.Context, cfg config.MinIOConfig, objectName string, data []byte, contentType string) string {
	_, err := MinioClient.PutObject(ctx, cfg.BucketName, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		log.Warnf("[Storage] 上传预览图到 MinIO 失败, object: %s, error: %v", objectName, err)
		return ""
	}

	publicURL := publicObjectURL(cfg, objectName)
	log.Infof("[Storage] 预览图上传成功: %s", publicURL)
	return publicURL
}

// publicObjectURL 构造对象的公开访问 URL。
// 配置了 PublicBaseURL 时优先使用（例如挂了 CDN 的场景）。
func publicObjectURL(cfg config.MinIOConfig, objectName string) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/") + "/" + objectName
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, cfg.Endpoint, cfg.BucketName, objectName)
}
