package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// ObjectInfo 对象信息
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ContentType  string    `json:"contentType"`
	ETag         string    `json:"etag"`
}

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64            `json:"totalObjects"`
	TotalSize    int64            `json:"totalSize"`
	LastModified time.Time        `json:"lastModified"`
	TypeCounts   map[string]int64 `json:"typeCounts"`
}

// Add folds one object into the totals.
func (b *BucketStats) Add(obj ObjectInfo) {
	b.TotalObjects++
	b.TotalSize += obj.Size
	if obj.LastModified.After(b.LastModified) {
		b.LastModified = obj.LastModified
	}
	if b.TypeCounts != nil {
		b.TypeCounts[fileExtension(obj.Key)]++
	}
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// ContentTypeFor 根据扩展名推断音频 MIME 类型
func ContentTypeFor(name string) string {
	switch fileExtension(name) {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "flac":
		return "audio/flac"
	case "m4a":
		return "audio/mp4"
	case "ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

func fileExtension(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	if ext == "" {
		return "unknown"
	}
	return ext
}
