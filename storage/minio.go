package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"RapLab/config"
	"RapLab/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// TrackPrefix 曲目音频对象的目录前缀
const TrackPrefix = "tracks/"

// AudioStore 基于 MinIO 的音频对象存储
type AudioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewAudioStore connects to MinIO and makes sure the bucket exists.
func NewAudioStore(cfg *config.Config) (*AudioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("[Storage] bucket created", logger.String("bucket", cfg.MinioBucket))
	}

	logger.Info("[Storage] MinIO ready",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))

	return &AudioStore{
		client:  client,
		bucket:  cfg.MinioBucket,
		baseURL: cfg.MediaBaseURL,
	}, nil
}

// Bucket 返回存储桶名
func (s *AudioStore) Bucket() string { return s.bucket }

// TrackObjectName builds tracks/<trackID>/<uuid><ext>.
func TrackObjectName(trackID, ext string) string {
	return path.Join(TrackPrefix, trackID, uuid.NewString()+ext)
}

// PublicURL maps an object name to the URL clients fetch it from.
func (s *AudioStore) PublicURL(objectName string) string {
	return s.baseURL + "/" + objectName
}

// PutAudio uploads r under the track's prefix and returns the object name.
func (s *AudioStore) PutAudio(ctx context.Context, trackID string, r io.Reader, size int64, ext string) (string, error) {
	objectName := TrackObjectName(trackID, ext)
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType:  ContentTypeFor(objectName),
		CacheControl: "public, max-age=86400",
	})
	if err != nil {
		return "", fmt.Errorf("上传音频失败: %w", err)
	}
	return objectName, nil
}

// Open returns a reader for objectName together with its metadata.
func (s *AudioStore) Open(ctx context.Context, objectName string) (*minio.Object, minio.ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, minio.ObjectInfo{}, err
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, minio.ObjectInfo{}, err
	}
	return obj, info, nil
}

// List 列出前缀下的对象并汇总统计
func (s *AudioStore) List(ctx context.Context, prefix string) ([]ObjectInfo, *BucketStats, error) {
	stats := &BucketStats{TypeCounts: make(map[string]int64)}
	var objects []ObjectInfo

	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		info := ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
			ETag:         object.ETag,
		}
		stats.Add(info)
		objects = append(objects, info)
	}
	return objects, stats, nil
}

// RemovePrefix deletes every object under prefix and returns how many were removed.
func (s *AudioStore) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	objects, _, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(objects))
	for _, obj := range objects {
		objectsCh <- minio.ObjectInfo{Key: obj.Key}
	}
	close(objectsCh)

	for rerr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return 0, fmt.Errorf("删除对象 %s 失败: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return len(objects), nil
}

// RemoveTrackObjects deletes the stored audio of a track.
func (s *AudioStore) RemoveTrackObjects(ctx context.Context, trackID string) error {
	n, err := s.RemovePrefix(ctx, path.Join(TrackPrefix, trackID)+"/")
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Debug("[Storage] track objects removed", logger.TrackID(trackID), logger.Int("count", n))
	}
	return nil
}
