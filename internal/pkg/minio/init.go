package minio

import (
	"context"
	"fmt"
	"gnetwork/internal/api/config"
	log "log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	// Client 全局 MinIO 客户端实例
	Client *minio.Client
	// MediaBucket 聊天附件存储桶
	MediaBucket string
)

// Init 初始化 MinIO 客户端
func Init() error {
	cfg := config.Cfg.MinIO

	var endpoint string
	var useSSL bool
	if cfg.InternalEndpoint != "" {
		endpoint = cfg.InternalEndpoint
		useSSL = cfg.InternalUseSSL
	} else {
		endpoint = cfg.ExternalEndpoint
		useSSL = true
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize minio client: %w", err)
	}

	ctx := context.Background()
	if _, err = client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("failed to connect to minio server: %w", err)
	}
	Client = client
	MediaBucket = cfg.MediaBucket
	return EnsureMediaBucket(ctx)
}

// EnsureMediaBucket 附件桶不存在时创建，并开放匿名读
func EnsureMediaBucket(ctx context.Context) error {
	exists, err := Client.BucketExists(ctx, MediaBucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err = Client.MakeBucket(ctx, MediaBucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	readOnly := fmt.Sprintf(
		`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["%s"],"Resource":["arn:aws:s3:::%s/*"]}]}`,
		"s3:GetObject", MediaBucket,
	)
	if err = Client.SetBucketPolicy(ctx, MediaBucket, readOnly); err != nil {
		return fmt.Errorf("设置存储桶策略失败: %w", err)
	}
	log.Info("已创建附件存储桶", "bucket", MediaBucket)
	return nil
}
