package cmd

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"RapLab/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看和管理MinIO存储桶中的音频文件，支持列出文件、查看统计信息、删除目录。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := storage.NewAudioStore(cfg)
		if err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		switch {
		case minioDelete:
			if minioPrefix == "" {
				log.Fatal("删除操作需要指定目录前缀")
			}
			n, err := store.RemovePrefix(ctx, minioPrefix)
			if err != nil {
				log.Fatalf("删除目录失败: %v", err)
			}
			fmt.Printf("已删除 %d 个对象 (前缀: %s)\n", n, minioPrefix)

		case minioStats:
			_, stats, err := store.List(ctx, minioPrefix)
			if err != nil {
				log.Fatalf("获取存储桶统计信息失败: %v", err)
			}
			printBucketStats(stats)

		default:
			objects, stats, err := store.List(ctx, minioPrefix)
			if err != nil {
				log.Fatalf("列出文件失败: %v", err)
			}
			for _, obj := range objects {
				fmt.Printf("%-64s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("\n共 %d 个文件，总大小 %s\n", stats.TotalObjects, storage.FormatSize(stats.TotalSize))
		}
	},
}

func printBucketStats(stats *storage.BucketStats) {
	fmt.Printf("文件总数: %d\n", stats.TotalObjects)
	fmt.Printf("总大小:   %s\n", storage.FormatSize(stats.TotalSize))
	if !stats.LastModified.IsZero() {
		fmt.Printf("最后修改: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
	}

	exts := make([]string, 0, len(stats.TypeCounts))
	for ext := range stats.TypeCounts {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		name := ext
		if name == "" {
			name = "(无扩展名)"
		}
		fmt.Printf("  %-12s %d\n", name, stats.TypeCounts[ext])
	}
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", storage.TrackPrefix, "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	minioCmd.Example = `  # 列出所有曲目音频
  raplab minio

  # 显示存储桶统计信息
  raplab minio -s -p ""

  # 删除某首曲目的全部音频
  raplab minio -d -p "tracks/<id>/"`
}
