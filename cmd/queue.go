package cmd

import (
	"fmt"
	"log"
	"time"

	"RapLab/db"
	"RapLab/model"
	"RapLab/repository"

	"github.com/spf13/cobra"
)

var queueResetAfter time.Duration

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "生成队列管理",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "按状态统计队列条目",
	Run: func(cmd *cobra.Command, args []string) {
		queue := openQueue()
		defer db.CloseGormDB()

		stats, err := queue.Stats(cmd.Context())
		if err != nil {
			log.Fatalf("统计失败: %v", err)
		}
		for _, state := range []model.QueueState{model.QueuePending, model.QueueRunning, model.QueueDone, model.QueueDead} {
			fmt.Printf("%-8s %d\n", state, stats[state])
		}
	},
}

var queueResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "把卡住的 running 条目重置为 pending",
	Run: func(cmd *cobra.Command, args []string) {
		queue := openQueue()
		defer db.CloseGormDB()

		n, err := queue.ResetRunning(cmd.Context(), time.Now().Add(-queueResetAfter))
		if err != nil {
			log.Fatalf("重置失败: %v", err)
		}
		fmt.Printf("已重置 %d 个条目\n", n)
	},
}

func openQueue() repository.QueueRepository {
	cfg := loadConfig()
	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("无法连接数据库: %v", err)
	}
	return repository.NewGormQueueRepository(db.GormDB)
}

func init() {
	queueResetCmd.Flags().DurationVar(&queueResetAfter, "older-than", 10*time.Minute, "只重置超过该时长未更新的条目")
	queueCmd.AddCommand(queueStatsCmd, queueResetCmd)
	rootCmd.AddCommand(queueCmd)
}

