package cmd

import (
	"fmt"
	"log"

	"RapLab/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "创建或更新数据库表结构",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		fmt.Printf("数据库: %s\n", cfg.DBDriver)

		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("无法连接数据库: %v", err)
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrate(db.GormDB); err != nil {
			log.Fatalf("迁移失败: %v", err)
		}
		fmt.Println("数据库迁移完成。")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
