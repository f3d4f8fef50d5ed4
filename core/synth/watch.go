package synth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"RapLab/logger"

	"github.com/fsnotify/fsnotify"
)

// settleDelay 文件在此时间内无写入才视为写完
const settleDelay = 100 * time.Millisecond

// waitForFile blocks until path exists and has stopped growing.
// The parent directory must exist.
func waitForFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("监听目录失败: %w", err)
	}

	// 监听建立之前文件可能已经写好
	var lastEvent time.Time
	if _, err := os.Stat(path); err == nil {
		lastEvent = time.Now()
	}

	ticker := time.NewTicker(settleDelay / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if filepath.Clean(event.Name) == filepath.Clean(path) &&
				event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				lastEvent = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			logger.Warn("[Synth] 文件监听错误", logger.ErrorField(err))

		case <-ticker.C:
			if lastEvent.IsZero() || time.Since(lastEvent) < settleDelay {
				continue
			}
			if info, err := os.Stat(path); err == nil && info.Size() > 0 {
				return nil
			}
		}
	}
}
