package importer

import (
	"context"
	"fmt"
	"time"

	"soundwaves/logger"

	"github.com/fsnotify/fsnotify"
)

const minTick = 10 * time.Millisecond

// Watcher 监听目录，新文件写入稳定后导入
type Watcher struct {
	importer *Importer
	dir      string

	// Settle 文件最后一次写入后等待的时间
	Settle time.Duration
}

// NewWatcher 创建目录监听器
func NewWatcher(importer *Importer, dir string) *Watcher {
	return &Watcher{importer: importer, dir: dir, Settle: 500 * time.Millisecond}
}

// tick 检查间隔为 Settle 的四分之一，不低于 minTick
func (w *Watcher) tick() time.Duration {
	if d := w.Settle / 4; d > minTick {
		return d
	}
	return minTick
}

// Run 先导入已有文件，然后持续监听直到 ctx 结束
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("监听目录失败: %w", err)
	}

	if n, err := w.importer.ImportDir(ctx, w.dir); err != nil {
		logger.Warn("[Importer] 扫描已有文件失败", logger.String("dir", w.dir), logger.ErrorField(err))
	} else if n > 0 {
		logger.Info("[Importer] 已导入已有文件", logger.String("dir", w.dir), logger.Int("count", n))
	}

	logger.Info("[Importer] 开始监听目录", logger.String("dir", w.dir))

	// 文件稳定性检查的延迟队列
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && IsSupported(event.Name) {
				pending[event.Name] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < w.Settle {
					continue // 文件可能还在写入
				}
				delete(pending, path)
				if _, err := w.importer.ImportFile(ctx, path); err != nil {
					logger.Warn("[Importer] 导入失败", logger.String("path", path), logger.ErrorField(err))
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("[Importer] 文件监听错误", logger.ErrorField(err))
		}
	}
}
