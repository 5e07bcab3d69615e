// Package importer 把本地音频文件导入曲库（Source=local）
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"soundwaves/logger"
	"soundwaves/model"

	"github.com/google/uuid"
	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupported 不支持的文件类型
var ErrUnsupported = errors.New("unsupported audio file")

const maxFileSize = 200 << 20

var supportedExt = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".wav":  true,
	".ogg":  true,
	".flac": true,
}

// Saver 导入结果写入曲库
type Saver interface {
	SaveSong(ctx context.Context, song model.Song, blob []byte) (*model.Song, error)
}

// Importer 读取本地文件并保存为本地歌曲
type Importer struct {
	library Saver
}

// New 创建 Importer
func New(library Saver) *Importer {
	return &Importer{library: library}
}

// IsSupported 根据扩展名判断
func IsSupported(path string) bool {
	return supportedExt[strings.ToLower(filepath.Ext(path))]
}

// SongID 同一路径总是得到同一个 ID，重复导入会覆盖而不是新增
func SongID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String()
}

// ImportFile 导入单个文件
func (i *Importer) ImportFile(ctx context.Context, path string) (*model.Song, error) {
	if !IsSupported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnsupported, path)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio file: %s", filepath.Base(path))
	}

	artist, title := parseFileName(path)
	song := model.Song{
		ID:     SongID(path),
		Title:  title,
		Artist: artist,
		Album:  "Local Files",
		Source: model.SourceLocal,
	}
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		song.Duration = mp3Duration(path)
	}

	saved, err := i.library.SaveSong(ctx, song, data)
	if err != nil {
		return nil, err
	}
	logger.Info("[Importer] 已导入本地文件",
		logger.String("path", path),
		logger.String("songId", saved.ID),
		logger.Int("duration", saved.Duration))
	return saved, nil
}

// ImportDir 导入目录下所有支持的文件（不递归），返回成功数量
func (i *Importer) ImportDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	imported := 0
	for _, e := range entries {
		if e.IsDir() || !IsSupported(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		if _, err := i.ImportFile(ctx, filepath.Join(dir, e.Name())); err != nil {
			logger.Warn("[Importer] 导入失败", logger.String("file", e.Name()), logger.ErrorField(err))
			continue
		}
		imported++
	}
	return imported, nil
}

// parseFileName "Artist - Title.mp3" 拆成两部分，否则整个文件名作为标题
func parseFileName(path string) (artist, title string) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	if parts := strings.SplitN(name, " - ", 2); len(parts) == 2 {
		a, t := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if a != "" && t != "" {
			return a, t
		}
	}
	if name == "" {
		name = "Unknown Title"
	}
	return "Unknown Artist", name
}

// mp3Duration 解码失败时返回 0
func mp3Duration(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		logger.Debug("[Importer] mp3 解码失败", logger.String("path", path), logger.ErrorField(err))
		return 0
	}
	// 输出为 16bit 双声道 PCM，每个采样 4 字节
	length := decoder.Length()
	rate := decoder.SampleRate()
	if length <= 0 || rate <= 0 {
		return 0
	}
	return int(length / int64(4*rate))
}
