package plugin

import (
	"context"
	"errors"

	"soundwaves/model"
)

// ErrNoStream 没有可用的播放地址
var ErrNoStream = errors.New("no playable stream")

// MusicPlugin 音乐插件接口
// 定义音乐搜索、播放等统一操作
type MusicPlugin interface {
	// Search 搜索歌曲
	// query: 搜索关键词
	// limit: 返回数量限制
	Search(ctx context.Context, query string, limit int) ([]model.Song, error)

	// Trending 热门歌曲
	Trending(ctx context.Context, limit int) ([]model.Song, error)

	// GetDetail 获取歌曲详情
	GetDetail(ctx context.Context, songID string) (*model.Song, error)

	// GetPlayURL 获取播放地址
	GetPlayURL(ctx context.Context, songID string) (string, error)

	// GetSource 获取插件来源标识
	GetSource() model.Source
}

// MusicPluginManager 音乐插件管理器
type MusicPluginManager struct {
	plugins map[model.Source]MusicPlugin
}

// NewMusicPluginManager 创建插件管理器
func NewMusicPluginManager() *MusicPluginManager {
	return &MusicPluginManager{
		plugins: make(map[model.Source]MusicPlugin),
	}
}

// Register 注册插件
func (m *MusicPluginManager) Register(plugin MusicPlugin) {
	m.plugins[plugin.GetSource()] = plugin
}

// Get 获取指定来源的插件
func (m *MusicPluginManager) Get(source model.Source) MusicPlugin {
	return m.plugins[source]
}

// GetDefault 获取默认插件（YouTube）
func (m *MusicPluginManager) GetDefault() MusicPlugin {
	return m.plugins[model.SourceYouTube]
}

// Search 使用默认插件搜索，没有插件时返回空结果
func (m *MusicPluginManager) Search(ctx context.Context, query string, limit int) ([]model.Song, error) {
	plugin := m.GetDefault()
	if plugin == nil {
		return []model.Song{}, nil
	}
	return plugin.Search(ctx, query, limit)
}

// Trending 使用默认插件获取热门
func (m *MusicPluginManager) Trending(ctx context.Context, limit int) ([]model.Song, error) {
	plugin := m.GetDefault()
	if plugin == nil {
		return []model.Song{}, nil
	}
	return plugin.Trending(ctx, limit)
}
