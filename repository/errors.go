package repository

import "errors"

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrReadOnlyPlaylist 非自建歌单不允许修改成员
	ErrReadOnlyPlaylist = errors.New("playlist is read-only")
	// ErrInvalidOrder 排序列表与歌单成员不一致
	ErrInvalidOrder = errors.New("order does not match playlist members")
	// ErrInvalidPlaylist 创建歌单时字段不合法
	ErrInvalidPlaylist = errors.New("invalid playlist")
)
