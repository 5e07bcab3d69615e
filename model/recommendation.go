package model

// Recommendation 推荐结果
type Recommendation struct {
	Song       Song    `json:"song"`
	Score      float64 `json:"score"`
	Reason     string  `json:"reason"`
	Confidence int     `json:"confidence"` // 百分比，最高 95
}

// VideoInfo 视频元数据
type VideoInfo struct {
	VideoID   string `json:"videoId"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration"`
}

// StreamInfo 元数据加音频地址；找不到可用镜像时 AudioURL 为 nil（JSON 中为 null）
type StreamInfo struct {
	VideoInfo
	AudioURL        *string `json:"audioUrl"`
	StreamAvailable bool    `json:"streamAvailable"`
}
