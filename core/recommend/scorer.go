// Package recommend 根据收听记录为曲库打分排序
package recommend

import (
	"math"
	"sort"
	"time"

	"soundwaves/model"
)

// 各项得分权重，总和为 1
const (
	WeightFrequency   = 0.30
	WeightCompletion  = 0.25
	WeightRecency     = 0.20
	WeightSimilarity  = 0.15
	WeightTimeContext = 0.10
)

const (
	// recentWindow 计算相似度时参考的最近播放条数
	recentWindow = 20
	// recencyHorizon 超过这个时间没播放，recency 记为 0
	recencyHorizon = 30 * 24 * time.Hour

	neutralCompletion = 0.5
	baseRecency       = 0.3
	neutralSimilarity = 0.5
	maxConfidence     = 95
)

// Breakdown 单首歌的各项得分
type Breakdown struct {
	Frequency   float64 `json:"frequency"`
	Completion  float64 `json:"completion"`
	Recency     float64 `json:"recency"`
	Similarity  float64 `json:"similarity"`
	TimeContext float64 `json:"timeContext"`
	Total       float64 `json:"total"`
}

// Reason 取第一个满足阈值的推荐理由
func (b Breakdown) Reason() string {
	switch {
	case b.Frequency > 0.5:
		return "You play this often"
	case b.Completion > 0.7:
		return "You usually finish this song"
	case b.Recency > 0.7:
		return "Recently played"
	case b.Similarity > 0.5:
		return "Similar to your favorites"
	case b.TimeContext > 0.6:
		return "Perfect for this time of day"
	}
	return "Recommended for you"
}

// Confidence 百分比，最高 95
func (b Breakdown) Confidence() int {
	c := int(math.Round(b.Total * 100))
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}

type songStats struct {
	plays      int
	completed  int
	lastPlayed time.Time
}

// Scorer 基于曲库快照和收听记录窗口打分，不修改任何数据
type Scorer struct {
	catalog []model.Song
	history []model.HistoryEntry
	now     func() time.Time

	stats         map[string]*songStats
	maxPlays      int
	recentArtists map[string]bool
	recentSources map[model.Source]bool
	hasRecent     bool
}

// Option 配置 Scorer
type Option func(*Scorer)

// WithNow 替换时间来源
func WithNow(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// NewScorer 创建打分器。history 按播放时间倒序（最新在前）。
func NewScorer(catalog []model.Song, history []model.HistoryEntry, opts ...Option) *Scorer {
	s := &Scorer{
		catalog:       catalog,
		history:       history,
		now:           time.Now,
		stats:         make(map[string]*songStats),
		recentArtists: make(map[string]bool),
		recentSources: make(map[model.Source]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, e := range history {
		st, ok := s.stats[e.Song.ID]
		if !ok {
			st = &songStats{}
			s.stats[e.Song.ID] = st
		}
		st.plays++
		if e.Completed {
			st.completed++
		}
		if e.PlayedAt.After(st.lastPlayed) {
			st.lastPlayed = e.PlayedAt
		}
	}

	s.maxPlays = 1
	for _, song := range catalog {
		if st, ok := s.stats[song.ID]; ok && st.plays > s.maxPlays {
			s.maxPlays = st.plays
		}
	}

	recent := history
	if len(recent) > recentWindow {
		recent = recent[:recentWindow]
	}
	recentIDs := make(map[string]bool, len(recent))
	for _, e := range recent {
		recentIDs[e.Song.ID] = true
	}
	// 只统计仍在曲库中的歌曲
	for _, song := range catalog {
		if recentIDs[song.ID] {
			s.recentArtists[song.Artist] = true
			s.recentSources[song.Source] = true
			s.hasRecent = true
		}
	}
	return s
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Frequency 播放次数 / 曲库内最大播放次数
func (s *Scorer) Frequency(songID string) float64 {
	st, ok := s.stats[songID]
	if !ok {
		return 0
	}
	return clamp01(float64(st.plays) / float64(s.maxPlays))
}

// Completion 完整播放比例，没播放过为 0.5
func (s *Scorer) Completion(songID string) float64 {
	st, ok := s.stats[songID]
	if !ok || st.plays == 0 {
		return neutralCompletion
	}
	return float64(st.completed) / float64(st.plays)
}

// Recency 最近一次播放后 30 天内线性衰减，没播放过为 0.3
func (s *Scorer) Recency(songID string) float64 {
	st, ok := s.stats[songID]
	if !ok {
		return baseRecency
	}
	elapsed := s.now().Sub(st.lastPlayed)
	return clamp01(1 - float64(elapsed)/float64(recencyHorizon))
}

// Similarity 与最近 20 条播放中仍在曲库的歌曲比较歌手/来源，没有这样的歌曲时为 0.5
func (s *Scorer) Similarity(song model.Song) float64 {
	if !s.hasRecent {
		return neutralSimilarity
	}
	score := 0.0
	if s.recentArtists[song.Artist] {
		score += 0.6
	}
	if s.recentSources[song.Source] {
		score += 0.4
	}
	return clamp01(score)
}

// TimeContext 按当前小时和时长的固定查表
func (s *Scorer) TimeContext(song model.Song) float64 {
	hour := s.now().Hour()
	long := song.Duration > 240
	short := song.Duration < 180

	switch {
	case hour >= 6 && hour < 12:
		if short {
			return 0.8
		}
		return 0.4
	case hour >= 12 && hour < 18:
		return 0.6
	case hour >= 18 && hour < 22:
		if long {
			return 0.8
		}
		return 0.5
	default:
		if long {
			return 0.9
		}
		return 0.3
	}
}

// Score 计算单首歌的各项得分和加权总分
func (s *Scorer) Score(song model.Song) Breakdown {
	b := Breakdown{
		Frequency:   s.Frequency(song.ID),
		Completion:  s.Completion(song.ID),
		Recency:     s.Recency(song.ID),
		Similarity:  s.Similarity(song),
		TimeContext: s.TimeContext(song),
	}
	b.Total = clamp01(b.Frequency*WeightFrequency +
		b.Completion*WeightCompletion +
		b.Recency*WeightRecency +
		b.Similarity*WeightSimilarity +
		b.TimeContext*WeightTimeContext)
	return b
}

// Plays 歌曲在窗口内的播放次数
func (s *Scorer) Plays(songID string) int {
	if st, ok := s.stats[songID]; ok {
		return st.plays
	}
	return 0
}

// Recommend 按总分降序返回前 count 首，跳过 exclude 中的歌曲
func (s *Scorer) Recommend(count int, exclude []string) []model.Recommendation {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	recs := make([]model.Recommendation, 0, len(s.catalog))
	for _, song := range s.catalog {
		if skip[song.ID] {
			continue
		}
		b := s.Score(song)
		recs = append(recs, model.Recommendation{
			Song:       song,
			Score:      b.Total,
			Reason:     b.Reason(),
			Confidence: b.Confidence(),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	return limit(recs, count)
}

// SongSimilarity 两首歌的相似度：歌手 0.5 + 来源 0.3 + 时长相差不到 60 秒 0.2
func SongSimilarity(a, b model.Song) float64 {
	score := 0.0
	if a.Artist == b.Artist {
		score += 0.5
	}
	if a.Source == b.Source {
		score += 0.3
	}
	diff := a.Duration - b.Duration
	if diff < 0 {
		diff = -diff
	}
	if diff < 60 {
		score += 0.2
	}
	return score
}

// Similar 曲库中与 song 最相近的 count 首（不含自身）
func (s *Scorer) Similar(song model.Song, count int) []model.Song {
	type scored struct {
		song  model.Song
		score float64
	}
	candidates := make([]scored, 0, len(s.catalog))
	for _, c := range s.catalog {
		if c.ID == song.ID {
			continue
		}
		candidates = append(candidates, scored{song: c, score: SongSimilarity(song, c)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	out := make([]model.Song, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.song)
	}
	return limit(out, count)
}

// moodScores 每种心情的静态规则
var moodScores = map[string]func(model.Song) float64{
	"energetic": func(s model.Song) float64 { return pick(s.Duration < 200, 0.8, 0.4) },
	"chill":     func(s model.Song) float64 { return pick(s.Duration > 240, 0.8, 0.4) },
	"focus":     func(s model.Song) float64 { return pick(s.Source == model.SourceOnline, 0.7, 0.5) },
	"party":     func(s model.Song) float64 { return pick(s.Source == model.SourceYouTube, 0.7, 0.5) },
	"sad":       func(s model.Song) float64 { return pick(s.Duration > 250, 0.7, 0.4) },
	"happy":     func(s model.Song) float64 { return pick(s.Duration < 220, 0.7, 0.4) },
}

// Moods 支持的心情
func Moods() []string {
	moods := make([]string, 0, len(moodScores))
	for m := range moodScores {
		moods = append(moods, m)
	}
	sort.Strings(moods)
	return moods
}

// Mood 按心情规则排序；未知心情所有歌曲都是 0.5
func (s *Scorer) Mood(mood string, count int) []model.Recommendation {
	rule, ok := moodScores[mood]
	if !ok {
		rule = func(model.Song) float64 { return 0.5 }
	}

	recs := make([]model.Recommendation, 0, len(s.catalog))
	for _, song := range s.catalog {
		score := rule(song)
		recs = append(recs, model.Recommendation{
			Song:       song,
			Score:      score,
			Reason:     "Matches your " + mood + " mood",
			Confidence: int(math.Round(score * 100)),
		})
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	return limit(recs, count)
}

// Discovery 播放次数少于 2 的歌曲，保持曲库顺序
func (s *Scorer) Discovery(count int) []model.Recommendation {
	recs := make([]model.Recommendation, 0)
	for _, song := range s.catalog {
		switch s.Plays(song.ID) {
		case 0:
			recs = append(recs, model.Recommendation{Song: song, Score: 0.8, Reason: "You haven't played this yet", Confidence: 85})
		case 1:
			recs = append(recs, model.Recommendation{Song: song, Score: 0.5, Reason: "Give this another listen", Confidence: 60})
		}
	}
	return limit(recs, count)
}

func pick(cond bool, yes, no float64) float64 {
	if cond {
		return yes
	}
	return no
}

func limit[T any](items []T, count int) []T {
	if count > 0 && len(items) > count {
		return items[:count]
	}
	return items
}
