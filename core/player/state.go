package player

import (
	"time"

	"soundwaves/model"
)

// RepeatMode 循环模式
type RepeatMode string

const (
	RepeatNone RepeatMode = "none"
	RepeatAll  RepeatMode = "all"
	RepeatOne  RepeatMode = "one"
)

// Next none -> all -> one -> none
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatNone:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatNone
	}
}

const (
	DefaultVolume = 80
	// radioBatch 电台模式每次追加的歌曲数
	radioBatch = 5
)

// State 播放器状态快照
type State struct {
	CurrentSong *model.Song  `json:"currentSong"`
	IsPlaying   bool         `json:"isPlaying"`
	Progress    float64      `json:"progress"` // 秒
	Volume      int          `json:"volume"`   // 0-100
	Shuffle     bool         `json:"shuffle"`
	Repeat      RepeatMode   `json:"repeat"`
	Queue       []model.Song `json:"queue"`
	QueueIndex  int          `json:"queueIndex"`
	RadioMode   bool         `json:"radioMode"`
	SleepAt     *time.Time   `json:"sleepAt,omitempty"`
}

func initialState() State {
	return State{
		Volume: DefaultVolume,
		Repeat: RepeatNone,
		Queue:  []model.Song{},
	}
}

// clone 深拷贝，快照与内部状态互不影响
func (s State) clone() State {
	out := s
	out.Queue = append([]model.Song(nil), s.Queue...)
	if out.Queue == nil {
		out.Queue = []model.Song{}
	}
	if s.CurrentSong != nil {
		song := *s.CurrentSong
		out.CurrentSong = &song
	}
	if s.SleepAt != nil {
		at := *s.SleepAt
		out.SleepAt = &at
	}
	return out
}

func (s *State) indexOf(songID string) int {
	for i, song := range s.Queue {
		if song.ID == songID {
			return i
		}
	}
	return -1
}

// selectIndex 切到队列中第 i 首并从头播放
func (s *State) selectIndex(i int) {
	song := s.Queue[i]
	s.CurrentSong = &song
	s.QueueIndex = i
	s.Progress = 0
}

// atQueueEnd 电台模式判断：当前已是队列最后一首
func (s *State) atQueueEnd() bool {
	return len(s.Queue) > 0 && s.QueueIndex >= len(s.Queue)-1
}
