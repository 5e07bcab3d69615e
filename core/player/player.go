// Package player 内存中的播放器状态：当前歌曲、队列、随机/循环模式、音量和进度
package player

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"soundwaves/logger"
	"soundwaves/model"
)

var (
	// ErrEmptyQueue 队列为空
	ErrEmptyQueue = errors.New("queue is empty")
	// ErrIndexOutOfRange 起始位置超出队列范围
	ErrIndexOutOfRange = errors.New("queue index out of range")
)

// Recommender 电台模式的歌曲来源
type Recommender interface {
	Recommend(ctx context.Context, count int, exclude []string) ([]model.Recommendation, error)
}

// Publisher 接收每次变更后的状态快照
type Publisher interface {
	Publish(state State)
}

// Player 所有操作串行执行，每次变更都会推送快照
type Player struct {
	mu    sync.Mutex
	state State

	rand        func(n int) int
	now         func() time.Time
	recommender Recommender
	publisher   Publisher

	sleepTimer *time.Timer
	sleepGen   int
	radioBusy  bool
}

// Option 配置 Player
type Option func(*Player)

// WithRand 替换随机数来源，返回 [0, n) 的整数
func WithRand(fn func(n int) int) Option {
	return func(p *Player) { p.rand = fn }
}

// WithNow 替换时间来源
func WithNow(fn func() time.Time) Option {
	return func(p *Player) { p.now = fn }
}

// WithRecommender 设置电台模式的推荐来源
func WithRecommender(r Recommender) Option {
	return func(p *Player) { p.recommender = r }
}

// WithPublisher 设置快照推送目标
func WithPublisher(pub Publisher) Option {
	return func(p *Player) { p.publisher = pub }
}

// New 创建播放器
func New(opts ...Option) *Player {
	p := &Player{
		state: initialState(),
		rand:  rand.Intn,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Snapshot 当前状态的副本
func (p *Player) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// update 在锁内修改状态，然后推送快照；需要时为电台模式补充歌曲
func (p *Player) update(fn func(s *State) error) (State, error) {
	p.mu.Lock()
	radio, index, length := p.state.RadioMode, p.state.QueueIndex, len(p.state.Queue)
	if err := fn(&p.state); err != nil {
		p.mu.Unlock()
		return State{}, err
	}
	snapshot := p.state.clone()
	// 只有电台开关、当前位置或队列长度变化时才重新补歌
	changed := radio != p.state.RadioMode || index != p.state.QueueIndex || length != len(p.state.Queue)
	needRadio := changed && p.state.RadioMode && p.state.atQueueEnd() && p.recommender != nil && !p.radioBusy
	if needRadio {
		p.radioBusy = true
	}
	p.mu.Unlock()

	p.publish(snapshot)
	if needRadio {
		return p.extendRadio(), nil
	}
	return snapshot, nil
}

func (p *Player) publish(s State) {
	if p.publisher != nil {
		p.publisher.Publish(s)
	}
}

// extendRadio 把推荐结果追加到队尾，已在队列中的歌曲会被排除
func (p *Player) extendRadio() State {
	p.mu.Lock()
	exclude := make([]string, 0, len(p.state.Queue))
	for _, s := range p.state.Queue {
		exclude = append(exclude, s.ID)
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	recs, err := p.recommender.Recommend(ctx, radioBatch, exclude)

	p.mu.Lock()
	p.radioBusy = false
	if err != nil {
		snapshot := p.state.clone()
		p.mu.Unlock()
		logger.Warn("[Player] 电台模式获取推荐失败", logger.ErrorField(err))
		return snapshot
	}
	for _, r := range recs {
		if p.state.indexOf(r.Song.ID) < 0 {
			p.state.Queue = append(p.state.Queue, r.Song)
		}
	}
	snapshot := p.state.clone()
	p.mu.Unlock()

	if len(recs) > 0 {
		logger.Debug("[Player] 电台模式追加歌曲", logger.Int("count", len(recs)))
		p.publish(snapshot)
	}
	return snapshot
}

// Play 播放指定歌曲；歌曲在队列中时同步 QueueIndex，否则 QueueIndex 置 0
func (p *Player) Play(song model.Song) (State, error) {
	return p.update(func(s *State) error {
		idx := s.indexOf(song.ID)
		if idx < 0 {
			idx = 0
		}
		s.CurrentSong = &song
		s.QueueIndex = idx
		s.IsPlaying = true
		s.Progress = 0
		return nil
	})
}

// Pause 暂停
func (p *Player) Pause() (State, error) {
	return p.update(func(s *State) error {
		s.IsPlaying = false
		return nil
	})
}

// Resume 继续播放
func (p *Player) Resume() (State, error) {
	return p.update(func(s *State) error {
		if s.CurrentSong == nil {
			if len(s.Queue) == 0 {
				return ErrEmptyQueue
			}
			s.selectIndex(s.QueueIndex)
		}
		s.IsPlaying = true
		return nil
	})
}

// Next 下一首。随机模式均匀随机选一首（可能重复当前歌曲）；
// 顺序模式到队尾时，循环全部则回到开头，否则停在最后一首。
func (p *Player) Next() (State, error) {
	return p.update(func(s *State) error {
		if len(s.Queue) == 0 {
			return ErrEmptyQueue
		}
		prev := s.QueueIndex
		next := prev + 1
		if s.Shuffle {
			next = p.rand(len(s.Queue))
		} else if next >= len(s.Queue) {
			if s.Repeat == RepeatAll {
				next = 0
			} else {
				next = prev
			}
		}
		if next >= len(s.Queue) {
			next = len(s.Queue) - 1
		}
		s.selectIndex(next)
		s.IsPlaying = next != prev || s.Repeat == RepeatAll
		return nil
	})
}

// Previous 上一首，位于开头时回到最后一首
func (p *Player) Previous() (State, error) {
	return p.update(func(s *State) error {
		if len(s.Queue) == 0 {
			return ErrEmptyQueue
		}
		prev := s.QueueIndex - 1
		if prev < 0 {
			prev = len(s.Queue) - 1
		}
		s.selectIndex(prev)
		return nil
	})
}

// TrackEnded 当前歌曲播放结束：单曲循环时从头播放，否则切到下一首
func (p *Player) TrackEnded() (State, error) {
	p.mu.Lock()
	repeatOne := p.state.Repeat == RepeatOne && p.state.CurrentSong != nil
	p.mu.Unlock()

	if !repeatOne {
		return p.Next()
	}
	return p.update(func(s *State) error {
		s.Progress = 0
		s.IsPlaying = true
		return nil
	})
}

// Seek 跳转到指定秒数，负数按 0 处理
func (p *Player) Seek(position float64) (State, error) {
	return p.update(func(s *State) error {
		if position < 0 {
			position = 0
		}
		s.Progress = position
		return nil
	})
}

// SetVolume 设置音量，限制在 0-100
func (p *Player) SetVolume(volume int) (State, error) {
	return p.update(func(s *State) error {
		if volume < 0 {
			volume = 0
		}
		if volume > 100 {
			volume = 100
		}
		s.Volume = volume
		return nil
	})
}

// ToggleShuffle 切换随机播放
func (p *Player) ToggleShuffle() (State, error) {
	return p.update(func(s *State) error {
		s.Shuffle = !s.Shuffle
		return nil
	})
}

// CycleRepeat 切换循环模式 none -> all -> one -> none
func (p *Player) CycleRepeat() (State, error) {
	return p.update(func(s *State) error {
		s.Repeat = s.Repeat.Next()
		return nil
	})
}

// ToggleRadio 切换电台模式
func (p *Player) ToggleRadio() (State, error) {
	return p.update(func(s *State) error {
		s.RadioMode = !s.RadioMode
		return nil
	})
}

// AddToQueue 追加到队尾
func (p *Player) AddToQueue(song model.Song) (State, error) {
	return p.update(func(s *State) error {
		s.Queue = append(s.Queue, song)
		return nil
	})
}

// RemoveFromQueue 从队列移除；移除的歌曲在当前位置之前时，QueueIndex 前移一位
func (p *Player) RemoveFromQueue(songID string) (State, error) {
	return p.update(func(s *State) error {
		removed := s.indexOf(songID)
		if removed < 0 {
			return nil
		}
		queue := make([]model.Song, 0, len(s.Queue))
		for _, song := range s.Queue {
			if song.ID != songID {
				queue = append(queue, song)
			}
		}
		s.Queue = queue
		if removed < s.QueueIndex && s.QueueIndex > 0 {
			s.QueueIndex--
		}
		if s.QueueIndex >= len(s.Queue) {
			s.QueueIndex = max(0, len(s.Queue)-1)
		}
		return nil
	})
}

// SetQueue 替换队列，当前歌曲在新队列中时保持其位置，否则 QueueIndex 为 0
func (p *Player) SetQueue(songs []model.Song) (State, error) {
	return p.update(func(s *State) error {
		s.Queue = append([]model.Song{}, songs...)
		idx := 0
		if s.CurrentSong != nil {
			if i := s.indexOf(s.CurrentSong.ID); i >= 0 {
				idx = i
			}
		}
		s.QueueIndex = idx
		return nil
	})
}

// ClearQueue 清空队列并停止播放
func (p *Player) ClearQueue() (State, error) {
	return p.update(func(s *State) error {
		s.Queue = []model.Song{}
		s.QueueIndex = 0
		s.CurrentSong = nil
		s.IsPlaying = false
		s.Progress = 0
		return nil
	})
}

// PlayPlaylist 用歌单替换队列并从 start 开始播放
func (p *Player) PlayPlaylist(songs []model.Song, start int) (State, error) {
	return p.update(func(s *State) error {
		if len(songs) == 0 {
			return ErrEmptyQueue
		}
		if start < 0 || start >= len(songs) {
			return ErrIndexOutOfRange
		}
		s.Queue = append([]model.Song{}, songs...)
		s.selectIndex(start)
		s.IsPlaying = true
		return nil
	})
}

// StartSleepTimer d 之后暂停播放，重复调用会替换之前的定时器
func (p *Player) StartSleepTimer(d time.Duration) (State, error) {
	if d <= 0 {
		return p.CancelSleepTimer()
	}
	return p.update(func(s *State) error {
		if p.sleepTimer != nil {
			p.sleepTimer.Stop()
		}
		at := p.now().Add(d)
		s.SleepAt = &at

		p.sleepGen++
		gen := p.sleepGen
		p.sleepTimer = time.AfterFunc(d, func() { p.sleepFired(gen) })
		return nil
	})
}

var errStaleTimer = errors.New("stale sleep timer")

func (p *Player) sleepFired(gen int) {
	_, err := p.update(func(s *State) error {
		// 已被替换或取消的定时器不生效
		if p.sleepTimer == nil || p.sleepGen != gen {
			return errStaleTimer
		}
		p.sleepTimer = nil
		s.SleepAt = nil
		s.IsPlaying = false
		return nil
	})
	if err == nil {
		logger.Info("[Player] 定时停止，已暂停播放")
	}
}

// CancelSleepTimer 取消定时停止
func (p *Player) CancelSleepTimer() (State, error) {
	return p.update(func(s *State) error {
		if p.sleepTimer != nil {
			p.sleepTimer.Stop()
			p.sleepTimer = nil
		}
		s.SleepAt = nil
		return nil
	})
}
