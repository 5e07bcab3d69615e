package player

import (
	"errors"
	"fmt"
	"time"

	"soundwaves/model"
)

// ErrUnknownAction 不支持的操作名
var ErrUnknownAction = errors.New("unknown player action")

// Action 名称，HTTP 路由和 WebSocket 消息共用
const (
	ActionPlay         = "play"
	ActionPause        = "pause"
	ActionResume       = "resume"
	ActionNext         = "next"
	ActionPrevious     = "previous"
	ActionEnded        = "ended"
	ActionSeek         = "seek"
	ActionVolume       = "volume"
	ActionShuffle      = "shuffle"
	ActionRepeat       = "repeat"
	ActionRadio        = "radio"
	ActionQueueAdd     = "queue-add"
	ActionQueueRemove  = "queue-remove"
	ActionQueueSet     = "queue-set"
	ActionQueueClear   = "queue-clear"
	ActionPlayPlaylist = "play-playlist"
	ActionSleep        = "sleep"
	ActionCancelSleep  = "sleep-cancel"
)

// Command 一次播放器操作及其参数
type Command struct {
	Action   string       `json:"action"`
	Song     *model.Song  `json:"song,omitempty"`
	SongID   string       `json:"songId,omitempty"`
	Songs    []model.Song `json:"songs,omitempty"`
	Start    int          `json:"startIndex,omitempty"`
	Position float64      `json:"position,omitempty"`
	Volume   *int         `json:"volume,omitempty"`
	Minutes  float64      `json:"minutes,omitempty"`
}

// SleepPresets 定时停止的预设分钟数
var SleepPresets = []int{5, 15, 30, 45, 60, 120}

// Dispatch 执行命令并返回变更后的状态
func (p *Player) Dispatch(cmd Command) (State, error) {
	switch cmd.Action {
	case ActionPlay:
		if cmd.Song == nil {
			return State{}, fmt.Errorf("%s: song is required", cmd.Action)
		}
		return p.Play(*cmd.Song)
	case ActionPause:
		return p.Pause()
	case ActionResume:
		return p.Resume()
	case ActionNext:
		return p.Next()
	case ActionPrevious:
		return p.Previous()
	case ActionEnded:
		return p.TrackEnded()
	case ActionSeek:
		return p.Seek(cmd.Position)
	case ActionVolume:
		if cmd.Volume == nil {
			return State{}, fmt.Errorf("%s: volume is required", cmd.Action)
		}
		return p.SetVolume(*cmd.Volume)
	case ActionShuffle:
		return p.ToggleShuffle()
	case ActionRepeat:
		return p.CycleRepeat()
	case ActionRadio:
		return p.ToggleRadio()
	case ActionQueueAdd:
		if cmd.Song == nil {
			return State{}, fmt.Errorf("%s: song is required", cmd.Action)
		}
		return p.AddToQueue(*cmd.Song)
	case ActionQueueRemove:
		if cmd.SongID == "" {
			return State{}, fmt.Errorf("%s: songId is required", cmd.Action)
		}
		return p.RemoveFromQueue(cmd.SongID)
	case ActionQueueSet:
		return p.SetQueue(cmd.Songs)
	case ActionQueueClear:
		return p.ClearQueue()
	case ActionPlayPlaylist:
		return p.PlayPlaylist(cmd.Songs, cmd.Start)
	case ActionSleep:
		return p.StartSleepTimer(time.Duration(cmd.Minutes * float64(time.Minute)))
	case ActionCancelSleep:
		return p.CancelSleepTimer()
	default:
		return State{}, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}
