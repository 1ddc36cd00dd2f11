package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/liuscraft/orion-mixer/internal/logging"
	"github.com/liuscraft/orion-mixer/internal/mixer"
)

// Target 通道选择参数：channel_id 优先，否则作用于 app_id 下的所有通道
type Target struct {
	ChannelID string `json:"channel_id"`
	AppID     string `json:"app_id"`
}

type volumeArgs struct {
	Target
	Volume float64 `json:"volume"`
}

type mutedArgs struct {
	Target
	Muted bool `json:"muted"`
}

type panArgs struct {
	Target
	Pan float64 `json:"pan"`
}

// NewTools 创建混音器工具集，供 ReAct Agent 调用
//
// Lookup failures are reported in the tool result rather than as errors so the model can
// correct itself within the same turn.
func NewTools(m mixer.Mixer) ([]tool.BaseTool, error) {
	getState, err := utils.InferTool("get_mixer_state",
		"获取混音器当前状态：主音量、主静音以及每个通道的 id、app_id、名称、音量、静音、声像和实际增益",
		func(_ context.Context, _ struct{}) (mixer.StateView, error) {
			return m.Snapshot().View(), nil
		})
	if err != nil {
		return nil, err
	}

	setMasterVolume, err := utils.InferTool("set_master_volume",
		"设置主音量，volume 取值 0 到 1",
		func(_ context.Context, args struct {
			Volume float64 `json:"volume"`
		}) (string, error) {
			if err := m.SetMasterVolume(args.Volume); err != nil {
				return err.Error(), nil
			}
			logging.Infof("[Tool] set_master_volume: %.2f", m.MasterVolume())
			return fmt.Sprintf("已将主音量设置为%.0f%%", m.MasterVolume()*100), nil
		})
	if err != nil {
		return nil, err
	}

	setMasterMuted, err := utils.InferTool("set_master_muted",
		"主静音开关，muted 为 true 时静音全部输出，音量设置保持不变",
		func(_ context.Context, args struct {
			Muted bool `json:"muted"`
		}) (string, error) {
			m.SetMasterMuted(args.Muted)
			if args.Muted {
				return "已静音全部输出", nil
			}
			return "已取消主静音", nil
		})
	if err != nil {
		return nil, err
	}

	setChannelVolume, err := utils.InferTool("set_channel_volume",
		"设置通道音量，volume 取值 0 到 1。传 channel_id 指定单个通道，或传 app_id 作用于该应用的所有通道",
		func(_ context.Context, args volumeArgs) (string, error) {
			return apply(m, args.Target, func(id mixer.ChannelID) error {
				return m.SetChannelVolume(id, args.Volume)
			}, fmt.Sprintf("音量设置为%.0f%%", clamp01(args.Volume)*100))
		})
	if err != nil {
		return nil, err
	}

	setChannelMuted, err := utils.InferTool("set_channel_muted",
		"通道静音开关。传 channel_id 指定单个通道，或传 app_id 作用于该应用的所有通道",
		func(_ context.Context, args mutedArgs) (string, error) {
			action := "取消静音"
			if args.Muted {
				action = "静音"
			}
			return apply(m, args.Target, func(id mixer.ChannelID) error {
				return m.SetChannelMuted(id, args.Muted)
			}, action)
		})
	if err != nil {
		return nil, err
	}

	setChannelPan, err := utils.InferTool("set_channel_pan",
		"设置通道声像，pan 取值 -1（左）到 1（右），0 为居中。传 channel_id 或 app_id",
		func(_ context.Context, args panArgs) (string, error) {
			return apply(m, args.Target, func(id mixer.ChannelID) error {
				return m.SetChannelPan(id, args.Pan)
			}, fmt.Sprintf("声像设置为%.2f", args.Pan))
		})
	if err != nil {
		return nil, err
	}

	return []tool.BaseTool{
		getState,
		setMasterVolume,
		setMasterMuted,
		setChannelVolume,
		setChannelMuted,
		setChannelPan,
	}, nil
}

// apply runs fn for every channel the target selects and describes the outcome.
func apply(m mixer.Mixer, t Target, fn func(mixer.ChannelID) error, action string) (string, error) {
	ids, err := resolve(m, t)
	if err != nil {
		return err.Error(), nil
	}

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := fn(id); err != nil {
			if errors.Is(err, mixer.ErrChannelNotFound) {
				continue
			}
			return err.Error(), nil
		}
		if ch, ok := m.Channel(id); ok {
			names = append(names, ch.Name)
		}
	}
	if len(names) == 0 {
		return "没有找到匹配的通道", nil
	}
	logging.Infof("[Tool] %s: %s", action, strings.Join(names, ", "))
	return fmt.Sprintf("已将 %s 的%s", strings.Join(names, "、"), action), nil
}

func resolve(m mixer.Mixer, t Target) ([]mixer.ChannelID, error) {
	switch {
	case t.ChannelID != "":
		id := mixer.ChannelID(t.ChannelID)
		if _, ok := m.Channel(id); !ok {
			return nil, fmt.Errorf("通道 %s 不存在", t.ChannelID)
		}
		return []mixer.ChannelID{id}, nil
	case t.AppID != "":
		channels := m.ChannelsByApp(t.AppID)
		if len(channels) == 0 {
			return nil, fmt.Errorf("应用 %s 没有通道", t.AppID)
		}
		ids := make([]mixer.ChannelID, 0, len(channels))
		for _, ch := range channels {
			ids = append(ids, ch.ID)
		}
		return ids, nil
	default:
		return nil, errors.New("需要 channel_id 或 app_id")
	}
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
