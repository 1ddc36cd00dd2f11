// Package agent 以自然语言控制混音器：混音器操作封装为 eino 工具，由 ReAct Agent 调度
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-mixer/internal/logging"
	"github.com/liuscraft/orion-mixer/internal/mixer"
)

const systemPrompt = "你是桌面混音助手。先调用 get_mixer_state 了解有哪些通道，再调用工具完成用户的请求。" +
	"音量取值 0 到 1，声像取值 -1 到 1。回复简短，说明做了哪些调整。"

// Config 模型配置
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	MaxSteps int
}

func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://open.bigmodel.cn/api/coding/paas/v4",
		Model:    "glm-4-flash",
		MaxSteps: 8,
	}
}

// Assistant 混音助手
type Assistant struct {
	agent  *react.Agent
	logger *zap.SugaredLogger
}

// New 创建 ReAct Agent：思考 → 调用混音器工具 → 观察 → ... → 最终答复
func New(ctx context.Context, cfg Config, m mixer.Mixer) (*Assistant, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("agent api key is required")
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultConfig().MaxSteps
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	tools, err := NewTools(m)
	if err != nil {
		return nil, fmt.Errorf("create mixer tools: %w", err)
	}
	toolInfos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, err
		}
		toolInfos = append(toolInfos, info)
	}
	if err := chatModel.BindTools(toolInfos); err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}

	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: tools,
		},
		MaxStep: cfg.MaxSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("create react agent failed: %w", err)
	}

	logger := logging.Named("agent")
	logger.Infow("assistant ready", "model", cfg.Model, "tools", toolNames(ctx, tools))
	return &Assistant{agent: agent, logger: logger}, nil
}

// Ask runs one request through the agent and returns its final reply.
func (a *Assistant) Ask(ctx context.Context, prompt string) (string, error) {
	a.logger.Infow("assistant request", "prompt", prompt)
	msg, err := a.agent.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", err
	}
	a.logger.Infow("assistant reply", "reply", msg.Content)
	return msg.Content, nil
}

// toolNames lists the registered tool names, for logging and tests.
func toolNames(ctx context.Context, tools []tool.BaseTool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		if info, err := t.Info(ctx); err == nil {
			names = append(names, info.Name)
		}
	}
	return names
}
