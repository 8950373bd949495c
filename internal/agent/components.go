package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/wizai/InstallWiz/internal/config"
)

// NewChatModel 初始化 Ark ChatModel
func NewChatModel(ctx context.Context, arkConfig config.ArkConfig) (*ark.ChatModel, error) {
	if arkConfig.APIKey == "" || arkConfig.ModelID == "" {
		return nil, fmt.Errorf("ark api_key and model_id must be set (ARK_API_KEY / ARK_MODEL_ID)")
	}

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:  arkConfig.APIKey,
		Model:   arkConfig.ModelID,
		BaseURL: arkConfig.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	return chatModel, nil
}
