package lark

import (
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"
)

// Client holds the SDK client shared by the Lark adapters
type Client struct {
	client *lark.Client
}

// Config holds Lark client configuration
type Config struct {
	AppID     string
	AppSecret string
	BaseURL   string // empty for the default open platform domain
}

// NewClient creates a new Lark client with tenant token caching
func NewClient(cfg Config, logger *zap.Logger) *Client {
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}

	logger.Info("Lark client configured", zap.String("app_id", cfg.AppID), zap.Bool("custom_base_url", cfg.BaseURL != ""))
	return &Client{client: lark.NewClient(cfg.AppID, cfg.AppSecret, opts...)}
}
