package handlers

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/gopherchat/gopherchat/internal/assistant"
	"github.com/gopherchat/gopherchat/internal/chat"
	"github.com/gopherchat/gopherchat/internal/config"
	"github.com/gopherchat/gopherchat/internal/email"
	"github.com/gopherchat/gopherchat/internal/quote"
	"github.com/gopherchat/gopherchat/internal/store/rabbitmq"
)

type Handler struct {
	DB          *gorm.DB
	Cfg         config.Config
	SMTPSetting email.SMTPConfig
	ChatSvc     *chat.Service
	Quotes      *quote.Client
	Rabbit      *rabbitmq.Publisher
}

func NewHandler(db *gorm.DB, cfg config.Config, states chat.StateStore, rabbit *rabbitmq.Publisher) *Handler {
	reg, name, model := providerSetup(cfg)
	provider, err := reg.Get(context.Background(), name, model)
	if err != nil {
		panic(fmt.Sprintf("assistant provider: %v", err))
	}

	bot := assistant.NewBot(provider, cfg.AITimeout, "")
	bot.AllowModelSwitch(reg, name, model)
	repo := chat.NewRepo(db)
	chatSvc := chat.NewService(repo, states, bot, cfg.ChatContextWindowSize)

	return &Handler{
		DB:  db,
		Cfg: cfg,
		SMTPSetting: email.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		},
		ChatSvc: chatSvc,
		Quotes:  quote.NewClient(""),
		Rabbit:  rabbit,
	}
}

func providerSetup(cfg config.Config) (reg *assistant.Registry, name, model string) {
	reg = assistant.BuiltinProviders(
		cfg.OllamaBaseURL,
		cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey,
		cfg.OpenRouterSiteURL, cfg.OpenRouterAppName)

	name = strings.ToLower(cfg.AIProvider)
	if name == "" {
		name = "ollama"
	}
	model = cfg.OllamaModel
	if name == "openrouter" {
		model = cfg.OpenRouterModel
	}
	return reg, name, model
}
