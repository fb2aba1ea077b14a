package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	assistantx "github.com/flamefinish/inventory-agent/agent/assistant"
	sessionx "github.com/flamefinish/inventory-agent/agent/session"
	toolx "github.com/flamefinish/inventory-agent/agent/tool"
	configx "github.com/flamefinish/inventory-agent/pkg/config"
	llmx "github.com/flamefinish/inventory-agent/pkg/llm"
	logx "github.com/flamefinish/inventory-agent/pkg/logger"
	msglogx "github.com/flamefinish/inventory-agent/pkg/msglog"
	notionx "github.com/flamefinish/inventory-agent/pkg/notion"
	twiliox "github.com/flamefinish/inventory-agent/pkg/twilio"
	serverx "github.com/flamefinish/inventory-agent/server"
)

func main() {
	logCfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*logCfg)

	llmCfg := configx.MustNew[llmx.Config]("LLM")
	notionCfg := configx.MustNew[notionx.Config]("NOTION")
	twilioCfg := configx.MustNew[twiliox.Config]("TWILIO")
	sessionCfg := configx.MustNew[sessionx.Config]("SESSION")
	assistantCfg := configx.MustNew[assistantx.Config]("AGENT")
	serverCfg := configx.MustNew[serverx.Config]("SERVER")
	msglogCfg := configx.MustNew[msglogx.Config]("MSGLOG")

	chatClient, err := llmx.NewClient(*llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize llm client")
	}

	records, err := notionx.NewClient(*notionCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize notion client")
	}

	transport, err := twiliox.NewClient(*twilioCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize twilio client")
	}

	sessions, err := sessionx.NewStore(*sessionCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session store")
	}

	dispatcher, err := toolx.NewDispatcher(records)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tool dispatcher")
	}

	agent, err := assistantx.New(chatClient, sessions, dispatcher, *assistantCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize assistant")
	}

	var recorder serverx.Recorder
	messageLog, err := msglogx.Open(context.Background(), *msglogCfg)
	switch {
	case err == nil:
		defer messageLog.Close()
		recorder = messageLog
		log.Info().Msg("message audit log enabled")
	case errors.Is(err, msglogx.ErrDisabled):
		log.Info().Msg("message audit log disabled")
	default:
		log.Fatal().Err(err).Msg("failed to open message audit log")
	}

	srv := serverx.New(*serverCfg, agent, transport, recorder)

	log.Info().Str("addr", serverCfg.Addr).Msg("starting webhook server")
	if err := http.ListenAndServe(serverCfg.Addr, srv.Handler()); err != nil {
		log.Fatal().Err(err).Msg("webhook server stopped")
	}
}
