package main

import (
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/hertz-contrib/cors"

	"broker-gateway/internal/advisor"
	"broker-gateway/internal/alert"
	"broker-gateway/internal/api"
	"broker-gateway/internal/broker"
	"broker-gateway/internal/config"
	"broker-gateway/internal/monitor"
	"broker-gateway/internal/store"
)

func main() {
	cfg, err := config.Load("configs/app.yaml")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))
	h.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}))

	st, err := store.Open(cfg.Store.Sqlite.Path)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
	}()

	bk := broker.NewClient(broker.Config{
		APIKey:    cfg.Broker.APIKey,
		APISecret: cfg.Broker.APISecret,
		BaseURL:   cfg.Broker.BaseURL,
		LoginURL:  cfg.Broker.LoginURL,
		Timeout:   time.Duration(cfg.Broker.TimeoutMs) * time.Millisecond,
	})
	if token, err := st.LoadSession(); err != nil {
		log.Printf("load session error: %v", err)
	} else if token != "" {
		bk.SetAccessToken(token)
		log.Printf("restored broker session from store")
	}

	alertSvc := alert.NewService(st)
	mon := monitor.New(
		bk,
		alertSvc,
		time.Duration(cfg.Monitor.PollIntervalSec)*time.Second,
		time.Duration(cfg.Monitor.FetchTimeoutMs)*time.Millisecond,
	)
	defer mon.Close()

	adv := advisor.New(advisor.Config{
		Enabled:    cfg.Advisor.Enabled,
		Model:      cfg.Advisor.Model,
		APIKey:     cfg.Advisor.APIKey,
		BaseURL:    cfg.Advisor.BaseURL,
		ByAzure:    cfg.Advisor.ByAzure,
		APIVersion: cfg.Advisor.APIVersion,
		TimeoutMs:  cfg.Advisor.TimeoutMs,
	})

	api.RegisterRoutes(h, bk, st, mon, adv)

	log.Printf("server starting on %s (log.level=%s)", addr, cfg.Log.Level)
	if err := h.Run(); err != nil {
		log.Fatalf("server run error: %v", err)
	}
}
