package main

import (
	"context"
	"os"
	"os/signal"
	"supervisor/config"
	"supervisor/core"
	"supervisor/pkg/types"
	"syscall"

	log "github.com/sirupsen/logrus"
)

func main() {
	configureLog(config.Env.EnvName)

	// init context for graceful shutdown
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// load config
	config, err := config.LoadConfig(config.Env)
	if err != nil {
		log.Fatalf("fail to load config: %v", err)
	}

	// 📊 core: supervisor module
	if err := core.Bootstrap(rootCtx, *config); err != nil {
		log.Panicf("fail to bootstrap app: %v", err)
	}

	// 🌩️ fiber: status API module
	fApp := core.SetupFiberApp()

	// trap signal for graceful shutdown
	setupSignalHandler(cancel)

	go func() {
		if err := core.Run(rootCtx); err != nil {
			log.Errorf("Runtime error: %v", err)
		}
		core.ShutdownFiberApp(fApp)
	}()

	if err := fApp.Listen(config.Http.Listen); err != nil {
		log.Panic(err)
	}
	<-rootCtx.Done()
}

func configureLog(envName types.EnvName) {
	log.SetLevel(log.InfoLevel)
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if envName == types.EnvLocal || envName == types.EnvDev {
		log.SetLevel(log.DebugLevel)
	}
}

func setupSignalHandler(cancel context.CancelFunc) {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigC
		log.Info("🚩 received shutdown signal")
		cancel()
	}()
}
