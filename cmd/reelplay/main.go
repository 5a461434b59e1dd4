package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/config"
	"github.com/mantonx/reelplay/internal/logger"
	"github.com/mantonx/reelplay/internal/modules/playermodule"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/engine"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/listener"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// closeWatcher turns close requests and the end of playback into a quit
type closeWatcher struct {
	listener.Base
	quit      chan struct{}
	exitAtEnd bool
}

func (w *closeWatcher) signal() {
	select {
	case w.quit <- struct{}{}:
	default:
	}
}

func (w *closeWatcher) CloseRequested() {
	w.signal()
}

func (w *closeWatcher) EndOfSource(*types.FrameInfo) {
	if w.exitAtEnd {
		w.signal()
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] input...\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "An input is kind:name?option=value&..., e.g. mxf:clip.mxf, raw:pic.yuv?width=720&height=576,\n")
	fmt.Fprintf(os.Stderr, "blank: or mxf:missing.mxf?fallback_blank=true. A bare name is an MXF file.\n\n")
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", os.Getenv("REELPLAY_CONFIG_PATH"), "configuration file (YAML or JSON)")
	outputType := flag.String("output", "", "output type, overriding the configuration")
	paused := flag.Bool("paused", false, "start paused")
	exitAtEnd := flag.Bool("exit-at-end", false, "quit when playback reaches the end")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := run(*configPath, *outputType, *paused, *exitAtEnd, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "reelplay: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, outputType string, paused, exitAtEnd bool, args []string) error {
	inputs := make([]types.PlayerInput, 0, len(args))
	for _, arg := range args {
		in, err := types.ParseInput(arg)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	configs := config.NewManager(logger.Default())
	if configPath != "" {
		if err := configs.Load(configPath); err != nil {
			return err
		}
	}
	if outputType != "" {
		if err := configs.UpdateNext(func(cfg *config.Config) {
			cfg.Output.Type = outputType
		}); err != nil {
			return err
		}
	}

	log := logger.New(configs.Next().Logging, logger.Options{})
	hclog.SetDefault(log)

	module := playermodule.New(playermodule.Options{
		Config: configs,
		Logger: log,
		Engine: engine.Options{StartPaused: paused},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := module.Init(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := module.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	watcher := &closeWatcher{quit: make(chan struct{}, 1), exitAtEnd: exitAtEnd}
	reg := module.Listeners().Register(watcher, "cli")
	defer reg.Close()

	p := module.Player()
	opened, ok := p.Start(ctx, inputs)
	for i, in := range inputs {
		if !opened[i] {
			log.Warn("input did not open", "input", in.String())
		}
	}
	if !ok {
		return fmt.Errorf("failed to start playback")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case sig := <-sigChan:
			if sig != syscall.SIGHUP {
				log.Info("shutting down", "signal", sig.String())
				return nil
			}
			// restart with the reloaded configuration
			if _, ok := p.Start(ctx, inputs); !ok {
				log.Warn("restart failed, keeping the current pipeline")
			}
		case <-watcher.quit:
			log.Info("close requested")
			return nil
		}
	}
}
