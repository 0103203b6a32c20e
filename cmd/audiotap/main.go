package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/config"
	"github.com/petems/audiotap/internal/logging"
	"github.com/petems/audiotap/internal/stream"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	listDevices := flag.Bool("list", false, "list capture devices and exit")
	flag.Parse()

	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		log := logging.New("info")
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logging.New(cfg.LogLevel)

	if *listDevices {
		devices, err := audio.ListDevices(cfg.Audio.Backend)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list devices")
		}
		for _, d := range devices {
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, d.Name)
		}
		return
	}

	log.Info().Str("version", Version).Str("commit", Commit).Msg("audiotap starting")

	ctl := stream.New(cfg, log)
	if err := ctl.Start(); err != nil {
		if errors.Is(err, audio.ErrDeviceUnavailable) {
			log.Fatal().Err(err).Msg("Capture device unavailable, check config or run with -list")
		}
		log.Fatal().Err(err).Msg("Failed to start capture")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Best-effort consumer: read slower than the producer delivers so
	// the drop-oldest buffer always hands over the freshest block.
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var read uint64
	stats := time.NewTicker(5 * time.Second)
	defer stats.Stop()

	for {
		select {
		case <-sigChan:
			log.Info().Msg("Shutting down")
			ctl.Stop()
			log.Info().Uint64("blocks_read", read).Msg("audiotap stopped")
			return
		case <-stats.C:
			log.Info().
				Uint64("callbacks", ctl.Callbacks()).
				Uint64("blocks_read", read).
				Int("buffered", ctl.Buffered()).
				Msg("Capture stats")
		case <-ticker.C:
			block, err := ctl.Read()
			switch {
			case errors.Is(err, stream.ErrEmpty):
				// Producer has not delivered since the last read.
			case err != nil:
				log.Error().Err(err).Msg("Read error")
			default:
				read++
				log.Debug().Int("samples", len(block)).Msg("Block consumed")
			}
		}
	}
}
