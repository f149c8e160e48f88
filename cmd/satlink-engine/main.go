// Command satlink-engine runs a pair of link engines over an
// in-process loopback radio pair, driven by a fixed tick interval
// standing in for the "single-threaded cooperative event loop" §5
// describes. A real radio adapter is not wired in: a non-empty
// --serial makes the command exit with an error. Flags follow
// kissutil.go's spf13/pflag convention.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"github.com/kgustafson/satlink/internal/cache"
	"github.com/kgustafson/satlink/internal/config"
	"github.com/kgustafson/satlink/internal/engine"
	"github.com/kgustafson/satlink/internal/logging"
	"github.com/kgustafson/satlink/internal/radio/loopback"
)

func main() {
	configFile := pflag.StringP("config-file", "c", "", "Engine config YAML file (defaults/profiles/keys). Empty uses built-in defaults.")
	serial := pflag.StringP("serial", "s", "", "Serial device for the radio adapter. Empty uses an in-process loopback pair for demos.")
	tickMs := pflag.IntP("tick-ms", "t", 20, "Event loop tick interval in milliseconds.")
	verbose := pflag.BoolP("verbose", "v", false, "Verbose logging.")
	pflag.Parse()

	logger := logging.New("satlink-engine")
	if *verbose {
		logger.SetLevel(logger.GetLevel() - 1)
	}

	defaults := config.DefaultDefaults()
	var profiles map[string]config.ProfileEntry
	var keys []config.KeyEntry
	if *configFile != "" {
		f, err := config.Load(*configFile)
		if err != nil {
			logger.Fatal("load config", "err", err)
		}
		defaults = f.Defaults
		profiles = f.Profiles
		keys = f.Keys
	}

	keyStore, err := config.SeedKeyStore(keys)
	if err != nil {
		logger.Fatal("seed key store", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if *serial != "" {
		logger.Fatal("a real serial radio adapter requires --serial wiring not yet selected for this demo binary; use loopback mode (omit --serial)")
	}

	a, b := loopback.NewPair(loopback.Impairment{})
	go a.Run(ctx)
	go b.Run(ctx)

	origin := time.Now()
	cfg := engine.Config{
		SchedPolicy: defaults.SchedPolicyValue(),
		TX:          defaults.TXConfig(),
		RX:          defaults.RXConfig(),
		Channel:     defaults.ChannelConfig(),
		Origin:      origin,
	}

	eng := engine.New(cfg, a, keyStore, logger, func(data []byte) {
		logger.Info("message received", "bytes", len(data))
	})
	peer := engine.New(cfg, b, keyStore, logger, func(data []byte) {
		logger.Info("peer received", "bytes", len(data))
	})

	a.SetOnReceive(func(f []byte) { peer.OnReceive(f, time.Now()) })
	b.SetOnReceive(func(f []byte) { eng.OnReceive(f, time.Now()) })

	if profiles != nil {
		config.ApplyProfileOverrides(eng.ProfileController(), profiles)
		config.ApplyProfileOverrides(peer.ProfileController(), profiles)
	}

	ticker := time.NewTicker(time.Duration(*tickMs) * time.Millisecond)
	defer ticker.Stop()

	msgID := eng.Enqueue([]byte("hello over the link"), true, cache.High)
	logger.Info("enqueued demo message", "msg_id", msgID)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			eng.Tick(ctx, now)
			peer.Tick(ctx, now)
		}
	}
}
