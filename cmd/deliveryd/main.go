package main

import (
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"meld/internal/delivery"
)

type config struct {
	Listen string `toml:"listen"`
}

func main() {
	var (
		listen     = flag.String("listen", "", "listen address (overrides config)")
		configPath = flag.String("config", "", "path to a TOML config file")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg := config{Listen: ":8080"}
	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	srv := delivery.NewServer(log)
	log.Info().Str("listen", cfg.Listen).Msg("delivery service listening")
	if err := http.ListenAndServe(cfg.Listen, srv.Handler()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
