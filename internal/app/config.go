package app

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultDeliveryURL is used when neither the config file nor a flag sets
// the delivery service address.
const DefaultDeliveryURL = "http://127.0.0.1:8080"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home        string       // config directory, e.g. $HOME/.meld
	DeliveryURL string       // delivery service base URL
	HTTP        *http.Client // optional; defaults to http.DefaultClient
}

// fileConfig is the subset of Config persisted in config.toml.
type fileConfig struct {
	DeliveryURL string `toml:"delivery_url"`
}

// LoadConfig reads home/config.toml and fills defaults. A missing file is
// not an error; overrideURL, when non-empty, wins over the file.
func LoadConfig(home, overrideURL string) (Config, error) {
	cfg := Config{Home: home, DeliveryURL: DefaultDeliveryURL}

	var fc fileConfig
	if _, err := toml.DecodeFile(filepath.Join(home, "config.toml"), &fc); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	if fc.DeliveryURL != "" {
		cfg.DeliveryURL = fc.DeliveryURL
	}
	if overrideURL != "" {
		cfg.DeliveryURL = overrideURL
	}
	return cfg, nil
}
