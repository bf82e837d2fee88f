package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WatchlistFile is the on-disk seed of identities the agent monitors.
type WatchlistFile struct {
	Owners []string `yaml:"owners"`
}

// LoadWatchlist reads the YAML watchlist. A missing path returns an empty
// list: the file is optional and API registrations fill the gap.
func LoadWatchlist(path string) (*WatchlistFile, error) {
	if path == "" {
		return &WatchlistFile{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &WatchlistFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read watchlist %s: %w", path, err)
	}

	var wl WatchlistFile
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("parse watchlist %s: %w", path, err)
	}
	return &wl, nil
}
