// Package config loads mirror-host settings from a .env file and from the
// environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MirrorConfig holds the settings that vary per deployment: the signing
// key location, queue capacities, and the addresses of the optional status
// HTTP surface and external player process.
type MirrorConfig struct {
	KeyPath      string
	VideoCap     int
	AudioCap     int
	StatusAddr   string
	PlayerCmd    string
	AccessoryVID uint16
	AccessoryPID uint16
}

const (
	defaultVideoCap   = 30
	defaultAudioCap   = 50
	defaultAOAVID     = 0x18D1
	defaultAOAPID     = 0x2D00
	defaultStatusAddr = "127.0.0.1:7770"
)

var (
	mirrorConfig *MirrorConfig
	configLoaded bool
)

// Load reads .env (if present) and then lets environment variables
// override it. The result is cached and returned by later calls.
func Load() (*MirrorConfig, error) {
	if mirrorConfig != nil && configLoaded {
		return mirrorConfig, nil
	}

	cfg := &MirrorConfig{
		VideoCap:     defaultVideoCap,
		AudioCap:     defaultAudioCap,
		AccessoryVID: defaultAOAVID,
		AccessoryPID: defaultAOAPID,
		StatusAddr:   defaultStatusAddr,
	}

	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")
	if data, err := os.ReadFile(envPath); err == nil {
		parseEnvFile(string(data), cfg)
	}

	if v := os.Getenv("MIRROR_KEY_PATH"); v != "" {
		cfg.KeyPath = v
	}
	if v := os.Getenv("MIRROR_STATUS_ADDR"); v != "" {
		cfg.StatusAddr = v
	}
	if v := os.Getenv("MIRROR_PLAYER_CMD"); v != "" {
		cfg.PlayerCmd = v
	}
	if v := os.Getenv("MIRROR_VIDEO_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.VideoCap = n
		}
	}
	if v := os.Getenv("MIRROR_AUDIO_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AudioCap = n
		}
	}

	mirrorConfig = cfg
	configLoaded = true
	return cfg, nil
}

func parseEnvFile(content string, cfg *MirrorConfig) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "MIRROR_KEY_PATH":
			cfg.KeyPath = value
		case "MIRROR_STATUS_ADDR":
			cfg.StatusAddr = value
		case "MIRROR_PLAYER_CMD":
			cfg.PlayerCmd = value
		case "MIRROR_VIDEO_CAP":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				cfg.VideoCap = n
			}
		case "MIRROR_AUDIO_CAP":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				cfg.AudioCap = n
			}
		}
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
