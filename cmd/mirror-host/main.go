// Command mirror-host drives an Android device's screen mirror over a
// USB Accessory (AOA 2.0) connection: it negotiates accessory mode,
// authenticates with the device using a signed Ed25519 challenge, and
// pumps the demultiplexed video/audio stream into a decoder and renderer.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/wolfkrypt/mirror/internal/aoa"
	"github.com/wolfkrypt/mirror/internal/auth"
	"github.com/wolfkrypt/mirror/internal/config"
	"github.com/wolfkrypt/mirror/internal/media"
	"github.com/wolfkrypt/mirror/internal/pipeline"
	"github.com/wolfkrypt/mirror/internal/protocol"
	"github.com/wolfkrypt/mirror/internal/statusapi"
)

var (
	keyPath    = flag.String("key", "", "path to the Ed25519 PKCS#8 PEM signing key (overrides MIRROR_KEY_PATH)")
	statusAddr = flag.String("status-addr", "", "status/metrics HTTP bind address (overrides MIRROR_STATUS_ADDR)")
	playerCmd  = flag.String("player", "", "external player command line for the process renderer (overrides MIRROR_PLAYER_CMD)")
	videoCap   = flag.Int("video-cap", 0, "video ingress queue capacity (0 = use config default)")
	audioCap   = flag.Int("audio-cap", 0, "audio ingress queue capacity (0 = use config default)")
	accessVID  = flag.Uint("vid", uint(aoa.AccessoryVID), "expected accessory-mode vendor ID")
	accessPID  = flag.Uint("pid", uint(aoa.AccessoryPID), "expected accessory-mode product ID")
	manufact   = flag.String("manufacturer", "Wolfkrypt", "accessory identification: manufacturer string")
	model      = flag.String("model", "Screen Mirror Host", "accessory identification: model string")
	enableAPI  = flag.Bool("status-api", true, "enable the status/metrics HTTP server")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("mirror-host: load config: %v", err)
	}
	applyFlagOverrides(cfg)

	authn, err := loadAuthenticator(cfg.KeyPath)
	if err != nil {
		log.Fatalf("mirror-host: %v", err)
	}

	host := aoa.NewHost(aoa.Identity{
		Manufacturer: *manufact,
		Model:        *model,
		Description:  "Wolfkrypt Screen Mirror for Android",
		Version:      "1.0",
		URI:          "https://wolfkrypt.example",
		Serial:       "WK-MIRROR-001",
	}).WithAccessoryIDs(cfg.AccessoryVID, cfg.AccessoryPID)

	argv := playerCommand(cfg.PlayerCmd)
	renderer := media.NewProcessRenderer(argv[0], argv[1:]...)

	p := pipeline.NewWithCapacity(host, authn, renderer, renderer, cfg.VideoCap, cfg.AudioCap)
	p.OnStatus(func(msg string) { log.Printf("status: %s", msg) })
	p.OnAudio(func(data []byte) { log.Printf("audio: %d bytes received, no AAC sink configured", len(data)) })
	p.OnConfig(func(subtype protocol.ConfigSubtype, data []byte) {
		if subtype == protocol.AudioAAC {
			log.Printf("config: audio codec config, %d bytes", len(data))
		}
	})

	var status *statusapi.Server
	if *enableAPI && cfg.StatusAddr != "" {
		status = statusapi.New(cfg.StatusAddr, p)
		status.Start()
	}

	if err := p.Start(); err != nil {
		log.Fatalf("mirror-host: start pipeline: %v", err)
	}

	waitForShutdownSignal()

	log.Println("mirror-host: shutting down")
	p.Stop()
	if status != nil {
		status.Stop()
	}
}

func applyFlagOverrides(cfg *config.MirrorConfig) {
	if *keyPath != "" {
		cfg.KeyPath = *keyPath
	}
	if *statusAddr != "" {
		cfg.StatusAddr = *statusAddr
	}
	if *playerCmd != "" {
		cfg.PlayerCmd = *playerCmd
	}
	if *videoCap > 0 {
		cfg.VideoCap = *videoCap
	}
	if *audioCap > 0 {
		cfg.AudioCap = *audioCap
	}
	if *accessVID != 0 {
		cfg.AccessoryVID = uint16(*accessVID)
	}
	if *accessPID != 0 {
		cfg.AccessoryPID = uint16(*accessPID)
	}
}

// loadAuthenticator reads the PEM file named by path and loads its
// Ed25519 seed. The file read itself is ordinary process plumbing, not
// part of the signed-challenge protocol the auth package implements.
func loadAuthenticator(path string) (*auth.Authenticator, error) {
	if path == "" {
		return nil, fmt.Errorf("no signing key configured (set -key or MIRROR_KEY_PATH)")
	}
	pemData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}
	var authn auth.Authenticator
	if err := authn.LoadPEM(string(pemData)); err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	return &authn, nil
}

// playerCommand splits a configured player command line ("ffplay -" or
// "mpv --no-config -") into argv, defaulting to ffplay reading Annex-B
// H.264 from stdin.
func playerCommand(cmdline string) []string {
	if strings.TrimSpace(cmdline) == "" {
		return []string{"ffplay", "-f", "h264", "-i", "-"}
	}
	return strings.Fields(cmdline)
}

func waitForShutdownSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
