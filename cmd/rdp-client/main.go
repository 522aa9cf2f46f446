// Command rdp-client connects to an rdp-server (or rdp-proxy) and drives
// the viewer side of a streaming session. Without a real display/input
// backend wired in, it runs headless: it logs the frames/cursor/stats it
// receives instead of rendering them, which is enough to exercise and
// observe the full negotiate→stream→teardown lifecycle end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-rdp/core/internal/client"
	"github.com/meridian-rdp/core/internal/clipboard"
	"github.com/meridian-rdp/core/internal/config"
	"github.com/meridian-rdp/core/internal/logging"
	"github.com/meridian-rdp/core/internal/protocol"
	"github.com/meridian-rdp/core/internal/rolesetup"
	"github.com/meridian-rdp/core/internal/stats"
)

var log = logging.L("main")

var (
	cfgFile  string
	password string
)

var rootCmd = &cobra.Command{
	Use:   "rdp-client",
	Short: "Meridian RDP streaming client",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stdout)
		return run(cfg)
	},
}

func main() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.Flags().String("server-addr", "", "address to connect to, e.g. host:3389")
	rootCmd.Flags().String("transport", "", "tcp, vsock, stdio, ws, or webrtc")
	rootCmd.Flags().String("codec", "", "codec name to request")
	rootCmd.Flags().String("clipboard-policy", "", "off, srv_to_cli, cli_to_srv, both, trigger")
	rootCmd.Flags().String("auth-method", "", "\"\", tls, password, or ticket")
	rootCmd.Flags().StringVar(&password, "password", "", "password or ticket, for the matching auth-method")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if v, _ := rootCmd.Flags().GetString("server-addr"); v != "" {
		cfg.ServerAddr = v
	}
	if v, _ := rootCmd.Flags().GetString("transport"); v != "" {
		cfg.Transport = v
	}
	if v, _ := rootCmd.Flags().GetString("codec"); v != "" {
		cfg.Codec = v
	}
	if v, _ := rootCmd.Flags().GetString("clipboard-policy"); v != "" {
		cfg.ClipboardPolicy = v
	}
	if v, _ := rootCmd.Flags().GetString("auth-method"); v != "" {
		cfg.AuthMethod = v
	}

	tlsConfig, err := rolesetup.ClientTLSConfig(cfg)
	if err != nil {
		return err
	}
	credential, err := rolesetup.ClientCredential(cfg, password)
	if err != nil {
		return err
	}

	tc, err := rolesetup.Dial(cfg, tlsConfig)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	var frameCount, audioCount uint64
	ccfg := client.Config{
		SupportedCodecs:        []string{cfg.Codec},
		ClipboardPolicyRequest: rolesetup.ParseClipboardPolicy(cfg.ClipboardPolicy),
		Credential:             credential,
		ClipboardProvider:      clipboard.NewMemoryProvider(),

		OnVideoFrame: func(f *protocol.VideoFrame) {
			frameCount++
			if frameCount%120 == 1 {
				log.Debug("video frame", "count", frameCount, "bytes", len(f.EncodedBytes), "keyframe", f.Keyframe)
			}
		},
		OnAudioFrame: func(*protocol.AudioFrame) { audioCount++ },
		OnCursor: func(c *protocol.Cursor) {
			log.Debug("cursor updated", "w", c.W, "h", c.H)
		},
		OnStats: func(s *protocol.Stats) {
			log.Info("server stats", "fps", s.FPSActual, "bitrate", s.BitrateActual, "cpu", s.CPUPercent)
		},
		NetworkSample: func() stats.NetworkSample {
			return stats.NetworkSample{RTTMillis: 20, PacketLoss: 0}
		},
		StatsInterval: 2 * time.Second,
	}

	cl, err := client.Connect(tc, ccfg)
	if err != nil {
		tc.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	log.Info("connected", "session", cl.Session().ID, "codec", cl.Session().Codec,
		"resolution", fmt.Sprintf("%dx%d", cl.Session().VideoW, cl.Session().VideoH))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = cl.Run(ctx)
	tc.Close()
	return err
}
