// Command rdp-server hosts the streaming core: it captures the local
// display (or, by default, a portable test pattern), encodes it, and
// serves it to one or more negotiating clients.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-rdp/core/internal/audio"
	"github.com/meridian-rdp/core/internal/clipboard"
	"github.com/meridian-rdp/core/internal/config"
	"github.com/meridian-rdp/core/internal/controlsock"
	"github.com/meridian-rdp/core/internal/logging"
	"github.com/meridian-rdp/core/internal/refimpl"
	"github.com/meridian-rdp/core/internal/rolesetup"
	"github.com/meridian-rdp/core/internal/server"
	"github.com/meridian-rdp/core/internal/session"
	"github.com/meridian-rdp/core/internal/video"
)

var log = logging.L("main")

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rdp-server",
	Short: "Meridian RDP streaming server",
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
	rootCmd.Flags().String("listen-addr", "", "address to listen on, e.g. :3389")
	rootCmd.Flags().String("transport", "", "tcp, vsock, ws, or webrtc")
	rootCmd.Flags().String("codec", "", "codec name to offer")
	rootCmd.Flags().String("clipboard-policy", "", "off, srv_to_cli, cli_to_srv, both, trigger")
	rootCmd.Flags().String("auth-method", "", "\"\", tls, password, or ticket")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if v, _ := rootCmd.Flags().GetString("listen-addr"); v != "" {
		cfg.ListenAddr = v
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
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":3389"
	}

	authenticators, err := rolesetup.ServerAuthenticators(cfg)
	if err != nil {
		return err
	}
	tlsConfig, err := rolesetup.ServerTLSConfig(cfg)
	if err != nil {
		return err
	}

	scfg := server.Config{
		Codecs:         rolesetup.Codecs(cfg),
		Authenticators: authenticators,
		RateLimiter:    session.NewAuthRateLimiter(20, time.Minute),
		AuthenticatorsForConn: func(conn net.Conn) []session.ServerAuthenticator {
			if cfg.AuthMethod != "tls" {
				return authenticators
			}
			return []session.ServerAuthenticator{rolesetup.PerConnectionTLSAuthenticator(conn)}
		},

		VideoSource: refimpl.NewTestPatternSource(1920, 1080),
		EncoderCfg:  videoEncoderConfig(cfg),
		AdaptiveCfg: video.AdaptiveConfig{
			MinBitrate: cfg.BitrateFloor,
			MaxBitrate: cfg.BitrateCeiling,
			MinQuality: video.QualityLow,
			MaxQuality: video.QualityUltra,
			Cooldown:   2 * time.Second,
			MaxFPS:     cfg.MaxFPS,
		},
		InitialFPS: cfg.MaxFPS,
		MinFPS:     cfg.MinFPS,
		MaxFPS:     cfg.MaxFPS,

		Injector:          refimpl.NoopInjector{},
		ClipboardProvider: clipboard.NewMemoryProvider(),
		ClipboardPolicy:   rolesetup.ParseClipboardPolicy(cfg.ClipboardPolicy),
		AllowPrint:        cfg.AllowPrint,

		AudioRate:     audio.SampleRate,
		StatsInterval: 2 * time.Second,
	}
	if cfg.AudioEnabled {
		scfg.AudioCapturer = refimpl.NewToneCapturer()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.ControlSocketPath != "" {
		ctlSrv, err := controlsock.Listen(cfg.ControlSocketPath, handleControlCommand)
		if err != nil {
			log.Warn("control socket unavailable", "path", cfg.ControlSocketPath, "error", err)
		} else {
			defer ctlSrv.Close()
		}
	}

	if rolesetup.IsFramedTransport(cfg) {
		ln, err := rolesetup.ListenFramed(cfg, tlsConfig)
		if err != nil {
			return err
		}
		if cfg.Transport == "vsock" {
			log.Info("listening", "cid", cfg.VsockCID, "port", cfg.VsockPort, "transport", "vsock")
		} else {
			log.Info("listening", "addr", cfg.ListenAddr, "transport", cfg.Transport, "auth_method", cfg.AuthMethod)
		}
		return serveConnListener(ctx, ln, scfg, cfg.Transport)
	}

	ln, err := rolesetup.Listen(cfg, tlsConfig)
	if err != nil {
		return err
	}
	log.Info("listening", "addr", cfg.ListenAddr, "transport", cfg.Transport, "auth_method", cfg.AuthMethod)
	return server.Serve(ctx, ln, scfg)
}

// handleControlCommand backs the out-of-band control socket: an admin
// tool (or a co-located management agent) sends "restart_encoder" to force
// every currently streaming session onto a fresh keyframe, e.g. after
// rotating TLS material or to recover from a stuck hardware encoder.
func handleControlCommand(cmd controlsock.Command) string {
	switch cmd.Name {
	case "restart_encoder":
		extra := map[string]string{}
		for _, kv := range cmd.Args {
			if k, v, ok := strings.Cut(kv, "="); ok {
				extra[k] = v
			}
		}
		n := server.RestartActiveEncoders(extra)
		return fmt.Sprintf("ok restarted=%d", n)
	default:
		return "error unknown_command"
	}
}

func videoEncoderConfig(cfg *config.Config) video.EncoderConfig {
	ecfg := video.DefaultEncoderConfig()
	ecfg.Backend = cfg.EncoderBackend
	ecfg.Codec = cfg.Codec
	ecfg.InitialBPS = cfg.BitrateFloor
	return ecfg
}
