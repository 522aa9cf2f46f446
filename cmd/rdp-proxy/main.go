// Command rdp-proxy terminates one incoming streaming session and
// re-originates a second one toward the real server, optionally
// transcoding video frames between them.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-rdp/core/internal/config"
	"github.com/meridian-rdp/core/internal/logging"
	"github.com/meridian-rdp/core/internal/proxy"
	"github.com/meridian-rdp/core/internal/rolesetup"
	"github.com/meridian-rdp/core/internal/session"
	"github.com/meridian-rdp/core/internal/transport"
	"github.com/meridian-rdp/core/internal/video"
)

var log = logging.L("main")

var (
	cfgFile          string
	upstreamPassword string
	proxyCommand     string
	transcodeTo      string
)

var rootCmd = &cobra.Command{
	Use:   "rdp-proxy",
	Short: "Meridian RDP session-terminating proxy",
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
	rootCmd.Flags().String("listen-addr", "", "address to accept downstream clients on")
	rootCmd.Flags().String("transport", "", "downstream transport: tcp, vsock, ws, or webrtc")
	rootCmd.Flags().String("server-addr", "", "upstream real server to connect to")
	rootCmd.Flags().String("codec", "", "codec to offer downstream clients")
	rootCmd.Flags().String("auth-method", "", "downstream auth method: \"\", tls, password, or ticket")
	rootCmd.Flags().StringVar(&upstreamPassword, "upstream-password", "", "password/ticket to authenticate to the upstream server")
	rootCmd.Flags().StringVar(&proxyCommand, "proxycommand", "", "launch this command and use its stdio as the upstream transport instead of dialing server-addr")
	rootCmd.Flags().StringVar(&transcodeTo, "transcode-to", "", "codec to re-encode into when it differs from the upstream codec")

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
	if v, _ := rootCmd.Flags().GetString("server-addr"); v != "" {
		cfg.ServerAddr = v
	}
	if v, _ := rootCmd.Flags().GetString("codec"); v != "" {
		cfg.Codec = v
	}
	if v, _ := rootCmd.Flags().GetString("auth-method"); v != "" {
		cfg.AuthMethod = v
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":3390"
	}

	authenticators, err := rolesetup.ServerAuthenticators(cfg)
	if err != nil {
		return err
	}
	downTLS, err := rolesetup.ServerTLSConfig(cfg)
	if err != nil {
		return err
	}
	upTLS, err := rolesetup.ClientTLSConfig(cfg)
	if err != nil {
		return err
	}
	upCredential, err := rolesetup.ClientCredential(cfg, upstreamPassword)
	if err != nil {
		return err
	}

	pcfg := proxy.Config{
		Codecs:             rolesetup.Codecs(cfg),
		Authenticators:     authenticators,
		RateLimiter:        session.NewAuthRateLimiter(20, time.Minute),
		ClipboardPolicy:    rolesetup.ParseClipboardPolicy(cfg.ClipboardPolicy),
		AllowPrint:         cfg.AllowPrint,
		UpstreamCodecs:     []string{cfg.Codec},
		UpstreamCredential: upCredential,
		AuthenticatorsForConn: func(conn net.Conn) []session.ServerAuthenticator {
			if cfg.AuthMethod != "tls" {
				return authenticators
			}
			return []session.ServerAuthenticator{rolesetup.PerConnectionTLSAuthenticator(conn)}
		},
	}

	if proxyCommand != "" {
		fields := strings.Fields(proxyCommand)
		pcfg.Dial = proxy.DialCommand(fields[0], fields[1:]...)
	} else {
		pcfg.Dial = dialUpstreamTCP(cfg, upTLS)
	}

	if transcodeTo != "" {
		pcfg.Transcode = true
		ecfg := video.DefaultEncoderConfig()
		ecfg.Backend = cfg.EncoderBackend
		ecfg.Codec = transcodeTo
		pcfg.TranscodeEncoderCfg = ecfg
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if rolesetup.IsFramedTransport(cfg) {
		ln, err := rolesetup.ListenFramed(cfg, downTLS)
		if err != nil {
			return err
		}
		log.Info("listening", "addr", cfg.ListenAddr, "transport", cfg.Transport, "upstream", upstreamDescription(cfg))
		return proxy.ServeFramed(ctx, ln, pcfg)
	}

	ln, err := rolesetup.Listen(cfg, downTLS)
	if err != nil {
		return err
	}
	log.Info("listening", "addr", cfg.ListenAddr, "upstream", upstreamDescription(cfg))
	return proxy.Serve(ctx, ln, pcfg)
}

// dialUpstreamTCP builds a Config.Dial that connects to the configured
// upstream server over TCP, optionally under TLS, mirroring
// rolesetup.Dial's tcp branch but kept local since proxy's upstream leg
// always dials out rather than reading cfg.Transport.
func dialUpstreamTCP(cfg *config.Config, tlsConfig *tls.Config) func() (*transport.Conn, error) {
	keepAlive := time.Duration(cfg.KeepAliveSeconds) * time.Second
	return func() (*transport.Conn, error) {
		return transport.DialTCP(cfg.ServerAddr, keepAlive, tlsConfig)
	}
}

func upstreamDescription(cfg *config.Config) string {
	if proxyCommand != "" {
		return "proxycommand:" + proxyCommand
	}
	return cfg.ServerAddr
}
