// Package config loads and validates the streaming roles' settings,
// generalizing the teacher's viper-based Config/Load/Save (config.go)
// from RMM agent fields to spec.md §6's CLI/config surface, and adds
// fsnotify-driven hot reload of the config file and TLS material paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/meridian-rdp/core/internal/logging"
)

var log = logging.L("config")

// Config holds every setting a role driver (server/client/proxy) reads,
// whether supplied via flags, a config file, or RDP_-prefixed env vars.
type Config struct {
	Role string `mapstructure:"role"`

	ListenAddr string `mapstructure:"listen_addr"`
	ServerAddr string `mapstructure:"server_addr"`

	Transport string `mapstructure:"transport"` // tcp, vsock, stdio, ws, webrtc
	VsockCID  uint32 `mapstructure:"vsock_cid"`
	VsockPort uint32 `mapstructure:"vsock_port"`

	TLSCertFile   string `mapstructure:"tls_cert_file"`
	TLSKeyFile    string `mapstructure:"tls_key_file"`
	TLSCAFile     string `mapstructure:"tls_ca_file"`
	TLSServerName string `mapstructure:"tls_server_name"`

	AuthMethod       string `mapstructure:"auth_method"` // tls, password, ticket
	PasswordHashFile string `mapstructure:"password_hash_file"`
	TicketKeyFile    string `mapstructure:"ticket_key_file"`

	EncoderBackend string `mapstructure:"encoder_backend"`
	Codec          string `mapstructure:"codec"`
	MaxFPS         int    `mapstructure:"max_fps"`
	MinFPS         int    `mapstructure:"min_fps"`
	BitrateFloor   int    `mapstructure:"bitrate_floor"`
	BitrateCeiling int    `mapstructure:"bitrate_ceiling"`

	AudioEnabled bool `mapstructure:"audio_enabled"`

	ClipboardPolicy string `mapstructure:"clipboard_policy"`
	AllowPrint      bool   `mapstructure:"allow_print"`

	ControlSocketPath string `mapstructure:"control_socket_path"`

	KeepAliveSeconds   int `mapstructure:"keepalive_seconds"`
	UserTimeoutSeconds int `mapstructure:"user_timeout_seconds"`

	Title string `mapstructure:"title"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

func Default() *Config {
	return &Config{
		Transport:          "tcp",
		EncoderBackend:     "software",
		Codec:              "raw",
		MaxFPS:             60,
		MinFPS:             10,
		BitrateFloor:       200_000,
		BitrateCeiling:     4_000_000,
		AudioEnabled:       true,
		ClipboardPolicy:    "off",
		ControlSocketPath:  defaultControlSocketPath(),
		KeepAliveSeconds:   30,
		UserTimeoutSeconds: 60,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load reads cfgFile (or the default search path) into a Config layered
// over Default(), with RDP_-prefixed environment variables overriding
// file values, mirroring the teacher's BREEZE_ prefix convention.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	cfg := Default()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("rdp")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("RDP")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	errs := cfg.Validate()
	for _, err := range errs {
		log.Warn("config validation", "error", err)
	}

	return cfg, nil
}

func SaveTo(cfg *Config, cfgFile string) error {
	v := viper.New()
	v.Set("role", cfg.Role)
	v.Set("listen_addr", cfg.ListenAddr)
	v.Set("server_addr", cfg.ServerAddr)
	v.Set("transport", cfg.Transport)
	v.Set("encoder_backend", cfg.EncoderBackend)
	v.Set("codec", cfg.Codec)
	v.Set("max_fps", cfg.MaxFPS)
	v.Set("min_fps", cfg.MinFPS)
	v.Set("bitrate_floor", cfg.BitrateFloor)
	v.Set("bitrate_ceiling", cfg.BitrateCeiling)
	v.Set("audio_enabled", cfg.AudioEnabled)
	v.Set("clipboard_policy", cfg.ClipboardPolicy)
	v.Set("allow_print", cfg.AllowPrint)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		if dir := filepath.Dir(cfgPath); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "rdp.yaml")
		if err := os.MkdirAll(configDir(), 0o700); err != nil {
			return err
		}
	}

	if err := v.WriteConfigAs(cfgPath); err != nil {
		return err
	}
	return os.Chmod(cfgPath, 0o600)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "MeridianRDP")
	case "darwin":
		return "/Library/Application Support/MeridianRDP"
	default:
		return "/etc/meridian-rdp"
	}
}

func defaultControlSocketPath() string {
	switch runtime.GOOS {
	case "windows":
		return `\\.\pipe\meridian-rdp-control`
	default:
		return "/var/run/meridian-rdp/control.sock"
	}
}
