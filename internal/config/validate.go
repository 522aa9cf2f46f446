package config

import "fmt"

var validTransports = map[string]bool{
	"tcp": true, "vsock": true, "stdio": true, "ws": true, "webrtc": true,
}

var validAuthMethods = map[string]bool{
	"": true, "tls": true, "password": true, "ticket": true,
}

var validClipboardPolicies = map[string]bool{
	"off": true, "srv_to_cli": true, "cli_to_srv": true, "both": true, "trigger": true,
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks the config for invalid values, clamping dangerous
// zero/out-of-range values to safe defaults and returning every issue
// found; callers log the returned errors as warnings rather than
// treating them as fatal, matching the teacher's tiered validation style.
func (c *Config) Validate() []error {
	var errs []error

	if !validTransports[c.Transport] {
		errs = append(errs, fmt.Errorf("transport %q is not valid, using tcp", c.Transport))
		c.Transport = "tcp"
	}

	if !validAuthMethods[c.AuthMethod] {
		errs = append(errs, fmt.Errorf("auth_method %q is not valid, disabling auth", c.AuthMethod))
		c.AuthMethod = ""
	}

	if !validClipboardPolicies[c.ClipboardPolicy] {
		errs = append(errs, fmt.Errorf("clipboard_policy %q is not valid, using off", c.ClipboardPolicy))
		c.ClipboardPolicy = "off"
	}

	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	if c.MaxFPS < 1 {
		errs = append(errs, fmt.Errorf("max_fps %d is below minimum 1, clamping", c.MaxFPS))
		c.MaxFPS = 1
	} else if c.MaxFPS > 240 {
		errs = append(errs, fmt.Errorf("max_fps %d exceeds maximum 240, clamping", c.MaxFPS))
		c.MaxFPS = 240
	}

	if c.MinFPS < 1 {
		errs = append(errs, fmt.Errorf("min_fps %d is below minimum 1, clamping", c.MinFPS))
		c.MinFPS = 1
	}
	if c.MinFPS > c.MaxFPS {
		errs = append(errs, fmt.Errorf("min_fps %d exceeds max_fps %d, clamping", c.MinFPS, c.MaxFPS))
		c.MinFPS = c.MaxFPS
	}

	if c.BitrateFloor < 1 {
		errs = append(errs, fmt.Errorf("bitrate_floor %d is below minimum 1, clamping to 50000", c.BitrateFloor))
		c.BitrateFloor = 50_000
	}
	if c.BitrateCeiling < c.BitrateFloor {
		errs = append(errs, fmt.Errorf("bitrate_ceiling %d is below bitrate_floor %d, clamping", c.BitrateCeiling, c.BitrateFloor))
		c.BitrateCeiling = c.BitrateFloor
	}

	if c.KeepAliveSeconds < 1 {
		errs = append(errs, fmt.Errorf("keepalive_seconds %d is below minimum 1, clamping", c.KeepAliveSeconds))
		c.KeepAliveSeconds = 1
	}
	if c.UserTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("user_timeout_seconds %d is below minimum 1, clamping", c.UserTimeoutSeconds))
		c.UserTimeoutSeconds = 1
	}

	if c.Transport == "vsock" && c.VsockPort == 0 {
		errs = append(errs, fmt.Errorf("transport vsock requires vsock_port"))
	}

	return errs
}
