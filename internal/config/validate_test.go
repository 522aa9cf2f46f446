package config

import "testing"

func TestValidateInvalidTransportClampsToTCP(t *testing.T) {
	cfg := Default()
	cfg.Transport = "carrier-pigeon"
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected a validation error for an invalid transport")
	}
	if cfg.Transport != "tcp" {
		t.Fatalf("Transport = %q, want clamped to tcp", cfg.Transport)
	}
}

func TestValidateInvalidAuthMethodDisablesAuth(t *testing.T) {
	cfg := Default()
	cfg.AuthMethod = "carrier-pigeon"
	cfg.Validate()
	if cfg.AuthMethod != "" {
		t.Fatalf("AuthMethod = %q, want cleared", cfg.AuthMethod)
	}
}

func TestValidateInvalidClipboardPolicyClampsToOff(t *testing.T) {
	cfg := Default()
	cfg.ClipboardPolicy = "bogus"
	cfg.Validate()
	if cfg.ClipboardPolicy != "off" {
		t.Fatalf("ClipboardPolicy = %q, want off", cfg.ClipboardPolicy)
	}
}

func TestValidateFPSClamping(t *testing.T) {
	cfg := Default()
	cfg.MaxFPS = 0
	cfg.Validate()
	if cfg.MaxFPS != 1 {
		t.Fatalf("MaxFPS = %d, want clamped to 1", cfg.MaxFPS)
	}

	cfg2 := Default()
	cfg2.MaxFPS = 1000
	cfg2.Validate()
	if cfg2.MaxFPS != 240 {
		t.Fatalf("MaxFPS = %d, want clamped to 240", cfg2.MaxFPS)
	}
}

func TestValidateMinFPSCannotExceedMaxFPS(t *testing.T) {
	cfg := Default()
	cfg.MaxFPS = 30
	cfg.MinFPS = 60
	cfg.Validate()
	if cfg.MinFPS != 30 {
		t.Fatalf("MinFPS = %d, want clamped to MaxFPS (30)", cfg.MinFPS)
	}
}

func TestValidateBitrateCeilingCannotBeBelowFloor(t *testing.T) {
	cfg := Default()
	cfg.BitrateFloor = 1_000_000
	cfg.BitrateCeiling = 500_000
	cfg.Validate()
	if cfg.BitrateCeiling != 1_000_000 {
		t.Fatalf("BitrateCeiling = %d, want clamped to floor", cfg.BitrateCeiling)
	}
}

func TestValidateVsockRequiresPort(t *testing.T) {
	cfg := Default()
	cfg.Transport = "vsock"
	cfg.VsockPort = 0
	errs := cfg.Validate()
	found := false
	for _, err := range errs {
		if err != nil {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an error when vsock transport has no port configured")
	}
}

func TestValidDefaultConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default config has validation errors: %v", errs)
	}
}
