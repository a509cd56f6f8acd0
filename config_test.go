package clinicauth

import (
	"testing"
	"time"
)

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: nil, wantErr: false},
		{name: "missing secrets", mutate: func(c *Config) {
			c.JWT.AccessSecret = nil
			c.JWT.RefreshSecret = nil
		}, wantErr: true},
		{name: "identical secrets", mutate: func(c *Config) {
			c.JWT.RefreshSecret = append([]byte(nil), c.JWT.AccessSecret...)
		}, wantErr: true},
		{name: "refresh shorter than access", mutate: func(c *Config) {
			c.JWT.AccessTTL = time.Hour
			c.JWT.RefreshTTL = time.Minute
		}, wantErr: true},
		{name: "zero access ttl", mutate: func(c *Config) {
			c.JWT.AccessTTL = 0
		}, wantErr: true},
		{name: "otp digits too small", mutate: func(c *Config) {
			c.OTP.Digits = 3
		}, wantErr: true},
		{name: "otp digits too large", mutate: func(c *Config) {
			c.OTP.Digits = 11
		}, wantErr: true},
		{name: "negative retention", mutate: func(c *Config) {
			c.OTP.RetentionWindow = -time.Minute
		}, wantErr: true},
		{name: "fixed code missing code", mutate: func(c *Config) {
			c.OTP.FixedCodes = map[string]string{"9921125771": ""}
		}, wantErr: true},
		{name: "empty redis prefix", mutate: func(c *Config) {
			c.Session.RedisPrefix = ""
		}, wantErr: true},
		{name: "zero reset otp ttl", mutate: func(c *Config) {
			c.PasswordReset.OTPTTL = 0
		}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			err := validateConfig(cfg)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
		})
	}
}

func TestCloneConfigIsolation(t *testing.T) {
	original := testConfig()
	original.OTP.FixedCodes = map[string]string{"9921125771": "1234"}
	original.Session.ElevatedRoles = []string{"superadmin"}

	cloned := cloneConfig(original)

	original.JWT.AccessSecret[0] ^= 0xFF
	original.OTP.FixedCodes["9921125771"] = "9999"
	original.Session.ElevatedRoles[0] = "mutated"

	if cloned.JWT.AccessSecret[0] == original.JWT.AccessSecret[0] {
		t.Fatal("expected secret bytes to be copied")
	}
	if cloned.OTP.FixedCodes["9921125771"] != "1234" {
		t.Fatal("expected fixed-code map to be copied")
	}
	if cloned.Session.ElevatedRoles[0] != "superadmin" {
		t.Fatal("expected elevated-role slice to be copied")
	}
}
