package config

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"string form", `"15m"`, 15 * time.Minute, false},
		{"nanoseconds", `60000000000`, time.Minute, false},
		{"bad string", `"not-a-duration"`, 0, true},
		{"bad type", `{"x":1}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Duration != tt.want {
				t.Fatalf("got %v want %v", d.Duration, tt.want)
			}
		})
	}
}

func TestApplyJson_OverlaysOnlyPresentFields(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()
	defaultDSN := cfg.DatabaseDSN

	raw := `{
		"secret_key": "overlaid",
		"access_token_validity_duration": "5m",
		"max_concurrent_hashes": 8
	}`
	overlay := &jsonConfig{}
	if err := json.Unmarshal([]byte(raw), overlay); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	applyJson(cfg, overlay)

	if cfg.SecretKey != "overlaid" {
		t.Fatalf("secret key not overlaid: %q", cfg.SecretKey)
	}
	if cfg.AccessTokenValidityDuration != 5*time.Minute {
		t.Fatalf("access validity not overlaid: %v", cfg.AccessTokenValidityDuration)
	}
	if cfg.MaxConcurrentHashes != 8 {
		t.Fatalf("hash cap not overlaid: %d", cfg.MaxConcurrentHashes)
	}
	if cfg.DatabaseDSN != defaultDSN {
		t.Fatalf("absent field must keep default, got %q", cfg.DatabaseDSN)
	}
}

func TestFilterArgs(t *testing.T) {
	args := []string{"-a", ":9000", "-x", "junk", "--config=conf.json", "-s=topsecret"}
	got := filterArgs(args, []string{"-a", "-s", "--config"})

	want := []string{"-a", ":9000", "--config=conf.json", "-s=topsecret"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
