package config

import (
	"reflect"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Server:      ServerConfig{ServiceToken: "secret", AdminRoles: "admin, ops ,", AllowedOrigins: "https://a.test,https://b.test"},
		Database:    DatabaseConfig{URL: "postgres://localhost/competition"},
		Competition: CompetitionConfig{DefaultPrizeCredits: 10},
		Ledger:      LedgerConfig{Driver: "db"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing database url", mutate: func(c *Config) { c.Database.URL = "" }, wantErr: true},
		{name: "missing service token", mutate: func(c *Config) { c.Server.ServiceToken = "" }, wantErr: true},
		{name: "http ledger without base url", mutate: func(c *Config) { c.Ledger.Driver = "http" }, wantErr: true},
		{name: "http ledger with base url", mutate: func(c *Config) {
			c.Ledger.Driver = "http"
			c.Ledger.BaseURL = "http://usage.internal"
		}},
		{name: "unknown ledger", mutate: func(c *Config) { c.Ledger.Driver = "redis" }, wantErr: true},
		{name: "zero prize", mutate: func(c *Config) { c.Competition.DefaultPrizeCredits = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLists(t *testing.T) {
	cfg := validConfig()
	if got, want := cfg.AdminRoleList(), []string{"admin", "ops"}; !reflect.DeepEqual(got, want) {
		t.Errorf("AdminRoleList() = %v, want %v", got, want)
	}
	if got := cfg.OriginList(); len(got) != 2 || got[1] != "https://b.test" {
		t.Errorf("OriginList() = %v", got)
	}
}

func TestR2Enabled(t *testing.T) {
	if (R2Config{}).Enabled() {
		t.Error("empty R2 config should be disabled")
	}
	if !(R2Config{AccountID: "acc", Bucket: "snapshots"}).Enabled() {
		t.Error("R2 config with account and bucket should be enabled")
	}
}
