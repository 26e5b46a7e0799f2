package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: "8080"},
		MongoDB: MongoDBConfig{URI: "mongodb://localhost:27017", DBName: "farmtrace"},
		Ledger:  LedgerConfig{Backend: LedgerBackendMongo},
		Costing: CostingConfig{
			FieldSelection: "first",
			Parallelism:    4,
			CronSchedule:   "0 2 * * *",
			Timezone:       "UTC",
		},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "farmtrace", cfg.MongoDB.DBName)
	assert.Equal(t, LedgerBackendMongo, cfg.Ledger.Backend)
	assert.Equal(t, "first", cfg.Costing.FieldSelection)
	assert.Equal(t, 4, cfg.Costing.Parallelism)
	assert.Equal(t, 5*time.Minute, cfg.Costing.TemplateCacheTTL)
	assert.Equal(t, "0 2 * * *", cfg.Costing.CronSchedule)
	assert.Equal(t, "Costs!A:J", cfg.Sheets.CostRange)
	assert.False(t, cfg.WhatsApp.Enabled())
	assert.False(t, cfg.Sheets.Enabled())
}

func TestLoad_FromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "MONGODB_URI=mongodb://db:27017\nLEDGER_BACKEND=postgres\nPOSTGRES_DSN=postgres://farm@db/farm\nCOSTING_PARALLELISM=8\nTEMPLATE_CACHE_TTL=30s\nCOSTING_FIELD_SELECTION=sum\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	for _, key := range []string{"MONGODB_URI", "LEDGER_BACKEND", "POSTGRES_DSN", "COSTING_PARALLELISM", "TEMPLATE_CACHE_TTL", "COSTING_FIELD_SELECTION"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db:27017", cfg.MongoDB.URI)
	assert.Equal(t, LedgerBackendPostgres, cfg.Ledger.Backend)
	assert.Equal(t, 8, cfg.Costing.Parallelism)
	assert.Equal(t, 30*time.Second, cfg.Costing.TemplateCacheTTL)
	assert.Equal(t, "sum", cfg.Costing.FieldSelection)
}

func TestLoad_InvalidNumbers(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	t.Setenv("COSTING_PARALLELISM", "many")
	_, err := Load("")
	assert.ErrorContains(t, err, "COSTING_PARALLELISM must be an integer")

	t.Setenv("COSTING_PARALLELISM", "")
	t.Setenv("TEMPLATE_CACHE_TTL", "5 minutes")
	_, err = Load("")
	assert.ErrorContains(t, err, "TEMPLATE_CACHE_TTL must be a duration")
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"missing mongo uri":   {func(c *Config) { c.MongoDB.URI = "" }, "MONGODB_URI"},
		"postgres needs dsn":  {func(c *Config) { c.Ledger.Backend = LedgerBackendPostgres }, "POSTGRES_DSN"},
		"unknown backend":     {func(c *Config) { c.Ledger.Backend = "redis" }, "unsupported LEDGER_BACKEND"},
		"unknown selection":   {func(c *Config) { c.Costing.FieldSelection = "max" }, "COSTING_FIELD_SELECTION"},
		"parallelism":         {func(c *Config) { c.Costing.Parallelism = 0 }, "COSTING_PARALLELISM"},
		"bad timezone":        {func(c *Config) { c.Costing.Timezone = "Nowhere/Land" }, "invalid TIMEZONE"},
		"whatsapp incomplete": {func(c *Config) { c.WhatsApp.AccessToken = "t" }, "WHATSAPP_PHONE_NUMBER_ID"},
		"sheets incomplete":   {func(c *Config) { c.Sheets.SpreadsheetID = "sheet" }, "GOOGLE_SHEETS_CREDENTIALS_PATH"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}

	assert.NoError(t, validConfig().Validate())
	assert.Error(t, (*Config)(nil).Validate())
}
