package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"roundledger/internal/exceptions"
	"roundledger/internal/roundchanges"
)

const (
	// DatabaseSchemePostgres is the postgres database scheme identifier
	DatabaseSchemePostgres = "postgres"

	// StoreLevelDB and StorePostgres name the storage engines.
	StoreLevelDB  = "leveldb"
	StorePostgres = "postgres"
)

type Config struct {
	RPCURL    string
	WSPath    string
	DBDialect string // postgres only
	DBDsn     string // DSN string passed to GORM driver
	AppAPIURL string // optional: REST base URL used to resolve delegate usernames
	Debug     bool   // if true: verbose logs
	TUI       bool   // if true: run the round dashboard

	DataDir        string // LevelDB directory, used when no DATABASE_URL is set
	LogFile        string
	MetricsAddr    string // empty disables the metrics endpoint
	FeeDenom       string // denom whose transfer amounts count as fees
	ExceptionsFile string

	ActiveDelegates     int
	SnapshotRetention   int
	FeesRemainder       roundchanges.RemainderPolicy
	StorageMaxRetries   uint64
	StorageRetryBackoff time.Duration
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("RPC_URL", "http://localhost:26657")
	v.SetDefault("WS_PATH", "/websocket")
	v.SetDefault("DEBUG", false)
	v.SetDefault("TUI", true)
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("LOG_FILE", "logs/roundledger.log")
	v.SetDefault("METRICS_ADDR", ":9464")
	v.SetDefault("FEE_DENOM", "stake")
	v.SetDefault("ACTIVE_DELEGATES", 101)
	v.SetDefault("SNAPSHOT_RETENTION", 5)
	v.SetDefault("FEES_REMAINDER", roundchanges.RemainderLastForger.String())
	v.SetDefault("STORAGE_MAX_RETRIES", 5)
	v.SetDefault("STORAGE_RETRY_BACKOFF", 100*time.Millisecond)
	return v
}

// parseDatabaseURL interprets DATABASE_URL and returns (dialect, dsn).
// Supported schemes: postgres, postgresql.
func parseDatabaseURL(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", errors.Wrap(err, "parse DATABASE_URL")
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case DatabaseSchemePostgres, "postgresql":
		// GORM postgres driver accepts URL DSN as-is
		return DatabaseSchemePostgres, databaseURL, nil
	default:
		return "", "", errors.Errorf("unsupported DATABASE_URL scheme: %s", u.Scheme)
	}
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	v := newViper()
	cfg := Config{
		RPCURL:              v.GetString("RPC_URL"),
		WSPath:              v.GetString("WS_PATH"),
		AppAPIURL:           v.GetString("APP_API_URL"),
		Debug:               v.GetBool("DEBUG"),
		TUI:                 v.GetBool("TUI"),
		DataDir:             v.GetString("DATA_DIR"),
		LogFile:             v.GetString("LOG_FILE"),
		MetricsAddr:         v.GetString("METRICS_ADDR"),
		FeeDenom:            v.GetString("FEE_DENOM"),
		ExceptionsFile:      v.GetString("EXCEPTIONS_FILE"),
		ActiveDelegates:     v.GetInt("ACTIVE_DELEGATES"),
		SnapshotRetention:   v.GetInt("SNAPSHOT_RETENTION"),
		StorageMaxRetries:   v.GetUint64("STORAGE_MAX_RETRIES"),
		StorageRetryBackoff: v.GetDuration("STORAGE_RETRY_BACKOFF"),
	}

	policy, err := roundchanges.ParseRemainderPolicy(v.GetString("FEES_REMAINDER"))
	if err != nil {
		return Config{}, err
	}
	cfg.FeesRemainder = policy

	if cfg.ActiveDelegates <= 0 {
		return Config{}, errors.Errorf("ACTIVE_DELEGATES must be positive, got %d", cfg.ActiveDelegates)
	}
	if cfg.SnapshotRetention <= 0 {
		return Config{}, errors.Errorf("SNAPSHOT_RETENTION must be positive, got %d", cfg.SnapshotRetention)
	}

	if dbURL := strings.TrimSpace(v.GetString("DATABASE_URL")); dbURL != "" {
		dialect, dsn, err := parseDatabaseURL(dbURL)
		if err != nil {
			return Config{}, err
		}
		cfg.DBDialect = dialect
		cfg.DBDsn = dsn
	}

	return cfg, nil
}

// Store returns the storage engine the configuration selects.
func (c Config) Store() string {
	if c.DBDsn != "" {
		return StorePostgres
	}
	return StoreLevelDB
}

func (c Config) WSURL() string {
	// cometbft http client expects a separate ws endpoint path
	return c.WSPath
}

func (c Config) String() string {
	return fmt.Sprintf("rpc=%s store=%s delegates=%d", c.RPCURL, c.Store(), c.ActiveDelegates)
}

// DebugString returns a human-friendly configuration string with masked secrets.
func (c Config) DebugString() string {
	return fmt.Sprintf(
		"rpc=%s ws_path=%s store=%s data_dir=%s dsn=%s app_api_url=%s delegates=%d retention=%d remainder=%s exceptions=%s",
		c.RPCURL,
		c.WSPath,
		c.Store(),
		c.DataDir,
		maskDSN(c.DBDialect, c.DBDsn),
		c.AppAPIURL,
		c.ActiveDelegates,
		c.SnapshotRetention,
		c.FeesRemainder,
		c.ExceptionsFile,
	)
}

// Exceptions loads the round override table. Without an exceptions file the
// table is empty.
func (c Config) Exceptions() (*exceptions.Table, error) {
	if c.ExceptionsFile == "" {
		return exceptions.NewTable(nil), nil
	}
	return LoadExceptions(c.ExceptionsFile)
}

// LoadExceptions reads a YAML or JSON file of the form
//
//	rounds:
//	  "27040":
//	    rewards_factor: "2"
//	    fees_factor: "2"
//	    fees_bonus: "10000000"
func LoadExceptions(path string) (*exceptions.Table, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read exceptions file %s", path)
	}
	var raw map[string]exceptions.RawOverride
	if err := v.UnmarshalKey("rounds", &raw); err != nil {
		return nil, errors.Wrapf(err, "decode exceptions file %s", path)
	}
	return exceptions.Parse(raw)
}

func maskDSN(dialect, dsn string) string {
	switch strings.ToLower(dialect) {
	case DatabaseSchemePostgres:
		if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
			if u.User != nil {
				username := u.User.Username()
				u.User = url.User(username)
			}
			return u.String()
		}
		// Fallback for DSN as key-value list
		parts := strings.Fields(dsn)
		for i, p := range parts {
			lower := strings.ToLower(p)
			if strings.HasPrefix(lower, "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	default:
		return dsn
	}
}
