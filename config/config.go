package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// Config es la configuración completa del copy trader.
type Config struct {
	Tracker   TrackerConfig   `yaml:"tracker"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Engine    EngineConfig    `yaml:"engine"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	API       APIConfig       `yaml:"api"`
	Chain     ChainConfig     `yaml:"chain"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`

	// Secretos y wallets, solo por entorno o .env. Nunca van en el YAML.
	PrivateKey     string   `yaml:"-"`
	TrackedWallets []string `yaml:"tracked_wallets"`
}

// TrackerConfig controla el polling de trades y la cola de tareas.
type TrackerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	PageLimit           int `yaml:"page_limit"`
	QueueSize           int `yaml:"queue_size"`
	DrainTimeoutSeconds int `yaml:"drain_timeout_seconds"`
}

// StrategyConfig son los umbrales de apertura y cierre.
type StrategyConfig struct {
	MaxPositionsPerLedger   int     `yaml:"max_positions_per_ledger"`
	MaxActiveLedgers        int     `yaml:"max_active_ledgers"`
	AssetMinPositionShares  float64 `yaml:"asset_min_position_shares"`
	AssetMinPositionPercent float64 `yaml:"asset_min_position_percent"`
	CloseTotalThresholdPct  float64 `yaml:"close_total_threshold_pct"`
}

// EngineConfig controla la ejecución de órdenes.
type EngineConfig struct {
	NotionalUSDC float64 `yaml:"notional_usdc"`
}

// ReconcileConfig controla el worker de confirmación de fills.
type ReconcileConfig struct {
	QueueSize           int `yaml:"queue_size"`
	MaxAttempts         int `yaml:"max_attempts"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// APIConfig contiene los base URLs de las APIs de Polymarket.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	DataBase  string `yaml:"data_base"`
	GammaBase string `yaml:"gamma_base"`
}

// ChainConfig contiene la conexión RPC a Polygon.
type ChainConfig struct {
	RPCURL string `yaml:"rpc_url"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben el YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PollInterval devuelve el intervalo de polling como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Tracker.PollIntervalSeconds) * time.Second
}

// DrainTimeout devuelve el tiempo máximo de drenaje de la cola al apagar.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Tracker.DrainTimeoutSeconds) * time.Second
}

// ReconcilePollInterval devuelve el intervalo entre reintentos del worker.
func (c *Config) ReconcilePollInterval() time.Duration {
	return time.Duration(c.Reconcile.PollIntervalSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POLYMARKET_PRIVATE_KEY"); v != "" {
		cfg.PrivateKey = v
	}
	if v := os.Getenv("POLYGON_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("TRACKED_WALLETS"); v != "" {
		cfg.TrackedWallets = splitWallets(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Tracker.PollIntervalSeconds <= 0 {
		cfg.Tracker.PollIntervalSeconds = 10
	}
	if cfg.Tracker.PageLimit <= 0 {
		cfg.Tracker.PageLimit = 50
	}
	if cfg.Tracker.QueueSize <= 0 {
		cfg.Tracker.QueueSize = 512
	}
	if cfg.Tracker.DrainTimeoutSeconds <= 0 {
		cfg.Tracker.DrainTimeoutSeconds = 15
	}
	if cfg.Strategy.MaxPositionsPerLedger <= 0 {
		cfg.Strategy.MaxPositionsPerLedger = 3
	}
	if cfg.Strategy.MaxActiveLedgers <= 0 {
		cfg.Strategy.MaxActiveLedgers = 5
	}
	if cfg.Strategy.AssetMinPositionShares <= 0 {
		cfg.Strategy.AssetMinPositionShares = 50
	}
	if cfg.Strategy.CloseTotalThresholdPct <= 0 {
		cfg.Strategy.CloseTotalThresholdPct = 80
	}
	if cfg.Engine.NotionalUSDC <= 0 {
		cfg.Engine.NotionalUSDC = 10
	}
	if cfg.Reconcile.QueueSize <= 0 {
		cfg.Reconcile.QueueSize = 256
	}
	if cfg.Reconcile.MaxAttempts <= 0 {
		cfg.Reconcile.MaxAttempts = 5
	}
	if cfg.Reconcile.PollIntervalSeconds <= 0 {
		cfg.Reconcile.PollIntervalSeconds = 3
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polycopy.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate comprueba lo que no tiene default razonable.
func validate(cfg *Config) error {
	if len(cfg.TrackedWallets) == 0 {
		return fmt.Errorf("no tracked wallets configured (tracked_wallets or TRACKED_WALLETS)")
	}
	for _, w := range cfg.TrackedWallets {
		if !domain.IsHexAddress(w) {
			return fmt.Errorf("invalid tracked wallet address %q", w)
		}
	}
	return nil
}

func splitWallets(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
