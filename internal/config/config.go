package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"amas/internal/amaserr"
	"amas/internal/learning"
)

// RewardProfile selects the reward-weight tuple the engine composes reward
// with (§4.I).
type RewardProfile string

const (
	RewardStandard RewardProfile = "standard"
	RewardCram     RewardProfile = "cram"
	RewardRelaxed  RewardProfile = "relaxed"
)

// Config is the process-wide configuration, loaded once at boot and
// read-only thereafter (§5 "Shared resources").
type Config struct {
	// Database (model snapshots + decision records).
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (cold-start global-stats read-through cache, bundle L2 cache).
	RedisAddr string

	// SQLite path for the Bayesian optimiser's local observation history.
	BayesOptDBPath string

	// LinUCB.
	FeatureDimension int
	LinUCBAlpha      float64
	LinUCBLambda     float64

	// Reward.
	RewardProfile RewardProfile

	// Cold start.
	ColdStartEarlyStopThreshold float64
	ColdStartMinProbes          int

	// Ensemble.
	EnsembleMinWeight float64

	// Worker pool.
	WorkerPoolSize int

	// Persistence.
	SnapshotEveryN           int
	RecordQueueHighWater     int
	RecordQueueBlockDeadline time.Duration
	DecisionWriteRatePerSec  float64
	DecisionWriteBurst       int

	// Feature flags for individual learners/modules.
	Flags FeatureFlags
}

// FeatureFlags enables/disables individual learners and pipeline modules
// (§6 "featureFlags.*"). Load always fills it from defaultFlags() (every
// flag on); no environment variable or .env entry sets these fields.
type FeatureFlags struct {
	ThompsonEnabled  bool
	LinUCBEnabled    bool
	ACTREnabled      bool
	HeuristicEnabled bool
	WorkerOffload    bool
	BayesOptEnabled  bool
}

func defaultFlags() FeatureFlags {
	return FeatureFlags{
		ThompsonEnabled:  true,
		LinUCBEnabled:    true,
		ACTREnabled:      true,
		HeuristicEnabled: true,
		WorkerOffload:    true,
		BayesOptEnabled:  true,
	}
}

// Load reads AMAS_* environment variables (via .env if present, the same
// two-step pattern the teacher uses) and validates the static contract:
// feature.dimension must equal 22 or boot fails fast (§7 kind 6).
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		DBHost:     getEnv("AMAS_DB_HOST", "localhost"),
		DBPort:     getEnv("AMAS_DB_PORT", "5432"),
		DBUser:     getEnv("AMAS_DB_USER", "amas"),
		DBPassword: getEnv("AMAS_DB_PASSWORD", "amas"),
		DBName:     getEnv("AMAS_DB_NAME", "amas"),
		DBSSLMode:  getEnv("AMAS_DB_SSLMODE", "disable"),

		RedisAddr:      getEnv("AMAS_REDIS_ADDR", ""),
		BayesOptDBPath: getEnv("AMAS_BAYESOPT_DB_PATH", "./amas_bayesopt.db"),

		FeatureDimension: getEnvInt("AMAS_FEATURE_DIMENSION", learning.FeatureDim),
		LinUCBAlpha:      getEnvFloat("AMAS_LINUCB_ALPHA", 1.0),
		LinUCBLambda:     getEnvFloat("AMAS_LINUCB_LAMBDA", 1.0),

		RewardProfile: RewardProfile(getEnv("AMAS_REWARD_PROFILE", string(RewardStandard))),

		ColdStartEarlyStopThreshold: getEnvFloat("AMAS_COLDSTART_EARLYSTOPTHRESHOLD", 0.85),
		ColdStartMinProbes:          getEnvInt("AMAS_COLDSTART_MINPROBES", 2),

		EnsembleMinWeight: getEnvFloat("AMAS_ENSEMBLE_MINWEIGHT", 0.05),

		WorkerPoolSize: getEnvInt("AMAS_WORKERPOOL_SIZE", 8),

		SnapshotEveryN:           getEnvInt("AMAS_PERSISTENCE_SNAPSHOTEVERYN", 25),
		RecordQueueHighWater:     getEnvInt("AMAS_PERSISTENCE_RECORDQUEUEHIGHWATER", 512),
		RecordQueueBlockDeadline: time.Duration(getEnvInt("AMAS_PERSISTENCE_BLOCKDEADLINEMS", 50)) * time.Millisecond,
		DecisionWriteRatePerSec:  getEnvFloat("AMAS_PERSISTENCE_DECISIONWRITERATEPERSEC", 200),
		DecisionWriteBurst:       getEnvInt("AMAS_PERSISTENCE_DECISIONWRITEBURST", 50),

		Flags: defaultFlags(),
	}

	if cfg.FeatureDimension != learning.FeatureDim {
		return nil, fmt.Errorf("config: feature.dimension must be %d, got %d: %w",
			learning.FeatureDim, cfg.FeatureDimension, amaserr.ErrConfigViolation)
	}

	switch cfg.RewardProfile {
	case RewardStandard, RewardCram, RewardRelaxed:
	default:
		return nil, fmt.Errorf("config: unknown reward profile %q: %w", cfg.RewardProfile, amaserr.ErrConfigViolation)
	}

	return cfg, nil
}

func (c *Config) DBDSN() string {
	return "host=" + c.DBHost + " port=" + c.DBPort + " user=" + c.DBUser +
		" dbname=" + c.DBName + " password=" + c.DBPassword + " sslmode=" + c.DBSSLMode
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
