package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/sitescore/internal/attribute"
	"github.com/sells-group/sitescore/internal/crs"
	"github.com/sells-group/sitescore/internal/grid"
	"github.com/sells-group/sitescore/internal/resilience"
	"github.com/sells-group/sitescore/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Grid       GridConfig       `yaml:"grid" mapstructure:"grid"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Attributes []attribute.Spec `yaml:"attributes" mapstructure:"attributes"`

	// AttributesFile names a YAML file whose specs are appended to Attributes.
	AttributesFile string `yaml:"attributes_file" mapstructure:"attributes_file"`
}

// Grid source drivers.
const (
	DriverShapefile = "shapefile"
	DriverPostGIS   = "postgis"
)

// GridConfig describes the source grid and how it is tiled.
type GridConfig struct {
	Driver     string        `yaml:"driver" mapstructure:"driver"`
	Path       string        `yaml:"path" mapstructure:"path"` // shapefile path or PostGIS table
	CRS        int           `yaml:"crs" mapstructure:"crs"`
	TileSize   float64       `yaml:"tile_size" mapstructure:"tile_size"`
	BufferSize float64       `yaml:"buffer_size" mapstructure:"buffer_size"`
	CellSize   float64       `yaml:"cell_size" mapstructure:"cell_size"`
	Workers    int           `yaml:"workers" mapstructure:"workers"`
	ValidNUTS  []string      `yaml:"valid_nuts" mapstructure:"valid_nuts"`
	Fields     grid.FieldMap `yaml:"fields" mapstructure:"fields"`
}

// StoreConfig configures the attributes table and run checkpoints.
type StoreConfig struct {
	DatabaseURL    string           `yaml:"database_url" mapstructure:"database_url"`
	Table          string           `yaml:"table" mapstructure:"table"`
	CheckpointPath string           `yaml:"checkpoint_path" mapstructure:"checkpoint_path"`
	Pool           store.PoolConfig `yaml:"pool" mapstructure:"pool"`

	// Retry governs tile upserts that hit deadlocks or dropped connections.
	Retry resilience.Settings `yaml:"retry" mapstructure:"retry"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SplitOptions converts the grid section into partitioner options.
func (g GridConfig) SplitOptions() grid.SplitOptions {
	return grid.SplitOptions{
		TileSize:   g.TileSize,
		BufferSize: g.BufferSize,
		CellSize:   g.CellSize,
		Workers:    g.Workers,
		Regions:    grid.RegionFilter(g.ValidNUTS),
		Source:     g.Path,
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITESCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	fields := grid.DefaultFieldMap()
	v.SetDefault("grid.driver", DriverShapefile)
	v.SetDefault("grid.crs", int(crs.LAEAEurope))
	v.SetDefault("grid.tile_size", 100000.0)
	v.SetDefault("grid.buffer_size", 50000.0)
	v.SetDefault("grid.cell_size", 1000.0)
	v.SetDefault("grid.workers", 1)
	v.SetDefault("grid.fields.id", fields.ID)
	v.SetDefault("grid.fields.country", fields.Country)
	v.SetDefault("grid.fields.regions", fields.Regions[:])
	v.SetDefault("grid.fields.values", fields.Values)
	v.SetDefault("store.table", store.DefaultTable)
	v.SetDefault("store.checkpoint_path", "sitescore.db")
	v.SetDefault("store.retry.max_attempts", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.AttributesFile != "" {
		specs, err := attribute.LoadSpecs(cfg.AttributesFile)
		if err != nil {
			return nil, eris.Wrap(err, "config: attributes_file")
		}
		cfg.Attributes = append(cfg.Attributes, specs...)
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is one of "split",
// "run" or "load".
func (c *Config) Validate(mode string) error {
	switch mode {
	case "split", "run", "load":
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if c.Grid.Path == "" {
		return eris.New("config: grid.path is required")
	}
	switch c.Grid.Driver {
	case DriverShapefile, DriverPostGIS:
	default:
		return eris.Errorf("config: grid.driver must be %s or %s, got %q", DriverShapefile, DriverPostGIS, c.Grid.Driver)
	}
	if err := crs.CRS(c.Grid.CRS).Validate(); err != nil {
		return eris.Wrap(err, "config: grid.crs")
	}
	if c.Grid.Workers < 1 {
		return eris.Errorf("config: grid.workers must be at least 1, got %d", c.Grid.Workers)
	}
	if err := (grid.SplitOptions{
		TileSize:   c.Grid.TileSize,
		BufferSize: c.Grid.BufferSize,
		CellSize:   c.Grid.CellSize,
	}).Validate(); err != nil {
		return eris.Wrap(err, "config: grid")
	}

	// run always writes attributes; split only reads from the database for
	// a PostGIS grid.
	if c.Store.DatabaseURL == "" && (mode != "split" || c.Grid.Driver == DriverPostGIS) {
		return eris.Errorf("config: store.database_url is required for %s", mode)
	}

	if mode == "run" {
		if len(c.Attributes) == 0 {
			return eris.New("config: at least one attribute is required for run")
		}
		for i, s := range c.Attributes {
			if err := s.Validate(); err != nil {
				return eris.Wrapf(err, "config: attributes[%d]", i)
			}
		}
		if c.Store.CheckpointPath == "" {
			return eris.New("config: store.checkpoint_path is required for run")
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
