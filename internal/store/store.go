// Package store persists computed attributes and run progress: the
// attributes table lives in PostGIS, tile checkpoints in a local SQLite file.
package store

// DefaultTable is the attributes table name.
const DefaultTable = "attributes"

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}
