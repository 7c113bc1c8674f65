// Package common provides shared configuration and telemetry for the
// precip-hist pipeline tools.
package common

import (
	"os"
	"path/filepath"
)

// Config holds common configuration for all pipeline tools.
type Config struct {
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	DataDir            string
	LogLevel           string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ClickHouseHost:     getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:     9000,
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "precip"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		DataDir:            getEnv("PRECIP_DATA_DIR", "/var/lib/precip-hist"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
}

// ChunkDir returns the raw chunk input directory path.
func (c *Config) ChunkDir() string {
	return filepath.Join(c.DataDir, "chunks")
}

// HistDir returns the NetCDF histogram output directory path.
func (c *Config) HistDir() string {
	return filepath.Join(c.DataDir, "netcdf")
}

// PlotDir returns the PDF plot output directory path. The plotting side
// consumes it; nothing in this module writes plots.
func (c *Config) PlotDir() string {
	return filepath.Join(c.DataDir, "pdf")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
