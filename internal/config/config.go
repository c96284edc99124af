// Package config reads process configuration from MICROCOSM_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvStorageDriver = "MICROCOSM_STORAGE_DRIVER"
	EnvSQLitePath    = "MICROCOSM_SQLITE_PATH"
	EnvPostgresDSN   = "MICROCOSM_POSTGRES_DSN"
	EnvBlobDriver    = "MICROCOSM_BLOB_DRIVER"
	EnvBlobFSRoot    = "MICROCOSM_BLOB_FS_ROOT"
	EnvS3Bucket      = "MICROCOSM_BLOB_S3_BUCKET"
	EnvS3Region      = "MICROCOSM_BLOB_S3_REGION"
	EnvS3Endpoint    = "MICROCOSM_BLOB_S3_ENDPOINT"
	EnvS3PathStyle   = "MICROCOSM_BLOB_S3_PATH_STYLE"
	EnvArchivePrefix = "MICROCOSM_ARCHIVE_PREFIX"
	EnvDebug         = "MICROCOSM_DEBUG"
	EnvLogVerbosity  = "MICROCOSM_LOG_VERBOSITY"
)

// Defaults applied when a variable is unset.
const (
	DefaultStorageDriver = "sqlite"
	DefaultSQLitePath    = "microcosm.db"
	DefaultBlobDriver    = "fs"
	DefaultBlobFSRoot    = "./blobdata"
	DefaultS3Region      = "us-east-1"
	DefaultArchivePrefix = "archive"
	DefaultLogVerbosity  = 1
)

// Config is the resolved process configuration.
type Config struct {
	Storage StorageConfig
	Blob    BlobConfig
	// ArchivePrefix is the blob key prefix archived actions are written under.
	ArchivePrefix string
	// Debug keeps every action in history instead of archiving settled ones.
	Debug bool
	// LogVerbosity is the glog level Debug lines are emitted at.
	LogVerbosity int
}

// StorageConfig selects the snapshot store.
type StorageConfig struct {
	Driver      string // memory|sqlite|postgres
	SQLitePath  string
	PostgresDSN string
}

// BlobConfig selects the archive blob store.
type BlobConfig struct {
	Driver string // fs|s3|memory
	FSRoot string
	S3     S3Config
}

// S3Config configures the s3 blob driver. Credentials come from the default
// AWS chain.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// Load reads the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup resolves configuration through lookup, which has the shape of
// os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Config{
		Storage: StorageConfig{
			Driver:      strings.ToLower(get(EnvStorageDriver, DefaultStorageDriver)),
			SQLitePath:  get(EnvSQLitePath, DefaultSQLitePath),
			PostgresDSN: get(EnvPostgresDSN, ""),
		},
		Blob: BlobConfig{
			Driver: strings.ToLower(get(EnvBlobDriver, DefaultBlobDriver)),
			FSRoot: get(EnvBlobFSRoot, DefaultBlobFSRoot),
			S3: S3Config{
				Bucket:   get(EnvS3Bucket, ""),
				Region:   get(EnvS3Region, DefaultS3Region),
				Endpoint: get(EnvS3Endpoint, ""),
			},
		},
		ArchivePrefix: strings.Trim(get(EnvArchivePrefix, DefaultArchivePrefix), "/"),
	}

	var err error
	if cfg.Blob.S3.PathStyle, err = parseBool(EnvS3PathStyle, get(EnvS3PathStyle, "false")); err != nil {
		return Config{}, err
	}
	if cfg.Debug, err = parseBool(EnvDebug, get(EnvDebug, "false")); err != nil {
		return Config{}, err
	}
	if raw := get(EnvLogVerbosity, strconv.Itoa(DefaultLogVerbosity)); raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v < 0 {
			return Config{}, fmt.Errorf("%s: invalid verbosity %q", EnvLogVerbosity, raw)
		}
		cfg.LogVerbosity = v
	}
	return cfg, nil
}

func parseBool(key, raw string) (bool, error) {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
