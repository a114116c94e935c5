// Package config loads bridge configuration from environment variables and
// an optional config.yaml, the way the teacher's yaml_config.go layers
// viper-backed settings with explicit env overrides. No component stores a
// global *Config; it is constructed once and threaded through explicitly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Key is an env-var-backed configuration key, mirroring the teacher's
// DeployKey pattern of naming the env var and a default alongside the key.
type Key struct {
	Name    string
	EnvVar  string
	Default string
}

var (
	KeyVDBRepositoryPath = Key{Name: "vdb_repository_path", EnvVar: "VDB_REPOSITORY_PATH"}
	KeyEDBDataPath       = Key{Name: "edb_data_path", EnvVar: "EDB_DATA_PATH"}
	KeyVDBExecutable     = Key{Name: "vdb_executable", EnvVar: "VDB_EXECUTABLE", Default: "vdb"}
	KeyProjectRoot       = Key{Name: "project_root", EnvVar: "PROJECT_ROOT"}
	KeyAutoDetectRoot    = Key{Name: "auto_detect_project_root", EnvVar: "AUTO_DETECT_PROJECT_ROOT", Default: "true"}
)

// Config is injected at construction into every orchestrator; it is the
// only configuration surface in the bridge — no package-level statics.
type Config struct {
	VDBRepositoryPath string
	EDBDataPath       string
	VDBExecutable     string
	ProjectRoot       string
	AutoDetectRoot    bool

	// VDBCallTimeout bounds every VDB CLI invocation (§5 Timeouts).
	VDBCallTimeout time.Duration
	// DeletionRetention is set to 30 days by Load. Nothing in the bridge
	// reads it: the Sync Engine's cleanup uses types.DeletionRetention.
	DeletionRetention time.Duration
	// ManifestName is the file name of the persisted manifest, e.g.
	// "bridge-manifest" -> "<project_root>/bridge-manifest.json".
	ManifestName string
}

// Load builds a Config from environment variables, optionally overlaid by a
// config.yaml found at configPath (if non-empty and present). Env vars always
// win, matching the teacher's layering of env over file over default.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault(KeyVDBExecutable.Name, KeyVDBExecutable.Default)
	v.SetDefault(KeyAutoDetectRoot.Name, KeyAutoDetectRoot.Default)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", configPath, err)
			}
			v.WatchConfig()
			v.OnConfigChange(func(fsnotify.Event) {})
		}
	}

	bindEnv(v, KeyVDBRepositoryPath)
	bindEnv(v, KeyEDBDataPath)
	bindEnv(v, KeyVDBExecutable)
	bindEnv(v, KeyProjectRoot)
	bindEnv(v, KeyAutoDetectRoot)

	autoDetect, err := strconv.ParseBool(v.GetString(KeyAutoDetectRoot.Name))
	if err != nil {
		autoDetect = true
	}

	cfg := &Config{
		VDBRepositoryPath: v.GetString(KeyVDBRepositoryPath.Name),
		EDBDataPath:       v.GetString(KeyEDBDataPath.Name),
		VDBExecutable:     v.GetString(KeyVDBExecutable.Name),
		ProjectRoot:       v.GetString(KeyProjectRoot.Name),
		AutoDetectRoot:    autoDetect,
		VDBCallTimeout:    30 * time.Second,
		DeletionRetention: 30 * 24 * time.Hour,
		ManifestName:      "bridge-manifest",
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper, k Key) {
	_ = v.BindEnv(k.Name, k.EnvVar)
}

// ManifestPath returns the path the manifest is persisted at.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.ProjectRoot, c.ManifestName+".json")
}
