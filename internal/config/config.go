package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/agentx-labs/mcpx/internal/branding"
	"github.com/agentx-labs/mcpx/internal/host"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Setting keys.
const (
	KeyInstallRoot    = "install_root"
	KeyPacing         = "pacing"
	KeyCloneTimeout   = "clone_timeout"
	KeyConfigTimeout  = "config_timeout"
	KeyRegistryPath   = "registry_path"
	KeyHostConfigPath = "host_config_path"
	KeyTemplatesURL   = "templates_url"
	KeyLogLevel       = "log_level"
)

// Keys lists every setting, sorted.
var Keys = []string{
	KeyCloneTimeout,
	KeyConfigTimeout,
	KeyHostConfigPath,
	KeyInstallRoot,
	KeyLogLevel,
	KeyPacing,
	KeyRegistryPath,
	KeyTemplatesURL,
}

// DefaultTemplatesURL is where "templates update" downloads the catalog.
const DefaultTemplatesURL = "https://raw.githubusercontent.com/agentx-labs/mcpx/main/internal/catalog/templates.yaml"

// Dir returns the path to the mcpx home directory (~/.mcpx/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.mcpx/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
func Load() {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.AutomaticEnv()

	viper.SetDefault(KeyPacing, "500ms")
	viper.SetDefault(KeyCloneTimeout, "10m")
	viper.SetDefault(KeyConfigTimeout, "2m")
	viper.SetDefault(KeyTemplatesURL, DefaultTemplatesURL)
	viper.SetDefault(KeyLogLevel, "info")

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// IsKey reports whether key is a known setting.
func IsKey(key string) bool {
	i := sort.SearchStrings(Keys, key)
	return i < len(Keys) && Keys[i] == key
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if !IsKey(key) {
		return fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(Keys, ", "))
	}
	if err := EnsureDir(); err != nil {
		return err
	}

	prev := viper.Get(key)
	viper.Set(key, value)
	if _, err := Resolve(host.PlatformFromGOOS(runtime.GOOS), filepath.Dir(Dir()), os.Getenv); err != nil {
		viper.Set(key, prev)
		return err
	}

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Settings are the resolved, validated settings.
type Settings struct {
	InstallRoot    string        `validate:"required"`
	Pacing         time.Duration `validate:"gte=0"`
	CloneTimeout   time.Duration `validate:"gt=0"`
	ConfigTimeout  time.Duration `validate:"gt=0"`
	RegistryPath   string        `validate:"required"`
	HostConfigPath string        `validate:"required"`
	TemplatesPath  string        `validate:"required"`
	TemplatesURL   string        `validate:"required,url"`
	LogLevel       string        `validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Resolve reads the loaded keys and fills platform defaults for paths left
// unset.
func Resolve(p host.Platform, home string, getenv func(string) string) (Settings, error) {
	mcpxHome := host.JoinPath(p, home, branding.HomeDir())
	s := Settings{
		InstallRoot:    viper.GetString(KeyInstallRoot),
		Pacing:         viper.GetDuration(KeyPacing),
		CloneTimeout:   viper.GetDuration(KeyCloneTimeout),
		ConfigTimeout:  viper.GetDuration(KeyConfigTimeout),
		RegistryPath:   viper.GetString(KeyRegistryPath),
		HostConfigPath: viper.GetString(KeyHostConfigPath),
		TemplatesPath:  host.JoinPath(p, mcpxHome, "templates.yaml"),
		TemplatesURL:   viper.GetString(KeyTemplatesURL),
		LogLevel:       strings.ToLower(viper.GetString(KeyLogLevel)),
	}
	if s.InstallRoot == "" {
		s.InstallRoot = host.DefaultInstallRoot(p)
	}
	if s.RegistryPath == "" {
		s.RegistryPath = host.JoinPath(p, mcpxHome, "registry.json")
	}
	if s.HostConfigPath == "" {
		s.HostConfigPath = host.HostConfigPath(p, home, getenv)
	}

	if err := validate.Struct(s); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return Settings{}, fmt.Errorf("validating settings: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
		}
		return Settings{}, fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
	}
	return s, nil
}
