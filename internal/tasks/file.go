package tasks

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// FileConfig is the on-disk shape of a registry file: three task names to
// resolve against an already-populated Registry. It carries no code, only
// strings — the file-based pre-initialization path spec.md §4.7 describes,
// realized through symbolic dispatch rather than shipped procedures.
type FileConfig struct {
	InitTask string `mapstructure:"init_task"`
	ExecTask string `mapstructure:"exec_task"`
	ExitTask string `mapstructure:"exit_task"`
}

// LoadFile reads a YAML (or JSON/TOML — anything viper supports) registry
// file from path and decodes it into a FileConfig.
func LoadFile(path string) (FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return FileConfig{}, fmt.Errorf("tasks: read registry file %q: %w", path, err)
	}

	var cfg FileConfig
	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.ErrorUnused = true
	}); err != nil {
		return FileConfig{}, fmt.Errorf("tasks: decode registry file %q: %w", path, err)
	}
	if cfg.InitTask == "" || cfg.ExecTask == "" || cfg.ExitTask == "" {
		return FileConfig{}, fmt.Errorf("tasks: registry file %q missing init_task, exec_task or exit_task", path)
	}
	return cfg, nil
}

// Names returns the FileConfig's task names as a Names triple.
func (c FileConfig) Names() Names {
	return Names{Init: c.InitTask, Exec: c.ExecTask, Exit: c.ExitTask}
}
