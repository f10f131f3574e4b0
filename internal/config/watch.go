package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/nirre55/bot-final/internal/logger"
)

// Watch reloads the configuration whenever the root file changes and hands the
// fresh value to onChange. Invalid edits are logged and ignored.
func Watch(path string, onChange func(*Config)) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config watch requires path")
	}
	if onChange == nil {
		return fmt.Errorf("config watch requires a callback")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(path)
		if err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		logger.Infof("config reloaded from %s", evt.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
