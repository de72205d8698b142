package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Watch 监听配置文件变化，重新解码后回调 fn
// 解码失败时保留旧配置
func Watch(v *viper.Viper, logger *zap.Logger, fn func(*Config)) {
	if v.ConfigFileUsed() == "" {
		logger.Debug("No config file in use, hot reload disabled")
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Decode(v)
		if err != nil {
			logger.Warn("Ignoring invalid config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("Config reloaded", zap.String("file", e.Name))
		fn(cfg)
	})
	v.WatchConfig()
}
