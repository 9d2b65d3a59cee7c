package config

import (
	"github.com/spf13/viper"

	"github.com/valpere/mtbench/internal/retry"
)

const (
	DefaultBaseFlores = "data/flores200_dataset/devtest"
	DefaultDatabase   = "mtbench.db"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths::base_flores", DefaultBaseFlores)
	v.SetDefault("paths::database", DefaultDatabase)
	v.SetDefault("default_source::language", "English")
	v.SetDefault("default_source::code", "eng_Latn")

	v.SetDefault("retry::max_retries", retry.DefaultMaxRetries)
	v.SetDefault("retry::initial_delay", retry.DefaultInitialDelay)
	v.SetDefault("retry::max_delay", retry.DefaultMaxDelay)
	v.SetDefault("retry::backoff_base", retry.DefaultBackoffBase)

	v.SetDefault("log::level", "info")
	v.SetDefault("log::format", "text")
	v.SetDefault("log::output", "stderr")
}
