package titanic

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// LoadConfig loads settings from titanicrc files and TITANIC_* environment
// variables into viper, on top of the built-in defaults.
func LoadConfig() {
	viper.SetConfigName("titanicrc")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.titanic")

	setupDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warnf("Could not read config file: %s", err)
		}
	}

	viper.SetEnvPrefix("titanic")
	viper.AutomaticEnv()
}

func setupDefaults() {
	defaultSettings := map[string]interface{}{
		"split_size":       100 * 1024 * 1024, // Default input split size is 100Mb
		"map_bin_size":     512 * 1024 * 1024, // Default map bin size is 512Mb
		"reduce_bins":      10,                // Number of intermediate shuffle bins
		"max_concurrency":  500,               // Maximum number of concurrent executors
		"working_location": ".",
		"skip_header":      true,
		"max_line_size":    1024 * 1024,
		"on_invalid":       "skip",
		"test_fraction":    0.3,
		"sample_fraction":  1.0,
		"seed":             42,
		"verbose":          false,
		"progress":         true,
		"cleanup":          true,
	}
	for key, value := range defaultSettings {
		viper.SetDefault(key, value)
	}

	aliases := map[string]string{
		"verbose":          "v",
		"working_location": "o",
	}
	for key, alias := range aliases {
		viper.RegisterAlias(alias, key)
	}
}
