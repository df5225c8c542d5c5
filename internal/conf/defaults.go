// defaults.go: viper defaults for every configuration parameter.
package conf

import "github.com/spf13/viper"

// setDefaultConfig sets viper defaults for each configuration parameter.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("log.enabled", true)
	viper.SetDefault("log.path", "logs/tagdex.log")

	viper.SetDefault("dataset.root", "")
	viper.SetDefault("dataset.imagedir", "")
	viper.SetDefault("dataset.metadir", "")
	viper.SetDefault("dataset.aggregate", "")

	viper.SetDefault("output.dir", "")
	viper.SetDefault("output.sqlite.path", "")

	viper.SetDefault("pipeline.commitbatch", 1000)
	viper.SetDefault("pipeline.excludeblanks", true)
	viper.SetDefault("pipeline.mergeduplicates", true)
	viper.SetDefault("pipeline.verifyduplicates", true)
	viper.SetDefault("pipeline.moveimages", true)
	viper.SetDefault("pipeline.budget", 6)
	viper.SetDefault("pipeline.normalizeweight", 2)
	viper.SetDefault("pipeline.queuesize", 64)
}
