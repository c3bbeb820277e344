// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("webserver.host", "0.0.0.0")
	viper.SetDefault("webserver.port", 8000)
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.metrics", true)

	viper.SetDefault("cascade.detector.modelpath", "models/cat_detector.tflite")
	viper.SetDefault("cascade.detector.labelpath", "models/cat_detector_labels.json")
	viper.SetDefault("cascade.detector.threads", 0)
	viper.SetDefault("cascade.classifier.modelpath", "models/catsound_class.tflite")
	viper.SetDefault("cascade.classifier.labelpath", "models/catsound_class_labels.json")
	viper.SetDefault("cascade.classifier.threads", 0)
	viper.SetDefault("cascade.targetlabel", "cat")
	viper.SetDefault("cascade.timeout", 30*time.Second)
	viper.SetDefault("cascade.poolsize", 4)

	viper.SetDefault("output.sqlite.path", "predictions.db")
	viper.SetDefault("output.clippath", "static/audio")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
}
