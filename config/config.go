// Package config loads YAML configuration through viper and keeps it fresh by
// watching the files with fsnotify.
package config

// Config interface defines the basic configuration contract
type Config interface {
	GetName() string
	Validate() error
}

// Defaulter is implemented by configs that fill in default values. The
// manager calls ApplyDefaults before every unmarshal so keys missing from the
// file keep their defaults across reloads.
type Defaulter interface {
	ApplyDefaults()
}

// ConfigChangeListener receives every successful reload. Listeners filter on
// configName themselves.
type ConfigChangeListener interface {
	OnConfigChanged(configName string, newConfig, oldConfig Config) error
}
