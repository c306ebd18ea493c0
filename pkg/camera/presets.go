package camera

// Preset names for common configurations
const (
	PresetDefault    = "default"
	PresetLegacy     = "legacy"
	Preset720p       = "720p"
	Preset1080p      = "1080p"
	Preset4K         = "4k"
	PresetLowLatency = "low-latency"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:    DefaultConfig(),
		PresetLegacy:     LegacyConfig(),
		Preset720p:       HD720Config(),
		Preset1080p:      HD1080Config(),
		Preset4K:         UHD4KConfig(),
		PresetLowLatency: LowLatencyConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLegacy,
		Preset720p,
		Preset1080p,
		Preset4K,
		PresetLowLatency,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	presets := Presets()
	if cfg, ok := presets[name]; ok {
		return &cfg
	}
	return nil
}

// HD720Config returns 720p HD configuration.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// HD1080Config returns 1080p Full HD configuration.
// Small objects are found more reliably at the cost of slower cycles.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	return cfg
}

// UHD4KConfig returns 4K UHD configuration.
func UHD4KConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 3840
	cfg.Height = 2160
	cfg.Framerate = 15
	return cfg
}

// LowLatencyConfig trades resolution for cycle rate.
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 360
	cfg.Framerate = 60
	cfg.Quality = 60
	return cfg
}
