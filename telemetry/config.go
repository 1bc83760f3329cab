package telemetry

// Config configures the telemetry system.
type Config struct {
	Enabled     bool
	ServiceName string

	// Endpoint is the OTLP collector address ("host:4317"). The special
	// value "stdout" routes traces to a console exporter for local
	// development.
	Endpoint string

	// CardinalityLimit caps the total number of distinct label values
	// tracked across all metrics.
	CardinalityLimit int

	// CardinalityLimits sets per-label caps; labels past their cap are
	// collapsed to "other".
	CardinalityLimits map[string]int
}

// Profile is a pre-configured telemetry setup.
type Profile string

const (
	ProfileDevelopment Profile = "development"
	ProfileProduction  Profile = "production"
)

var profiles = map[Profile]Config{
	ProfileDevelopment: {
		Enabled:          true,
		Endpoint:         "stdout",
		CardinalityLimit: 50000,
	},
	ProfileProduction: {
		Enabled:          true,
		Endpoint:         "otel-collector:4317",
		CardinalityLimit: 10000,
		CardinalityLimits: map[string]int{
			"backend":    50,
			"strategy":   10,
			"reason":     20,
			"error_type": 50,
		},
	},
}

// UseProfile returns the named profile, defaulting to development.
func UseProfile(profile Profile) Config {
	if config, ok := profiles[profile]; ok {
		return config
	}
	return profiles[ProfileDevelopment]
}
