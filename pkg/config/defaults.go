package config

const (
	defaultBaseURL    = "http://localhost:8000/api"
	defaultTimeout    = "5m"
	defaultGreeting   = "Hello! I'm your e-commerce assistant. I can help you look up orders or check product availability. How can I help you today?"
	defaultListen     = ":8000"
	defaultChunkDelay = "40ms"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			BaseURL:  defaultBaseURL,
			Timeout:  defaultTimeout,
			Greeting: defaultGreeting,
		},
		Server: ServerConfig{
			Listen:     defaultListen,
			ChunkDelay: defaultChunkDelay,
		},
	}
}
