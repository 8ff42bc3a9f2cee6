package config

// Event stream providers.
const (
	EventStreamNone  = "none"
	EventStreamKafka = "kafka"
)

const (
	defaultUpstreamBaseURL       = "http://localhost:9090/api/v2"
	defaultUpstreamTimeout       = "60s"
	defaultUpstreamTokenHeader   = "X-Access-Token"
	defaultUpstreamProjectHeader = "X-Project"

	defaultServerListen = ":8787"

	defaultClientTarget       = "http://localhost:8787"
	defaultClientBufferLength = 6

	defaultEventStreamBrokers = "localhost:9092"
	defaultEventStreamTopic   = "chatrelay.sessions"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Upstream: UpstreamConfig{
			BaseURL:       defaultUpstreamBaseURL,
			Timeout:       defaultUpstreamTimeout,
			TokenHeader:   defaultUpstreamTokenHeader,
			ProjectHeader: defaultUpstreamProjectHeader,
		},
		Server: ServerConfig{
			Listen: defaultServerListen,
		},
		Client: ClientConfig{
			Target:       defaultClientTarget,
			BufferLength: defaultClientBufferLength,
			Hidden:       true,
		},
		EventStream: EventStreamConfig{
			Provider: EventStreamNone,
			Brokers:  defaultEventStreamBrokers,
			Topic:    defaultEventStreamTopic,
		},
	}
}
