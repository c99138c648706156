package config

// Disabled turns off an optional output when used as output_dir or
// viewer_addr.
const Disabled = "-"

// DefaultSecret is the shared secret used when neither secret nor
// secret_hash is configured.
const DefaultSecret = "secret password"

const (
	DefaultFrameIntervalMs    = 100
	DefaultQueueOverflow      = "drop-oldest"
	DefaultPanelWidth         = 480
	DefaultPanelHeight        = 360
	DefaultViewerAddr         = "127.0.0.1:7071"
	DefaultAuditDB            = ":memory:"
	DefaultAuditMaxRejections = 1000
	DefaultHandshakeTimeoutMs = 5000
	DefaultLogLevel           = "info"
)

// Files under the configuration directory.
const (
	configDirName      = ".livedash"
	configFileName     = "config.toml"
	socketFileName     = "livedash.sock"
	outputDirName      = "frames"
	defaultsHeaderLine = "# livedash configuration"
)
