package temporalx

import (
	"time"

	"github.com/yungbote/deckrebuild-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	AutoRegisterNamespace bool
	NamespaceRetention    time.Duration

	DialTimeout time.Duration
	DialMaxWait time.Duration
}

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "deckrebuild"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "deckrebuild"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		NamespaceRetention:    time.Duration(envutil.IntRange("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7, 1, 365)) * 24 * time.Hour,

		DialTimeout: envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5*time.Second),
		DialMaxWait: envutil.Seconds("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 60*time.Second),
	}
}

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
