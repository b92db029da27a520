package cfg

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// StoreType selects the local mirror implementation.
type StoreType string

const (
	BOLT    StoreType = "bolt"
	MAILDIR StoreType = "maildir"
)

type Config struct {
	Accounts map[string]Account `yaml:"accounts"`
}

type Account struct {
	ServerURL           string    `yaml:"serverURL"`
	Username            string    `yaml:"username"`
	Password            string    `yaml:"password"`
	NoTLS               bool      `yaml:"noTLS"`
	SkipTLSVerification bool      `yaml:"skipTLSVerification"`
	CacheDir            string    `yaml:"cacheDir"`
	Store               StoreType `yaml:"store"`
	// Root of the maildir mirror, when store is maildir.
	Root string `yaml:"root"`
	// Folder to monitor; INBOX when left out.
	Folder string `yaml:"folder"`
	// Window is the minimum number of conversations to keep materialized.
	Window int `yaml:"window"`
	// PollIntervalSec is how often to poll the server for changes.
	PollIntervalSec int `yaml:"pollIntervalSec"`
	// SyncBodies downloads message bodies into the local mirror.
	SyncBodies bool `yaml:"syncBodies"`
	// BodyRateLimit caps the body download speed, in bytes per second.
	BodyRateLimit float64 `yaml:"bodyRateLimit"`
}

func newConfig() *Config {
	return &Config{}
}

// LoadFromFile loads the configuration from the file
func LoadFromFile(fileName string) (*Config, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	return loadConfig(file)
}

// loadConfig from a io.ReadCloser
func loadConfig(reader io.ReadCloser) (*Config, error) {
	defer reader.Close()
	decoder := yaml.NewDecoder(reader)
	config := newConfig()
	err := decoder.Decode(config)
	if err != nil {
		return nil, err
	}
	err = validateConfiguration(config)
	if err != nil {
		return nil, err
	}
	return config, nil
}

func validateConfiguration(config *Config) error {
	for name, account := range config.Accounts {
		if account.Store != "" && account.Store != BOLT && account.Store != MAILDIR {
			return fmt.Errorf("account %q: unknown store type %q", name, account.Store)
		}
		if account.Store == MAILDIR && account.Root == "" {
			return fmt.Errorf("account %q: maildir store needs a root", name)
		}
	}
	return nil
}
