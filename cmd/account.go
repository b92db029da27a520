package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/creativeprojects/convmon/cfg"
	"github.com/creativeprojects/convmon/storage"
	"github.com/creativeprojects/convmon/storage/mdir"
	"github.com/creativeprojects/convmon/storage/remote"
)

// NewAccount connects the account described in the configuration, with its
// local mirror.
func NewAccount(account cfg.Account) (*remote.Account, error) {
	var store storage.LocalStore
	var err error
	if account.Store == cfg.MAILDIR {
		store, err = mdir.New(account.Root)
		if err != nil {
			return nil, fmt.Errorf("cannot open maildir mirror: %w", err)
		}
	}
	config := remote.Config{
		ServerURL:           account.ServerURL,
		Username:            account.Username,
		Password:            account.Password,
		NoTLS:               account.NoTLS,
		SkipTLSVerification: account.SkipTLSVerification,
		CacheDir:            account.CacheDir,
		Store:               store,
		PollInterval:        time.Duration(account.PollIntervalSec) * time.Second,
		SyncBodies:          account.SyncBodies,
		BodyRateLimit:       account.BodyRateLimit,
	}
	if global.verbose {
		config.DebugLogger = log.Default()
	}
	return remote.NewAccount(config)
}

func accountFromArgs(args []string) (cfg.Account, error) {
	if len(args) < 1 {
		return cfg.Account{}, fmt.Errorf("missing account name")
	}
	account, ok := config.Accounts[args[0]]
	if !ok {
		return cfg.Account{}, fmt.Errorf("account not found: %s", args[0])
	}
	return account, nil
}
