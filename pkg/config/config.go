// Package config loads the indexer agent's TOML configuration and watches it for changes: the
// enumerated redemption/gateway options plus the ambient connection and tick knobs.
package config

import (
	"math/big"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Config is the process-wide configuration, loaded from TOML.
type Config struct {
	// GatewayEndpoint is the base URL for the gateway's three endpoints.
	GatewayEndpoint string `toml:"gatewayEndpoint"`
	// DatabaseDSN is the postgres connection string for pkg/store.
	DatabaseDSN string `toml:"databaseDSN"`
	// RPCEndpoint is the JSON-RPC endpoint for the allocation exchange contract.
	RPCEndpoint string `toml:"rpcEndpoint"`

	// VoucherRedemptionThreshold is the minimum per-voucher amount to consider for redemption.
	VoucherRedemptionThreshold string `toml:"voucherRedemptionThreshold"`
	// VoucherRedemptionBatchThreshold is the minimum total batch amount required to submit on-chain.
	VoucherRedemptionBatchThreshold string `toml:"voucherRedemptionBatchThreshold"`
	// VoucherRedemptionMaxBatchSize caps vouchers per on-chain call and the DB-load window.
	VoucherRedemptionMaxBatchSize int `toml:"voucherRedemptionMaxBatchSize"`

	// CollectionTickInterval is how often the collector drains the delay queue. Defaults to 10s.
	CollectionTickInterval time.Duration `toml:"collectionTickInterval"`
	// RedemptionTickInterval is how often the redeemer polls the vouchers table. Defaults to 30s.
	RedemptionTickInterval time.Duration `toml:"redemptionTickInterval"`
}

// DefaultCollectionTickInterval is the collector's default tick interval.
const DefaultCollectionTickInterval = 10 * time.Second

// DefaultRedemptionTickInterval is the redeemer's default tick interval.
const DefaultRedemptionTickInterval = 30 * time.Second

// RedemptionThresholdBig parses VoucherRedemptionThreshold as a big.Int.
func (c *Config) RedemptionThresholdBig() (*big.Int, error) {
	return parseBig(c.VoucherRedemptionThreshold)
}

// BatchThresholdBig parses VoucherRedemptionBatchThreshold as a big.Int.
func (c *Config) BatchThresholdBig() (*big.Int, error) {
	return parseBig(c.VoucherRedemptionBatchThreshold)
}

func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("not a valid decimal integer: %q", s)
	}
	return v, nil
}

// applyDefaults fills zero-valued tick intervals with their defaults.
func (c *Config) applyDefaults() {
	if c.CollectionTickInterval == 0 {
		c.CollectionTickInterval = DefaultCollectionTickInterval
	}
	if c.RedemptionTickInterval == 0 {
		c.RedemptionTickInterval = DefaultRedemptionTickInterval
	}
}

// Load reads and parses the TOML file at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding config %s", path)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Watcher reloads the config from disk whenever the underlying file changes, via fsnotify.
type Watcher struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
	log  log.Logger
}

// NewWatcher loads path once and returns a Watcher holding the current config.
func NewWatcher(path string, logger log.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{cfg: cfg, path: path, log: logger}, nil
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Watch blocks, reloading the config on every fsnotify write/create event for path, until stop is
// closed. Reload errors are logged and the previous config is kept in place. onReload, if
// non-nil, is invoked with the freshly loaded config after each successful reload — e.g. to push
// updated redemption thresholds into a running redeemer without a process restart.
func (w *Watcher) Watch(stop <-chan struct{}, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating config watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		return errors.Wrapf(err, "watching config %s", w.path)
	}

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Error("config reload failed", "path", w.path, "err", err)
				continue
			}
			w.mu.Lock()
			w.cfg = cfg
			w.mu.Unlock()
			w.log.Info("config reloaded", "path", w.path)
			if onReload != nil {
				onReload(cfg)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("config watcher error", "err", err)
		}
	}
}
