// Command indexer-agent runs the receipt-collection and voucher-redemption core, and offers an
// operator-facing `vouchers` subcommand for inspecting pending redemptions.
package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethLog "github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-chi/chi/v5"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/dl-graf/indexer-agent/indexer-bindings/bindings"
	"github.com/dl-graf/indexer-agent/pkg/agent"
	"github.com/dl-graf/indexer-agent/pkg/chain"
	"github.com/dl-graf/indexer-agent/pkg/collector"
	"github.com/dl-graf/indexer-agent/pkg/config"
	"github.com/dl-graf/indexer-agent/pkg/gateway"
	"github.com/dl-graf/indexer-agent/pkg/logging"
	"github.com/dl-graf/indexer-agent/pkg/metrics"
	"github.com/dl-graf/indexer-agent/pkg/queue"
	"github.com/dl-graf/indexer-agent/pkg/recovery"
	"github.com/dl-graf/indexer-agent/pkg/redeemer"
	"github.com/dl-graf/indexer-agent/pkg/store"
)

const (
	ConfigFlagName   = "config"
	LogLevelFlagName = "log.level"
	MetricsAddrFlag  = "metrics.addr"
	PprofFlagName    = "pprof"
)

func main() {
	app := &cli.App{
		Name:  "indexer-agent",
		Usage: "Receipt-collection and voucher-redemption core of an indexer agent",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: ConfigFlagName, Usage: "Path to the TOML config file", Value: "indexer-agent.toml"},
			&cli.StringFlag{Name: LogLevelFlagName, Usage: "Log level", Value: logging.LevelInfo, EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: MetricsAddrFlag, Usage: "Address to serve /healthz, /readyz and /metrics on", Value: "127.0.0.1:7300"},
			&cli.BoolFlag{Name: PprofFlagName, Usage: "Capture a pprof profile for the process lifetime"},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the collector and redeemer ticks",
				Action: runAgent,
			},
			{
				Name:   "vouchers",
				Usage:  "List pending vouchers awaiting redemption",
				Action: listVouchers,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		gethLog.Crit("indexer-agent failed", "err", err)
	}
}

func setup(c *cli.Context) (gethLog.Logger, *config.Config, store.Store, error) {
	logger := logging.SetupDefaults(c.String(LogLevelFlagName))

	cfg, err := config.Load(c.String(ConfigFlagName))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	s, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}

	return logger, cfg, s, nil
}

func runAgent(c *cli.Context) error {
	if c.Bool(PprofFlagName) {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	logger := logging.SetupDefaults(c.String(LogLevelFlagName))

	watcher, err := config.NewWatcher(c.String(ConfigFlagName), logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := watcher.Current()

	s, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	gw, err := gateway.NewClient(cfg.GatewayEndpoint, gateway.WithRateLimit(10, 20))
	if err != nil {
		return fmt.Errorf("constructing gateway client: %w", err)
	}

	rpcClient, err := rpc.DialContext(c.Context, cfg.RPCEndpoint)
	if err != nil {
		return fmt.Errorf("dialing rpc endpoint: %w", err)
	}
	ethClient := ethclient.NewClient(rpcClient)

	// The address of the deployed exchange contract and the signing key for on-chain submission
	// are out of scope here; wiring a real signer and contract address is left to deployment
	// configuration.
	var exchangeAddress common.Address
	contract, err := bindings.NewAllocationExchange(exchangeAddress, ethClient, ethClient, ethClient)
	if err != nil {
		return fmt.Errorf("binding allocation exchange contract: %w", err)
	}
	chainExchange := bindings.NewChainExchange(contract, common.Address{}, func(common.Address, *ethtypes.Transaction) (*ethtypes.Transaction, error) {
		return nil, fmt.Errorf("on-chain signing is out of scope for this core")
	})

	checker := chain.NewCachingRedeemedChecker(chainExchange, logger, 4096)

	q := queue.New()
	if err := recovery.QueuePendingReceiptsFromDatabase(c.Context, s, q, logger); err != nil {
		return fmt.Errorf("recovering pending receipts: %w", err)
	}

	col := collector.New(s, q, gw, m, logger, nil)

	redeemerCfg, err := redeemerConfigFromAgentConfig(cfg)
	if err != nil {
		return err
	}
	red := redeemer.New(s, checker, chainExchange, noopTransactionManager{}, m, logger, redeemerCfg)

	a := agent.New(col, red, logger, cfg.CollectionTickInterval, cfg.RedemptionTickInterval)

	mux := chi.NewRouter()
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{Addr: c.String(MetricsAddrFlag), Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("operability http server failed", "err", err)
		}
	}()
	defer httpServer.Close()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		err := watcher.Watch(ctx.Done(), func(reloaded *config.Config) {
			redeemerCfg, err := redeemerConfigFromAgentConfig(reloaded)
			if err != nil {
				logger.Error("config reload produced an invalid redemption config, keeping previous values", "err", err)
				return
			}
			red.UpdateConfig(redeemerCfg)
		})
		if err != nil {
			logger.Error("config watcher stopped", "err", err)
		}
	}()

	return a.Run(ctx)
}

// redeemerConfigFromAgentConfig parses the redeemer's tuning options out of the process config.
func redeemerConfigFromAgentConfig(cfg *config.Config) (redeemer.Config, error) {
	redemptionThreshold, err := cfg.RedemptionThresholdBig()
	if err != nil {
		return redeemer.Config{}, fmt.Errorf("parsing voucherRedemptionThreshold: %w", err)
	}
	batchThreshold, err := cfg.BatchThresholdBig()
	if err != nil {
		return redeemer.Config{}, fmt.Errorf("parsing voucherRedemptionBatchThreshold: %w", err)
	}
	return redeemer.Config{
		RedemptionThreshold: redemptionThreshold,
		BatchThreshold:      batchThreshold,
		MaxBatchSize:        cfg.VoucherRedemptionMaxBatchSize,
	}, nil
}

// noopTransactionManager is a placeholder transaction manager: a real deployment wires in one
// that handles nonce management, gas-price bumping and resubmission. The transaction manager is
// an out-of-scope collaborator here, referenced only by interface.
type noopTransactionManager struct{}

func (noopTransactionManager) Send(ctx context.Context, estimate chain.GasEstimator, send chain.Sender, logCtx ...any) (*chain.Result, error) {
	return nil, fmt.Errorf("no transaction manager configured")
}

func listVouchers(c *cli.Context) error {
	_, _, s, err := setup(c)
	if err != nil {
		return err
	}

	vouchers, err := s.LoadVouchersByAmountDesc(c.Context, 1<<20)
	if err != nil {
		return fmt.Errorf("loading vouchers: %w", err)
	}

	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = 80
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Allocation", "Amount"})
	table.SetColWidth(width / 2)
	total := big.NewInt(0)
	for _, v := range vouchers {
		table.Append([]string{v.Allocation.Hex(), v.Amount.String()})
		total.Add(total, v.Amount)
	}
	table.SetFooter([]string{"Total", total.String()})
	table.Render()
	return nil
}
