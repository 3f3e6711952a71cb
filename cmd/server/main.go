package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"mintdapp/internal/config"
	"mintdapp/internal/idempotency"
	"mintdapp/internal/nft"
	"mintdapp/internal/server"
	"mintdapp/internal/session"
	"mintdapp/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Crit("Config error", "err", err)
	}
	setupLogging(cfg.Log.Level)

	ctx := context.Background()

	provider, err := openWallet(ctx, cfg)
	if err != nil {
		log.Crit("Wallet error", "err", err)
	}
	if closer, ok := provider.(interface{ Close() }); ok {
		defer closer.Close()
	}

	contract, err := nft.New(common.HexToAddress(cfg.Contract.Address), provider.Backend(), provider,
		nft.WithReceiptPollInterval(cfg.Chain.ReceiptPollInterval),
		nft.WithLogPollInterval(cfg.Chain.LogPollInterval),
	)
	if err != nil {
		log.Crit("Contract binding error", "err", err)
	}

	coord := session.New(session.Config{
		Contract:        contract.Address(),
		RequiredChainID: cfg.Contract.RequiredChainID,
		MaxSupply:       cfg.Contract.MaxSupply,
		Links:           cfg.Links,
	}, provider, contract)
	defer coord.Close()

	store, err := idempotency.Open(ctx, cfg.Service.IdempotencyStore)
	if err != nil {
		log.Crit("Idempotency store error", "err", err)
	}
	defer store.Close()

	initCtx, cancelInit := context.WithTimeout(ctx, 30*time.Second)
	if err := coord.Initialize(initCtx); err != nil {
		log.Warn("Session initialisation failed", "err", err)
	}
	cancelInit()

	apiServer := server.NewServer(cfg, coord, provider, store)

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Info("Server stopped", "err", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
}

func setupLogging(level string) {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, parseLevel(level), false)))
}

// parseLevel maps the configured level name onto the logger's levels,
// defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	case "crit":
		return log.LevelCrit
	default:
		return log.LevelInfo
	}
}

// openWallet prefers a locally held key, then a remote wallet endpoint, and
// falls back to no wallet at all.
func openWallet(ctx context.Context, cfg *config.AppConfig) (wallet.Provider, error) {
	switch {
	case cfg.Chain.PrivateKey != "":
		p, err := wallet.NewKeyedProvider(ctx, wallet.KeyedProviderConfig{
			RPCURL:        cfg.Chain.RPCURL,
			PrivateKeyHex: cfg.Chain.PrivateKey,
			PreAuthorized: cfg.Chain.AutoApprove,
			Confirm: func(_ context.Context, p wallet.Prompt) bool {
				log.Info("Wallet prompt approved", "kind", p.Kind, "account", p.Account)
				return true
			},
		})
		if err != nil {
			return nil, err
		}
		log.Info("Using local key wallet", "account", p.Address())
		return p, nil
	case cfg.Chain.RPCURL != "":
		p, err := wallet.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return nil, err
		}
		log.Info("Using remote wallet", "url", cfg.Chain.RPCURL)
		return p, nil
	default:
		log.Warn("No wallet configured")
		return wallet.Absent{}, nil
	}
}
