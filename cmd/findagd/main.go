// Command findagd is the FinDAG node entrypoint: it wires the Storage
// Engine, Transaction Pool, DAG Producer and RoundChain Finalizer into a
// running validator process, and provides operator subcommands for key
// generation and chain bootstrap. Subcommand dispatch follows the
// teacher's cmd/rubin-node/main.go shape (flag.FlagSet per subcommand,
// testable run(args, stdout, stderr) entrypoints).
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/findag-labs/findag-core/internal/config"
	"github.com/findag-labs/findag-core/internal/finalizer"
	"github.com/findag-labs/findag-core/internal/fintime"
	"github.com/findag-labs/findag-core/internal/keys"
	"github.com/findag-labs/findag-core/internal/producer"
	"github.com/findag-labs/findag-core/internal/storage"
	"github.com/findag-labs/findag-core/internal/txpool"
	"github.com/findag-labs/findag-core/internal/types"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: findagd <run|keygen|genesis|inspect> [flags]")
		return 2
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "run":
		return cmdRun(rest, stdout, stderr)
	case "keygen":
		return cmdKeygen(rest, stdout, stderr)
	case "genesis":
		return cmdGenesis(rest, stdout, stderr)
	case "inspect":
		return cmdInspect(rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "findagd: unknown subcommand %q\n", sub)
		return 2
	}
}

// cmdKeygen generates a validator/account Ed25519 keypair and writes a
// wrapped keystore to disk (spec §6 "validators" configuration option).
func cmdKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("findagd keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "validator.key.json", "output keystore path")
	kekHex := fs.String("kek-hex", "", "32-byte AES-256 key-encryption-key, hex-encoded (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	kek, err := hex.DecodeString(*kekHex)
	if err != nil || len(kek) != 32 {
		fmt.Fprintln(stderr, "findagd keygen: -kek-hex must decode to 32 bytes")
		return 2
	}
	pub, priv, err := keys.Generate()
	if err != nil {
		fmt.Fprintf(stderr, "findagd keygen: %v\n", err)
		return 1
	}
	if err := keys.ExportWrapped(*out, pub, priv, kek); err != nil {
		fmt.Fprintf(stderr, "findagd keygen: %v\n", err)
		return 1
	}
	addr, err := types.AddressFromPubkey(pub)
	if err != nil {
		fmt.Fprintf(stderr, "findagd keygen: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s\naddress: %s\n", *out, addr)
	return 0
}

// genesisSeedFile is the JSON document `findagd genesis` reads to seed
// opening account balances.
type genesisSeedFile struct {
	ProducerAddrHex string `json:"producer_addr_hex"`
	Balances        []struct {
		AddrHex string `json:"addr_hex"`
		Asset   string `json:"asset"`
		Amount  uint64 `json:"amount"`
	} `json:"balances"`
}

// cmdGenesis bootstraps a fresh data directory with a genesis Block and
// seed account balances (spec §3 "Blocks and Rounds are append-only once
// written"; genesis is block zero of the DAG).
func cmdGenesis(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("findagd genesis", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("datadir", config.DefaultDataDir(), "node data directory")
	seedPath := fs.String("seed", "", "path to genesis seed JSON file (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *seedPath == "" {
		fmt.Fprintln(stderr, "findagd genesis: -seed is required")
		return 2
	}
	raw, err := os.ReadFile(*seedPath) // #nosec G304 -- operator-provided seed file
	if err != nil {
		fmt.Fprintf(stderr, "findagd genesis: read seed: %v\n", err)
		return 1
	}
	var seed genesisSeedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		fmt.Fprintf(stderr, "findagd genesis: decode seed: %v\n", err)
		return 1
	}
	producerPub, err := hex.DecodeString(seed.ProducerAddrHex)
	if err != nil || len(producerPub) != types.AddressLen {
		fmt.Fprintln(stderr, "findagd genesis: producer_addr_hex must be 32 bytes")
		return 2
	}
	var producerAddr types.Address
	copy(producerAddr[:], producerPub)

	db, err := storage.Open(*dataDir)
	if err != nil {
		fmt.Fprintf(stderr, "findagd genesis: open storage: %v\n", err)
		return 1
	}
	defer db.Close()

	genesisBlock := types.Block{ProducerAddr: producerAddr}
	digest := fintime.Digest(genesisBlock.PayloadDigestInput())
	genesisBlock.HashTimer = fintime.StampWith(producerAddr[:], 1, digest[:], 0)

	balances := make([]storage.AccountMutation, 0, len(seed.Balances))
	for _, b := range seed.Balances {
		addrBytes, err := hex.DecodeString(b.AddrHex)
		if err != nil || len(addrBytes) != types.AddressLen {
			fmt.Fprintf(stderr, "findagd genesis: invalid addr_hex %q\n", b.AddrHex)
			return 2
		}
		var addr types.Address
		copy(addr[:], addrBytes)
		balances = append(balances, storage.AccountMutation{
			Address: addr,
			Asset:   types.Currency(strings.ToUpper(b.Asset)),
			State:   types.AccountState{Balance: types.AmountFromUint64(b.Amount)},
		})
	}

	if err := db.InitGenesis(storage.GenesisSeed{Block: genesisBlock, Balances: balances}); err != nil {
		fmt.Fprintf(stderr, "findagd genesis: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "genesis block: %s\n", genesisBlock.HashTimer)
	return 0
}

// cmdInspect prints a snapshot of committed state for operators (spec §6
// query interface, read-only).
func cmdInspect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("findagd inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("datadir", config.DefaultDataDir(), "node data directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	db, err := storage.Open(*dataDir)
	if err != nil {
		fmt.Fprintf(stderr, "findagd inspect: open storage: %v\n", err)
		return 1
	}
	defer db.Close()

	latest, ok, err := db.LatestRoundNumber()
	if err != nil {
		fmt.Fprintf(stderr, "findagd inspect: %v\n", err)
		return 1
	}
	tips, err := db.Tips()
	if err != nil {
		fmt.Fprintf(stderr, "findagd inspect: %v\n", err)
		return 1
	}
	out := struct {
		LatestRound      uint64   `json:"latest_round"`
		LatestRoundKnown bool     `json:"latest_round_known"`
		Tips             []string `json:"tips"`
	}{LatestRound: latest, LatestRoundKnown: ok}
	for _, t := range tips {
		out.Tips = append(out.Tips, t.String())
	}
	enc, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "findagd inspect: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(enc))
	return 0
}

// cmdRun starts the block producer and round finalizer loops against an
// existing (genesis-initialized) data directory, running until SIGINT or
// SIGTERM.
func cmdRun(args []string, stdout, stderr io.Writer) int {
	defaults := config.DefaultConfig()
	fs := flag.NewFlagSet("findagd run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var whitelistCSV string
	var validatorsCSV string

	cfg := defaults
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.Uint64Var(&cfg.BlockIntervalMS, "block-interval-ms", defaults.BlockIntervalMS, "producer tick period")
	fs.Uint64Var(&cfg.HeartbeatIntervalMS, "heartbeat-interval-ms", defaults.HeartbeatIntervalMS, "empty-block liveness interval when the pool is idle")
	fs.Uint64Var(&cfg.RoundIntervalMS, "round-interval-ms", defaults.RoundIntervalMS, "finalizer tick period")
	fs.IntVar(&cfg.MaxTxsPerBlock, "max-txs-per-block", defaults.MaxTxsPerBlock, "max transactions per block")
	fs.IntVar(&cfg.MaxBlockBytes, "max-block-bytes", defaults.MaxBlockBytes, "max encoded block size")
	fs.IntVar(&cfg.MaxParents, "max-parents", defaults.MaxParents, "max DAG parents per block")
	fs.Uint64Var(&cfg.RoundStallTimeoutMS, "round-stall-timeout-ms", defaults.RoundStallTimeoutMS, "round stall timeout")
	fs.IntVar(&cfg.QuorumSize, "quorum-size", defaults.QuorumSize, "validator signatures required to commit a round")
	fs.IntVar(&cfg.PoolCapacity, "pool-capacity", defaults.PoolCapacity, "max in-memory pool transactions")
	fs.StringVar(&whitelistCSV, "asset-whitelist", strings.Join(defaults.AssetWhitelist, ","), "comma-separated accepted asset codes")
	fs.StringVar(&validatorsCSV, "validators", "", "comma-separated hex-encoded validator public keys")
	keystorePath := fs.String("keystore", "", "path to this validator's wrapped keystore (required)")
	kekHex := fs.String("kek-hex", "", "32-byte AES-256 key-encryption-key, hex-encoded (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg.AssetWhitelist = config.NormalizeAssetWhitelist(whitelistCSV)
	if validatorsCSV != "" {
		cfg.Validators = config.NormalizeAssetWhitelist(validatorsCSV) // reuses the same dedupe/split helper for a CSV-of-tokens shape
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "findagd run: invalid config: %v\n", err)
		return 2
	}
	if *keystorePath == "" {
		fmt.Fprintln(stderr, "findagd run: -keystore is required")
		return 2
	}
	kek, err := hex.DecodeString(*kekHex)
	if err != nil || len(kek) != 32 {
		fmt.Fprintln(stderr, "findagd run: -kek-hex must decode to 32 bytes")
		return 2
	}

	logger := slog.New(slog.NewJSONHandler(stderr, nil))

	pub, priv, err := keys.ImportWrapped(*keystorePath, kek)
	if err != nil {
		fmt.Fprintf(stderr, "findagd run: load keystore: %v\n", err)
		return 1
	}
	self, err := types.AddressFromPubkey(pub)
	if err != nil {
		fmt.Fprintf(stderr, "findagd run: %v\n", err)
		return 1
	}

	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(stderr, "findagd run: open storage: %v\n", err)
		return 1
	}
	defer db.Close()

	clock, err := fintime.New(self[:])
	if err != nil {
		fmt.Fprintf(stderr, "findagd run: %v\n", err)
		return 1
	}

	pool := txpool.New(txpool.NewConfig(cfg.PoolCapacity, cfg.MaxBlockBytes, time.Duration(cfg.PoolTxTTLMS)*time.Millisecond, cfg.AssetWhitelist), db)

	prodCfg := producer.Config{
		BlockIntervalMS:     cfg.BlockIntervalMS,
		HeartbeatIntervalMS: cfg.HeartbeatIntervalMS,
		MaxTxsPerBlock:      cfg.MaxTxsPerBlock,
		MaxBlockBytes:       cfg.MaxBlockBytes,
		MaxParents:          cfg.MaxParents,
	}
	prod, err := producer.New(db, pool, clock, self, ed25519.PrivateKey(priv), prodCfg, func(blk types.Block) {
		logger.Info("block produced", "hashtimer", blk.HashTimer.String(), "tx_count", len(blk.TxIDs))
	})
	if err != nil {
		fmt.Fprintf(stderr, "findagd run: init producer: %v\n", err)
		return 1
	}

	finCfg := finalizer.Config{
		RoundIntervalMS:     cfg.RoundIntervalMS,
		RoundStallTimeoutMS: cfg.RoundStallTimeoutMS,
		QuorumSize:          cfg.QuorumSize,
	}
	fz, err := finalizer.New(db, pool, clock, self, ed25519.PrivateKey(priv), finCfg, func(r types.Round) {
		logger.Info("round committed", "number", r.Number, "blocks", len(r.BlockIDsInOrder))
	})
	if err != nil {
		fmt.Fprintf(stderr, "findagd run: init finalizer: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 2)
	go func() { errc <- prod.Run(ctx) }()
	go runFinalizerLoop(ctx, fz, cfg.RoundIntervalMS, logger, errc)

	fmt.Fprintf(stdout, "findagd: validator %s running (datadir=%s)\n", self, cfg.DataDir)
	err = <-errc
	stop()
	if err != nil && err != context.Canceled {
		logger.Error("node stopped with error", "err", err)
		return 1
	}
	return 0
}

// runFinalizerLoop drives the Finalizer's Tick on round_interval_ms, per
// spec §4.5. A FRONTIER_EMPTY tick (nothing new to finalize yet) is
// expected steady-state behavior and is not logged as a warning.
func runFinalizerLoop(ctx context.Context, fz *finalizer.Finalizer, roundIntervalMS uint64, logger *slog.Logger, errc chan<- error) {
	ticker := time.NewTicker(time.Duration(roundIntervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			errc <- ctx.Err()
			return
		case <-ticker.C:
			round, err := fz.Tick()
			if err != nil {
				var fe *finalizer.FinalizerError
				if !(errors.As(err, &fe) && fe.Code == finalizer.CodeFrontierEmpty) {
					logger.Warn("finalizer tick error", "err", err)
				}
				continue
			}
			if round != nil {
				logger.Info("round finalized", "number", round.Number)
			}
		}
	}
}
