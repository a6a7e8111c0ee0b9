package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/taikoxyz/raiko-sub001/actor"
	"github.com/taikoxyz/raiko-sub001/builder"
	"github.com/taikoxyz/raiko-sub001/cmd/flags"
	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	rpcpkg "github.com/taikoxyz/raiko-sub001/pkg/rpc"
	"github.com/taikoxyz/raiko-sub001/pkg/witness"
	"github.com/taikoxyz/raiko-sub001/pool"
	"github.com/taikoxyz/raiko-sub001/preflight"
	"github.com/taikoxyz/raiko-sub001/proof/producer"
	"github.com/taikoxyz/raiko-sub001/statedb"
)

func main() {
	app := cli.NewApp()

	envFile := os.Getenv("RAIKO_HOST_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	app.Name = "raiko-host"
	app.Usage = "Taiko block-proving host: preflight, build, prove, aggregate"
	app.Description = "Proving core of the Taiko rollup prover, in Golang"
	app.EnableBashCompletion = true

	app.Commands = []*cli.Command{
		{
			Name:   "host",
			Flags:  flags.HostFlags,
			Usage:  "Starts the proof actor and its task pool",
			Action: runHost,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// blockProvider is what both pkg/rpc providers offer the preflight engine:
// block/header fetches for step 1 plus the account/storage/block-hash reads
// statedb.ProviderDB pulls on a miss.
type blockProvider interface {
	preflight.BlockClient
	statedb.BlockDataProvider
}

// preflightBlockProvider adapts PreflightProvider's Direct() handle to
// satisfy preflight.BlockClient, since full block bodies are outside the
// taiko_provingPreflight response (state reads only).
type preflightBlockProvider struct {
	*rpcpkg.PreflightProvider
}

func (p preflightBlockProvider) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	return p.Direct().BlockByNumber(ctx, number)
}

func (p preflightBlockProvider) HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	return p.Direct().HeaderByNumber(ctx, number)
}

// runHost wires C1 (block-data providers), C2 (preflight), C4 (builder),
// C5 (producers), C6 (pool), and C7 (actor) into one running process,
// grounded on the teacher's blob-aggregator cmd/main.go Action-function
// shape, generalized from a single http.API resource to the full proving
// pipeline this spec's components form together.
func runHost(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l2Endpoint := c.String(flags.L2RPCEndpoint.Name)
	usePreflight := c.Bool(flags.UsePreflightRPC.Name)

	var provider blockProvider
	if usePreflight {
		pp, err := rpcpkg.NewPreflightProvider(ctx, &rpcpkg.PreflightConfig{Endpoint: l2Endpoint})
		if err != nil {
			return fmt.Errorf("raiko-host: new preflight provider: %w", err)
		}
		provider = preflightBlockProvider{pp}
	} else {
		dp, err := rpcpkg.NewDirectProvider(ctx, &rpcpkg.DirectConfig{Endpoint: l2Endpoint})
		if err != nil {
			return fmt.Errorf("raiko-host: new direct provider: %w", err)
		}
		provider = dp
	}

	chainID := new(big.Int).SetUint64(c.Uint64(flags.L2ChainID.Name))
	b := builder.New(builder.NewValueTransferExecutor(chainID))

	preflighter := preflight.New(
		provider,
		unimplementedAnchorDecoder{},
		unimplementedL1Resolver{},
		unimplementedTxListResolver{},
		provider,
		b,
	)
	pipeline := preflight.NewPipeline(preflighter, staticChainSpecs{spec: witness.ChainSpec{
		Name:    "l2",
		ChainID: chainID.Uint64(),
		IsTaiko: true,
	}})

	p, err := newPool(ctx, c)
	if err != nil {
		return err
	}

	producers := map[proofrequest.ProofType]producer.ProofProducer{
		proofrequest.ProofTypeNative: producer.NativeProducer{},
	}
	for _, name := range c.StringSlice(flags.ProverEnabledBackends.Name) {
		if name == "native" {
			continue
		}
		log.Warn("Proving backend requested but not wired into this binary", "backend", name)
	}

	a := actor.New(actor.Config{
		MaxConcurrentWorkers: int64(c.Uint(flags.ActorMaxConcurrentWorkers.Name)),
		BackOffMaxRetries:    uint64(c.Uint(flags.ActorBackOffMaxRetries.Name)),
	}, p, pipeline, producers)

	a.Start(ctx)
	defer a.Close()

	log.Info("raiko-host started", "l2Endpoint", l2Endpoint, "preflightRPC", usePreflight)

	<-ctx.Done()
	log.Info("raiko-host shutting down")
	return nil
}

func newPool(ctx context.Context, c *cli.Context) (pool.Pool, error) {
	switch backend := c.String(flags.PoolBackend.Name); backend {
	case "", "memory":
		return pool.NewMemoryPool(), nil
	case "redis":
		addr := c.String(flags.PoolRedisAddr.Name)
		if addr == "" {
			return nil, fmt.Errorf("raiko-host: pool.backend=redis requires pool.redis.addr")
		}
		return pool.NewRedisPool(ctx, pool.RedisConfig{Addr: addr, TTL: 24 * time.Hour})
	default:
		return nil, fmt.Errorf("raiko-host: unknown pool backend %q", backend)
	}
}
