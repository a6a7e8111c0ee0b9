package flags

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	commonCategory = "COMMON"
	poolCategory   = "POOL"
	actorCategory  = "ACTOR"
	proverCategory = "PROVER"
)

// Required flags used by the raiko-host binary.
var (
	L2RPCEndpoint = &cli.StringFlag{
		Name:     "l2.rpc",
		Usage:    "RPC endpoint of the L2 execution node used for direct and preflight-assisted block-data fetches",
		Required: true,
		Category: commonCategory,
		EnvVars:  []string{"L2_RPC"},
	}
	L1RPCEndpoint = &cli.StringFlag{
		Name:     "l1.rpc",
		Usage:    "RPC endpoint of the L1 execution node used to resolve BlockProposed events and anchor data",
		Required: true,
		Category: commonCategory,
		EnvVars:  []string{"L1_RPC"},
	}
	L2ChainID = &cli.Uint64Flag{
		Name:     "l2.chainId",
		Usage:    "Chain ID of the L2 network this host proves blocks for",
		Required: true,
		Category: commonCategory,
		EnvVars:  []string{"L2_CHAIN_ID"},
	}
)

// Optional flags used by the raiko-host binary.
var (
	BeaconEndpoint = &cli.StringFlag{
		Name:     "beacon.endpoint",
		Usage:    "Beacon-chain endpoint used to fetch blob sidecars for blob-path tx-lists",
		Category: commonCategory,
		EnvVars:  []string{"BEACON_ENDPOINT"},
	}
	BlobscanEndpoint = &cli.StringFlag{
		Name:     "blobscan.endpoint",
		Usage:    "Blobscan endpoint used as a fallback blob source when the beacon node has pruned the sidecar",
		Category: commonCategory,
		EnvVars:  []string{"BLOBSCAN_ENDPOINT"},
	}
	UsePreflightRPC = &cli.BoolFlag{
		Name:     "rpc.preflight",
		Usage:    "Use the single-shot taiko_provingPreflight RPC method instead of direct batched JSON-RPC",
		Category: commonCategory,
		Value:    false,
		EnvVars:  []string{"RPC_USE_PREFLIGHT"},
	}

	PoolBackend = &cli.StringFlag{
		Name:     "pool.backend",
		Usage:    "Task pool backend: \"memory\" or \"redis\"",
		Category: poolCategory,
		Value:    "memory",
		EnvVars:  []string{"POOL_BACKEND"},
	}
	PoolRedisAddr = &cli.StringFlag{
		Name:     "pool.redis.addr",
		Usage:    "Redis address, required when pool.backend=redis",
		Category: poolCategory,
		EnvVars:  []string{"POOL_REDIS_ADDR"},
	}

	ActorMaxConcurrentWorkers = &cli.UintFlag{
		Name:     "actor.maxConcurrentWorkers",
		Usage:    "Maximum number of proof tasks the actor runs concurrently",
		Category: actorCategory,
		Value:    4,
		EnvVars:  []string{"ACTOR_MAX_CONCURRENT_WORKERS"},
	}
	ActorBackOffMaxRetries = &cli.UintFlag{
		Name:     "actor.backOffMaxRetries",
		Usage:    "Maximum number of retries of a failed proving-backend call within one proof task",
		Category: actorCategory,
		Value:    3,
		EnvVars:  []string{"ACTOR_BACKOFF_MAX_RETRIES"},
	}

	ProverEnabledBackends = &cli.StringSliceFlag{
		Name:     "prover.enabledBackends",
		Usage:    "Proving backends to enable, e.g. native,sgx,sp1",
		Category: proverCategory,
		EnvVars:  []string{"PROVER_ENABLED_BACKENDS"},
	}
	ProverRequestTimeout = &cli.DurationFlag{
		Name:     "prover.requestTimeout",
		Usage:    "Timeout for a single proof request end to end",
		Category: proverCategory,
		Value:    10 * time.Minute,
		EnvVars:  []string{"PROVER_REQUEST_TIMEOUT"},
	}
)

// HostFlags is the full flag set for the raiko-host subcommand.
var HostFlags = []cli.Flag{
	L2RPCEndpoint,
	L1RPCEndpoint,
	L2ChainID,
	BeaconEndpoint,
	BlobscanEndpoint,
	UsePreflightRPC,
	PoolBackend,
	PoolRedisAddr,
	ActorMaxConcurrentWorkers,
	ActorBackOffMaxRetries,
	ProverEnabledBackends,
	ProverRequestTimeout,
}
