package config

// Etcd server hostname
const ETCD_ADDRESS = "etcd.address"

// Keep all state in-process instead of etcd (single-host deployments, tests)
const STATE_LOCAL = "state.local"

// Address other hosts use to reach this one
const HOST_ADDRESS = "host.address"

// Interface the transport servers bind to
const BIND_ADDRESS = "host.bind"

// Cores the scheduler may fill before overloading executors
const USABLE_CORES = "scheduler.cores"

// Timeout for synchronous transport requests (ms)
const TRANSPORT_TIMEOUT_MS = "transport.timeout"

// Max connections served concurrently by a transport server
const TRANSPORT_WORKERS = "transport.workers"

// TTL for per-call result entries (seconds)
const RESULT_TTL = "scheduler.result.ttl"

// TTL for per-call status entries (seconds)
const STATUS_TTL = "scheduler.status.ttl"

// Capacity of every (sender, receiver) message queue in a world
const MPI_QUEUE_SIZE = "mpi.queue.size"

// Workers fulfilling isend/irecv requests per world
const MPI_ASYNC_WORKERS = "mpi.async.workers"

// Registration lease TTL (seconds)
const REGISTRY_TTL = "registry.ttl"

// Interval between host resource reports (seconds)
const MONITORING_INTERVAL = "registry.monitoring.interval"

// Admin API port
const API_PORT = "api.port"

// Expose prometheus metrics (true/false)
const METRICS_ENABLED = "metrics.enabled"

// Prometheus scrape endpoint port
const METRICS_PORT = "metrics.port"

// Local cache tuning
const CACHE_SIZE = "cache.size"
const CACHE_CLEANUP = "cache.cleanup"
const CACHE_ITEM_EXPIRATION = "cache.expiration"
