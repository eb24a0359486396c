package metrics

// Pre-defined metrics for the eau2 key-value/dataframe node. All metrics
// live in DefaultRegistry so they are globally accessible without passing a
// registry around.

var (
	// ---- KV plane metrics ----

	// KVPuts counts put() calls resolved locally or forwarded remotely.
	KVPuts = DefaultRegistry.Counter("kv.put.total")
	// KVGets counts get() calls.
	KVGets = DefaultRegistry.Counter("kv.get.total")
	// KVWaitAndGets counts wait_and_get() calls.
	KVWaitAndGets = DefaultRegistry.Counter("kv.wait_and_get.total")
	// KVMapSize tracks the number of entries in this node's local map.
	KVMapSize = DefaultRegistry.Gauge("kv.map.size")
	// KVRemoteLatency records the round-trip latency of forwarded
	// put/get/wait_and_get calls in milliseconds.
	KVRemoteLatency = DefaultRegistry.Histogram("kv.remote.latency_ms")

	// ---- Dataframe / chunk metrics ----

	// ChunkFlushes counts DistributedColumn chunk flushes (put of a full chunk).
	ChunkFlushes = DefaultRegistry.Counter("dataframe.chunk.flush_total")
	// ChunkFetches counts cache-miss chunk fetches during DistributedColumn.Get.
	ChunkFetches = DefaultRegistry.Counter("dataframe.chunk.fetch_total")
	// ChunkCacheHits counts DistributedColumn.Get calls served from the
	// single-slot chunk cache without a KV fetch.
	ChunkCacheHits = DefaultRegistry.Counter("dataframe.chunk.cache_hit_total")

	// ---- Transport / cluster metrics ----

	// PeersConnected tracks the current number of established peer connections.
	PeersConnected = DefaultRegistry.Gauge("transport.peers.connected")
	// MessagesReceived counts frames decoded off any connection.
	MessagesReceived = DefaultRegistry.Counter("transport.messages.received_total")
	// MessagesSent counts frames written to any connection.
	MessagesSent = DefaultRegistry.Counter("transport.messages.sent_total")
	// WorkersActive tracks in-flight Put/Get/WaitAndGet worker goroutines.
	WorkersActive = DefaultRegistry.Gauge("transport.workers.active")
	// MessageRate tracks the 1/5/15-minute throughput of frames exchanged
	// with peers (SendTo and readLoop both Mark it), surfaced through a
	// MeterCollector alongside the Prometheus counters.
	MessageRate = NewMeter()
)
