package metrics

var latencyBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}

// CommandReceived counts one protocol envelope by command name.
func CommandReceived(command string) {
	Collector.Counter("commands_total", "Protocol envelopes received by command", Labels("command", command)).Inc()
}

// ToolCall counts one CALL_TOOL attempt and records its latency.
func ToolCall(toolID, outcome string, seconds float64) {
	Collector.Counter("tool_calls_total", "Tool invocations by tool and outcome",
		Labels("tool", toolID, "outcome", outcome)).Inc()
	Collector.Histogram("tool_latency_seconds", "Tool execution latency in seconds",
		Labels("tool", toolID), latencyBuckets).Observe(seconds)
}

// ContextKeys reports the number of keys in the global context.
func ContextKeys(n int) {
	Collector.Gauge("context_keys", "Keys held in the global context", "").Set(int64(n))
}

// PolicyBlock counts a local command refused by the command policy.
func PolicyBlock() {
	Collector.Counter("policy_blocks_total", "Local commands refused by policy", "").Inc()
}
