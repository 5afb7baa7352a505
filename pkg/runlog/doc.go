// Package runlog provides type-safe Go definitions and Redis schema patterns
// for the flexprep run journal.
//
// # Overview
//
// The journal is an optional record of protocol runs: the CLI writes run
// records and step events while a protocol executes, and observers (a second
// terminal running 'flexprep watch', or 'flexprep runs' afterwards) read
// them. The robot never depends on the journal; a journal outage costs
// telemetry, not liquid.
//
// # Core Concepts
//
// A RunRecord is the lifecycle of one protocol execution: which protocol,
// when it started, how it ended, and the final tip bookkeeping. Records are
// stored as Redis hashes and updated in place as the run progresses.
//
// A StepEvent is one physical controller operation within a run. Steps are
// appended to a per-run list, preserving execution order, and fanned out on
// a Pub/Sub channel for live observers.
//
// # Multi-Workcell Support
//
// All Redis keys and Pub/Sub channels are namespaced by workcell name, so
// several benches can share one Redis server without interference.
//
// # Usage Example
//
//	opts, _ := redis.ParseURL("redis://localhost:6379")
//	client, err := runlog.NewClient(opts, "bench-a")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	record := &runlog.RunRecord{
//		ID:          uuid.New().String(),
//		Workcell:    "bench-a",
//		Protocol:    runlog.ProtocolMix,
//		Status:      runlog.RunStatusRunning,
//		StartedAtMs: time.Now().UnixMilli(),
//	}
//	if err := client.CreateRun(ctx, record); err != nil {
//		log.Fatal(err)
//	}
//
// Delivery on the events channel is at-most-once (Redis Pub/Sub): a slow or
// absent observer misses events, but the per-run step list keeps the full
// history for later inspection.
package runlog
