// Package distrib runs calibration across multiple processes over NATS
// JetStream.
//
// A Coordinator plans the observation, assigns every chunk to a worker with a
// consistent hash ring, and publishes one task per chunk to a JetStream
// work-queue stream. Workers consume their own task subjects, solve chunks
// with a local engine, and publish the results to a result stream. The
// coordinator collects results as they arrive and assembles the final
// solution table.
//
// Chunk placement is band-affine: every chunk of one frequency band hashes to
// the same worker, so a band's warm-start lineage stays local to that worker.
// Tasks are published in time order per band and each worker consumes its
// subjects in order, which preserves the warm-start chain without any
// cross-process coordination.
//
// Config.Balanced trades some of that affinity for an even element load:
// chunks spill off a worker that runs ahead of the average, and a spilled
// chunk cold-starts on its new worker.
//
// # Usage
//
// Coordinator side:
//
//	coord, err := distrib.NewCoordinator(eng, nc, []string{"w0", "w1"}, distrib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	table, err := coord.Run(ctx)
//
// Worker side (one process per worker ID):
//
//	worker, err := distrib.NewWorker(eng, nc, "w0", distrib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = worker.Run(ctx) // blocks until ctx is cancelled
//
// Both sides must be constructed with the same Config and with engines built
// from the same configuration and visibility source.
package distrib
