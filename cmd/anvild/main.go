// Command anvild runs one market's matching core: the ingress TCP
// listener, the single-threaded matching loop, the event buffer, and the
// event writer that forwards batches to the downstream settlement sink.
// Wiring is manual, grounded on the teacher's cmd/main.go /
// cmd/server/server.go style rather than a dependency-injection
// framework the pack never uses.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/anvil-exchange/anvil/internal/config"
	"github.com/anvil-exchange/anvil/internal/eventbuffer"
	"github.com/anvil-exchange/anvil/internal/eventsink"
	"github.com/anvil-exchange/anvil/internal/eventwriter"
	"github.com/anvil-exchange/anvil/internal/ingress"
	"github.com/anvil-exchange/anvil/internal/matchingloop"
	"github.com/anvil-exchange/anvil/internal/server"
)

func main() {
	market := flag.String("market", "BTC-USD", "market symbol this instance matches")
	ingressAddr := flag.String("ingress-addr", "", "override the default ingress listen address")
	sinkEndpoint := flag.String("sink-endpoint", "", "override the default event sink address")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg := config.Default(*market)
	if *ingressAddr != "" {
		cfg.IngressAddr = *ingressAddr
	}
	if *sinkEndpoint != "" {
		cfg.SinkEndpoint = *sinkEndpoint
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	queue := ingress.NewQueue(cfg.IngressQueueSize)
	buffer := eventbuffer.New(cfg.EventBufferSize)

	adapter, err := ingress.NewAdapter(cfg.Market, queue, cfg.DedupWindowSize)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to construct ingress adapter")
	}

	loop := matchingloop.New(cfg.Market, queue, buffer)

	srv := server.New(cfg.IngressAddr, adapter)
	loop.SetReporter(srv)

	sink := eventsink.NewTCPSink(cfg.SinkEndpoint, cfg.SinkDialTimeout)
	writer := eventwriter.New(buffer, sink, cfg.EventBatchSize, cfg.EventBatchTimeout)

	log.Info().
		Str("market", cfg.Market).
		Str("ingressAddr", cfg.IngressAddr).
		Str("sinkEndpoint", cfg.SinkEndpoint).
		Msg("starting anvild")

	errCh := make(chan error, 3)
	go func() { errCh <- loop.Run(ctx) }()
	go func() { errCh <- writer.Run(ctx) }()
	go func() { errCh <- srv.Run(ctx) }()

	remaining := 3
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, draining")
	case err := <-errCh:
		remaining--
		if err != nil {
			log.Error().Err(err).Msg("a core component exited with an error")
		}
		stop()
	}

	// Draining: the ingress server and matching loop both observe the
	// same cancelled ctx and unwind; we wait for the rest to report back
	// before the process exits (spec section 6's draining phase).
	for i := 0; i < remaining; i++ {
		<-errCh
	}
	log.Info().Msg("anvild stopped")
}
