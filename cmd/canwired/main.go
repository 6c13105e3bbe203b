// canwired runs two protocol nodes over an in-process loopback bus
// and exposes health and metrics over HTTP. It exists to exercise the
// transfer engine end to end; real deployments replace the loopback
// with a hardware link driver.
package main

import (
	"encoding/binary"
	"flag"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tarnhill/canwire/internal/config"
	"github.com/tarnhill/canwire/internal/link"
	"github.com/tarnhill/canwire/internal/node"
	"github.com/tarnhill/canwire/internal/observability"
	"github.com/tarnhill/canwire/internal/wire"
)

const demoSubject uint16 = 100

var startedAt = time.Now()

func main() {
	configPath := flag.String("config", "", "path to node TOML config")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadNodeConfig(*configPath)
		if err != nil {
			bootLogger := observability.InitLogger("canwired")
			bootLogger.Fatal().Err(err).Msg("config")
		}
		cfg = loaded
	}

	logger := observability.InitLogger(cfg.Name)
	observability.RegisterMetrics()

	bus := link.NewLoopback(time.Now)
	pub := node.New(node.Options{
		NodeID: cfg.NodeID, Name: cfg.Name,
		Limits: cfg.Limits(), Sessions: cfg.Sessions, QueueCapacity: cfg.QueueCapacity,
	}, bus.NewPort(0, cfg.QueueCapacity), logger)
	sub := node.New(node.Options{
		NodeID: cfg.NodeID + 1, Name: cfg.Name + "-peer",
		Limits: cfg.Limits(), Sessions: cfg.Sessions, QueueCapacity: cfg.QueueCapacity,
	}, bus.NewPort(1, cfg.QueueCapacity), logger)
	sub.Subscribe(node.Subscription{Kind: wire.KindMessage, PortID: demoSubject})

	go drive(cfg, logger, pub, sub)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"uptime":      time.Since(startedAt).String(),
			"node":        cfg.Name,
			"queue_depth": pub.QueueDepth(),
			"sessions":    sub.Sessions(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info().Str("addr", cfg.Addr).Msg("canwired listening")
	if err := r.Run(cfg.Addr); err != nil {
		logger.Fatal().Err(err).Msg("http server")
	}
}

// drive is the external poll loop the engine is designed around: it
// publishes a counter payload, pumps both directions, and prunes
// stale sessions at the configured cadence.
func drive(cfg config.NodeConfig, logger zerolog.Logger, pub, sub *node.Node) {
	publish := time.NewTicker(time.Second)
	pump := time.NewTicker(10 * time.Millisecond)
	prune := time.NewTicker(cfg.PruneEvery())
	defer publish.Stop()
	defer pump.Stop()
	defer prune.Stop()

	var counter uint64
	for {
		select {
		case <-publish.C:
			counter++
			payload := make([]byte, 8)
			binary.BigEndian.PutUint64(payload, counter)
			if err := pub.Publish(wire.PriorityNominal, demoSubject, payload); err != nil {
				logger.Warn().Err(err).Msg("publish")
			}
		case <-pump.C:
			if err := pub.PumpTx(); err != nil {
				logger.Error().Err(err).Msg("pump tx")
			}
			for _, tr := range sub.PumpRx() {
				logger.Info().
					Uint8("source", tr.Source).
					Uint16("subject", tr.PortID).
					Int("bytes", len(tr.Payload)).
					Msg("transfer received")
			}
		case <-prune.C:
			now := time.Now()
			if n := sub.Prune(now, cfg.MaxAge()); n > 0 {
				logger.Debug().Int("evicted", n).Msg("pruned stale sessions")
			}
		}
	}
}
