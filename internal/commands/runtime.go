package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/epalmerini/rabbitwatch/internal/config"
	"github.com/epalmerini/rabbitwatch/internal/metrics"
	"github.com/epalmerini/rabbitwatch/internal/monitor"
	"github.com/epalmerini/rabbitwatch/internal/proto"
	"github.com/epalmerini/rabbitwatch/internal/rabbitmq"
)

const shutdownTimeout = 5 * time.Second

// runtime is what every broker-facing command needs: the connection, the
// optional decoder and metrics, and a coordinator wired to them.
type runtime struct {
	cfg     config.Config
	log     zerolog.Logger
	manager *rabbitmq.Manager
	metrics *metrics.Metrics
	decoder monitor.PayloadDecoder

	metricsServer *http.Server
}

func newRuntime(cfg config.Config) (*runtime, error) {
	rt := &runtime{
		cfg: cfg,
		log: log.With().Str("component", "rabbitwatch").Logger(),
	}
	rt.manager = rabbitmq.NewManager(rt.log)

	if cfg.ProtoPath != "" {
		dec, err := proto.NewDecoder(cfg.ProtoPath)
		if err != nil {
			// binary payloads fall back to placeholders
			rt.log.Warn().Err(err).Str("path", cfg.ProtoPath).Msg("protobuf decoding disabled")
		} else {
			for _, w := range dec.Warnings() {
				rt.log.Warn().Str("path", cfg.ProtoPath).Msg(w)
			}
			rt.decoder = dec
		}
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m, err := metrics.NewMetrics(reg)
		if err != nil {
			return nil, err
		}
		rt.metrics = m
		rt.metricsServer = metrics.Serve(cfg.MetricsAddr, reg, rt.log)
	}
	return rt, nil
}

// connect opens the broker connection described by the resolved config.
func (rt *runtime) connect(ctx context.Context) error {
	return rt.manager.Connect(ctx, rt.cfg.Broker)
}

func (rt *runtime) coordinator(sink monitor.Sink) *monitor.Coordinator {
	return monitor.New(rt.manager, rt.manager, sink, rt.log, monitor.Options{
		Tick:        rt.cfg.Tick,
		MinInterval: rt.cfg.PollInterval,
		Grace:       rt.cfg.Grace,
		MaxMessages: rt.cfg.MaxMessages,
		Decoder:     rt.decoder,
		Metrics:     rt.metrics,
	})
}

func (rt *runtime) discovery(sink monitor.Sink) *monitor.Discovery {
	return monitor.NewDiscovery(rt.manager, rt.manager, sink, rt.log, rt.metrics)
}

func (rt *runtime) close() {
	rt.manager.Disconnect()
	if rt.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.metricsServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		rt.log.Error().Err(err).Msg("failed to shutdown metrics server")
	}
}
