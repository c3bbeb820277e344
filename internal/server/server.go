// Package server assembles the application and runs it until shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MadBale/Mewsage-project/internal/api"
	"github.com/MadBale/Mewsage-project/internal/archive"
	"github.com/MadBale/Mewsage-project/internal/catsound"
	"github.com/MadBale/Mewsage-project/internal/conf"
	"github.com/MadBale/Mewsage-project/internal/datastore"
	"github.com/MadBale/Mewsage-project/internal/logging"
	"github.com/MadBale/Mewsage-project/internal/melspec"
	"github.com/MadBale/Mewsage-project/internal/observability"
	"github.com/MadBale/Mewsage-project/internal/offload"
	"github.com/MadBale/Mewsage-project/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

// Run builds every component from the settings and serves until the
// process receives SIGINT or SIGTERM.
func Run(settings *conf.Settings) error {
	logging.Init()
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}
	logger := logging.ForService("server")

	if err := telemetry.Init(settings); err != nil {
		return err
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	detector, err := catsound.LoadModel("cat-detector", &settings.Cascade.Detector)
	if err != nil {
		return err
	}
	defer detector.Close()

	classifier, err := catsound.LoadModel("cat-sound-classifier", &settings.Cascade.Classifier)
	if err != nil {
		return err
	}
	defer classifier.Close()

	pool := offload.NewPool(settings.Cascade.PoolSize)
	cascade := catsound.NewCascade(detector, classifier, settings.Cascade.TargetLabel, pool, settings.Cascade.Timeout)

	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return err
	}
	defer ds.Close()

	arch, err := archive.New(settings.Output.ClipPath)
	if err != nil {
		return err
	}

	extractor := melspec.New(melspec.Config{
		SampleRate: conf.FileSampleRate,
		NumMels:    conf.NumMels,
		FFTSize:    conf.FFTSize,
		HopLength:  conf.HopLength,
		NumFrames:  conf.NumFrames,
	})
	realtimeExtractor := melspec.New(melspec.Config{
		SampleRate: conf.RealtimeSampleRate,
		NumMels:    conf.NumMels,
		FFTSize:    conf.FFTSize,
		HopLength:  conf.HopLength,
		NumFrames:  conf.NumFrames,
	})

	controller := api.New(settings, ds, arch, extractor, realtimeExtractor, cascade, pool, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	address := fmt.Sprintf("%s:%d", settings.WebServer.Host, settings.WebServer.Port)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "address", address)
		if err := controller.Start(address); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := controller.Echo.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Error("pool shutdown failed", "error", err)
		}
		telemetry.Flush(2 * time.Second)
		return nil
	})

	return g.Wait()
}
