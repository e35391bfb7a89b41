package flags

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/storage-adapter/adapter"
	"github.com/ruteri/storage-adapter/common"
	"github.com/ruteri/storage-adapter/httpserver"
	"github.com/ruteri/storage-adapter/interfaces"
	"github.com/ruteri/storage-adapter/storage"
	"github.com/ruteri/storage-adapter/versionindex"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// BuildAdapter opens the backend and version index named by the storage
// flags and wires them into an adapter.
func BuildAdapter(cCtx *cli.Context, logger *slog.Logger) (*adapter.Adapter, error) {
	backendURI := cCtx.String(BackendFlag.Name)
	indexURI := cCtx.String(IndexFlag.Name)

	backend, err := storage.NewStorageBackendFactory(logger).BackendFromURI(backendURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open backend %s: %w", backendURI, err)
	}

	ctx, cancel := context.WithTimeout(cCtx.Context, 30*time.Second)
	defer cancel()

	index, err := versionindex.Open(ctx, indexURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open version index: %w", err)
	}

	var verifier interfaces.Verifier
	switch v := cCtx.String(VerifierFlag.Name); v {
	case "checksum":
		verifier = adapter.ChecksumVerifier{}
	case "null":
		verifier = adapter.NullVerifier{}
	default:
		return nil, fmt.Errorf("invalid verifier: %s", v)
	}

	a, err := adapter.New(&adapter.Config{
		Backend:  backend,
		Verifier: verifier,
		Prefix:   cCtx.String(PrefixFlag.Name),
		Versions: index,
		SpoolDir: cCtx.String(SpoolDirFlag.Name),
		Log:      logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Storage adapter ready",
		slog.String("backend", backend.Name()),
		slog.String("scheme", a.Scheme()))
	return a, nil
}

var BackendFlag = &cli.StringFlag{
	Name:    "backend",
	Value:   "file:///tmp/storage-adapter",
	EnvVars: []string{"STORAGE_BACKEND"},
	Usage:   "storage backend URI: memory://, file://, s3://, minio://, ipfs:// or vault://",
}
var IndexFlag = &cli.StringFlag{
	Name:    "index",
	Value:   "",
	EnvVars: []string{"STORAGE_INDEX"},
	Usage:   "version index URI: memory://, redis://, badger:// or sqlite:// (default in-memory)",
}
var PrefixFlag = &cli.StringFlag{
	Name:  "prefix",
	Value: "",
	Usage: "namespace prefix for keys and public ids",
}
var VerifierFlag = &cli.StringFlag{
	Name:  "verifier",
	Value: "checksum",
	Usage: "post-write verification: 'checksum' or 'null'",
}
var SpoolDirFlag = &cli.StringFlag{
	Name:  "spool-dir",
	Value: "",
	Usage: "directory for temporary copies of streamed uploads (default system temp dir)",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var StorageFlags = []cli.Flag{
	BackendFlag,
	IndexFlag,
	PrefixFlag,
	VerifierFlag,
	SpoolDirFlag,
}

var CommonFlags = []cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
