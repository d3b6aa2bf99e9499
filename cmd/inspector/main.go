package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"gopkg.in/natefinch/lumberjack.v2"

	"cdctrl/config"
	core "cdctrl/ingestion/service/core"
	grpchandler "cdctrl/ingestion/service/grpc"
	httphandler "cdctrl/ingestion/service/http"
	"cdctrl/internal/messaging/consumer"
	"cdctrl/internal/messaging/producer"
	"cdctrl/internal/models"
	"cdctrl/internal/session"
	"cdctrl/internal/store"
	worker "cdctrl/processing"
	"cdctrl/storage/archive"
)

// drainTimeout bounds how long shutdown waits for queued records to be committed
const drainTimeout = 5 * time.Second

func main() {
	configDir := flag.String("config-dir", "./config", "directory holding inspector.yml or inspector.defaults.yml")
	configFile := flag.String("config", "", "explicit configuration file, overrides -config-dir")
	flag.Parse()

	logger := log.New(os.Stdout, "[INSPECTOR] ", log.LstdFlags|log.Lshortfile)
	logger.Println("Starting cdctrl log inspector...")

	// 1. Load configuration
	var cfg *config.InspectorConfig
	var err error
	if *configFile != "" {
		cfg, err = config.LoadInspectorConfig(*configFile)
	} else {
		cfg, err = config.LoadConfig(*configDir)
	}
	if err != nil {
		logger.Fatalf("FATAL: Failed to load inspector configuration: %v", err)
	}

	if cfg.Logging.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
		}
		defer rotator.Close()
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
		logger.Printf("Logging to %s as well as stdout", cfg.Logging.File)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Store, sessions and optional autoload
	logStore := store.New(cfg.Store.LockTimeout)
	sessions := session.NewManager(logStore, cfg.Session.FilenameFormat, cfg.Session.Directory, logger)
	if cfg.Session.PreserveSession {
		loaded, err := sessions.LoadIfExists(cfg.Session.AutosavePath)
		switch {
		case err != nil:
			logger.Printf("Warning: Failed to restore previous session from '%s': %v", cfg.Session.AutosavePath, err)
		case loaded:
			logger.Printf("Restored previous session from '%s'", cfg.Session.AutosavePath)
		}
	}

	// 3. Optional archive sinks
	var archiver core.Archiver
	var batchProcessor *core.BatchProcessor
	var dbStore archive.Store
	var kafkaProducer producer.Producer
	if cfg.Database.DSN != "" {
		logger.Println("Initializing archive database connection...")
		cfg.Database.LogConfiguration(logger)
		pg, err := archive.NewPostgresStore(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatalf("FATAL: Failed to initialize archive database: %v", err)
		}
		dbStore = pg
	}
	if cfg.KafkaProducer.Enabled() {
		logger.Println("Initializing archive Kafka producer...")
		kp, err := producer.NewKafkaProducer(cfg.KafkaProducer, logger)
		if err != nil {
			logger.Fatalf("FATAL: Failed to initialize Kafka producer: %v", err)
		}
		kafkaProducer = kp
	}
	if cfg.ArchiveEnabled() {
		batchProcessor = core.NewBatchProcessor(
			cfg.Archive.BatchSize,
			cfg.Archive.BatchTimeout,
			cfg.Archive.FlushChannelBuffer,
			cfg.Archive.MaxBufferSize,
			dbStore,
			kafkaProducer,
			logger,
		)
		archiver = batchProcessor
	}

	// 4. Ingestion loop
	inbound := make(chan models.LogRecord, cfg.Store.InboundBuffer)
	notifier := core.NewNotifier()
	ingestion := core.NewService(logStore, inbound, notifier, archiver, logger, cfg.Store.RetryDelay)
	ingestion.Start()
	sink := core.NewChannelSink(inbound, ingestion.Done())

	var wg sync.WaitGroup

	// 5. [Conditional startup] HTTP server
	var httpServer *http.Server
	if cfg.HttpListenAddr != "" {
		handler := httphandler.NewLogHandler(logStore, sink, sessions, notifier, cfg.HttpListenAddr, logger)

		readTimeout := cfg.HttpServer.ReadTimeout
		if readTimeout == 0 {
			readTimeout = 5 * time.Second
		}
		// must outlast the /v1/changes long-poll
		writeTimeout := cfg.HttpServer.WriteTimeout
		if writeTimeout == 0 {
			writeTimeout = 35 * time.Second
		}
		idleTimeout := cfg.HttpServer.IdleTimeout
		if idleTimeout == 0 {
			idleTimeout = 60 * time.Second
		}
		maxHeaderBytes := cfg.HttpServer.MaxHeaderBytes
		if maxHeaderBytes == 0 {
			maxHeaderBytes = 1 << 20 // 1 MB
		}

		httpServer = &http.Server{
			Addr:           cfg.HttpListenAddr,
			Handler:        handler.Routes(),
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			IdleTimeout:    idleTimeout,
			MaxHeaderBytes: maxHeaderBytes,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Printf("HTTP server listening on %s", cfg.HttpListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("HTTP server startup failed: %v", err)
			}
			logger.Println("HTTP server stopped listening.")
		}()
	} else {
		logger.Println("http_listen_addr not configured, skipping HTTP server startup.")
	}

	// 6. [Conditional startup] gRPC server
	var grpcServer *grpc.Server
	if cfg.GrpcListenAddr != "" {
		lis, err := net.Listen("tcp", cfg.GrpcListenAddr)
		if err != nil {
			logger.Fatalf("Unable to listen on gRPC port %s: %v", cfg.GrpcListenAddr, err)
		}
		grpcServer = grpc.NewServer()
		grpchandler.NewServer(sink, logger).Register(grpcServer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Printf("gRPC server listening on %s", lis.Addr())
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Fatalf("gRPC server startup failed: %v", err)
			}
			logger.Println("gRPC server stopped listening.")
		}()
	} else {
		logger.Println("grpc_listen_addr not configured, skipping gRPC server startup.")
	}

	// 7. [Conditional startup] message queue bridge
	var mqConsumer consumer.Consumer
	var workerWg sync.WaitGroup
	if cfg.KafkaConsumer.Enabled() {
		if cfg.KafkaConsumer.IsMock() {
			logger.Println("Initializing Mock message queue consumer...")
			mqConsumer = consumer.NewMockConsumer(logger, nil)
		} else {
			logger.Println("Initializing Kafka message queue consumer...")
			kc, err := consumer.NewKafkaConsumer(cfg.KafkaConsumer, logger)
			if err != nil {
				logger.Fatalf("FATAL: Failed to initialize Kafka consumer: %v", err)
			}
			mqConsumer = kc
		}

		bridge := worker.New(cfg.KafkaConsumer, logger, mqConsumer, sink)
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			bridge.Run(ctx)
		}()
	} else {
		logger.Println("kafka_consumer not configured, skipping message queue bridge.")
	}

	// 8. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Printf("Received shutdown signal: %s, starting graceful shutdown...", sig)
	case <-ingestion.Done():
		logger.Println("Ingestion loop exited unexpectedly, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Stop producers of records first so the inbound channel can be closed safely
	producersStopped := true
	if httpServer != nil {
		logger.Println("Shutting down HTTP server...")
		notifier.Notify() // release pending /v1/changes waits
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			// handlers may still be blocked sending on inbound
			producersStopped = false
			logger.Printf("HTTP server shutdown failed: %v", err)
		} else {
			logger.Println("HTTP server shutdown.")
		}
	}
	if grpcServer != nil {
		logger.Println("Shutting down gRPC server...")
		grpcServer.GracefulStop()
		logger.Println("gRPC server shutdown.")
	}
	cancel()
	workerWg.Wait()
	if mqConsumer != nil {
		mqConsumer.Close()
	}
	wg.Wait()

	// Commit what is still queued, then stop the loop
	if dropped := ingestion.Shutdown(inbound, producersStopped, drainTimeout); dropped > 0 {
		logger.Printf("Warning: Dropping %d uncommitted records", dropped)
	}

	if batchProcessor != nil {
		logger.Println("Flushing archive...")
		batchProcessor.Close()
	}
	if kafkaProducer != nil {
		kafkaProducer.Close()
	}
	if dbStore != nil {
		dbStore.Close()
	}

	if cfg.Session.PreserveSession {
		if err := sessions.SaveFile(cfg.Session.AutosavePath); err != nil {
			logger.Printf("Warning: Failed to autosave session to '%s': %v", cfg.Session.AutosavePath, err)
		}
	}

	logger.Println("All components stopped. Inspector shutdown.")
}
