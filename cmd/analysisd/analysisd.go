package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/formtrack/server/analysisd"
	"github.com/cyclopcam/formtrack/server/config"
	"github.com/cyclopcam/logs"
)

func main() {
	parser := argparse.NewParser("analysisd", "Reference movement analysis service")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file (JSON or YAML)", Default: ""})
	listen := parser.String("l", "listen", &argparse.Options{Help: "Listen address (overrides config)", Default: ""})
	dbFile := parser.String("", "db", &argparse.Options{Help: "sqlite database (overrides config)", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if *configFile != "" {
		if cfg, err = config.LoadConfig(*configFile); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	}
	sc := cfg.AnalysisServer
	if *listen != "" {
		sc.Listen = *listen
	}
	if *dbFile != "" {
		sc.Database = *dbFile
	}
	if len(sc.APIKeys) == 0 {
		logger.Warnf("No apiKeys configured. Requests will not be authenticated")
	}

	srv, err := analysisd.NewServer(logger, sc.Database, sc.APIKeys, sc.RequestsPerMinute)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.Infof("Received signal %v. Shutting down", sig)
		if err := srv.Close(); err != nil {
			logger.Errorf("Error during shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(sc.Listen); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	logger.Infof("Exiting")
}
