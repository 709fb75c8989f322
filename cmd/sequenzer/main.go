package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"dmx-sequenzer/internal/agent"
	"dmx-sequenzer/internal/config"
	"dmx-sequenzer/internal/core"
)

// These variables will be set by the build script
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "config.json", "configuration file path")
	sequenceName := flag.String("sequence", "", "run the named sequence headless and exit")
	loop := flag.Bool("loop", false, "loop the sequence (with -sequence)")
	testDMX := flag.Bool("test-dmx", false, "walk channels 1-8 and exit")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	logrus.Infof("Starting DMX Sequenzer version: %s, commit: %s, built: %s", version, commit, date)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	a, err := agent.NewAgent(cfg)
	if err != nil {
		logrus.Fatalf("Failed to create agent: %v", err)
	}

	if *testDMX {
		runDMXTest(a)
		a.Shutdown()
		return
	}

	if *sequenceName != "" {
		runHeadless(a, *sequenceName, *loop)
		a.Shutdown()
		return
	}

	go a.Run()

	// Wait for termination signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down agent...")
	a.Shutdown()
	logrus.Info("Agent shut down gracefully.")
}

// runDMXTest walks the first eight channels, half a second each.
func runDMXTest(a *agent.Agent) {
	logrus.Info("Testing DMX output...")
	for ch := 1; ch <= 8; ch++ {
		a.Transmitter().WriteChannel(ch, 255)
		time.Sleep(500 * time.Millisecond)
		a.Transmitter().WriteChannel(ch, 0)
	}
}

// runHeadless runs one sequence without the web interface. In loop mode it
// runs until interrupted.
func runHeadless(a *agent.Agent, name string, loop bool) {
	seq, err := a.Store().Load(name)
	if err != nil {
		logrus.Fatalf("Sequence '%s': %v", name, err)
	}

	mode := core.RunOnce
	if loop {
		mode = core.RunLoop
	}
	if err := a.Engine().Start(seq, mode); err != nil {
		logrus.Fatalf("Failed to start sequence: %v", err)
	}

	if loop {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		_ = a.Engine().Stop()
		return
	}

	for a.Engine().Status().Running {
		time.Sleep(100 * time.Millisecond)
	}
}
