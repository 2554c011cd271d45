package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dooshek/candleblow/internal/audio"
	"github.com/dooshek/candleblow/internal/config"
	"github.com/dooshek/candleblow/internal/dbus"
	"github.com/dooshek/candleblow/internal/fileops"
	"github.com/dooshek/candleblow/internal/logger"
	"github.com/dooshek/candleblow/internal/notification"
	"github.com/dooshek/candleblow/internal/permalink"
	"github.com/dooshek/candleblow/internal/state"
	"github.com/dooshek/candleblow/internal/stats"
	"github.com/dooshek/candleblow/internal/types"
)

func init() {
	// Set custom usage message to show -- prefix
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage of %s:\n", os.Args[0])
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(out, "  --%s", f.Name)
			name, usage := flag.UnquoteUsage(f)
			if len(name) > 0 {
				fmt.Fprintf(out, " %s", name)
			}
			fmt.Fprintf(out, "\n    \t%s", usage)
			if f.DefValue != "" && f.DefValue != "false" {
				fmt.Fprintf(out, " (default %q)", f.DefValue)
			}
			fmt.Fprintf(out, "\n")
		})
		fmt.Fprintf(out, "\nSubcommands:\n  link\tCreate or check a shareable cake link (candleblow link --help)\n")
	}
}

func main() {
	runWizard := flag.Bool("wizard", false, "Run the configuration wizard")
	logLevel := flag.String("log-level", "info", "Set log level (debug|info|warn|error)")
	logFilename := flag.String("log-filename", "", "Log to file instead of stdout")
	input := flag.String("input", "", "Replay a recording instead of listening to the microphone")
	dump := flag.String("dump", "", "Save the captured microphone audio to this WAV file")
	dbusMode := flag.Bool("dbus", false, "Run as a D-Bus service for an external UI")
	listDevices := flag.Bool("list-devices", false, "List capture devices and exit")
	name := flag.String("name", "", "Name of the birthday person")
	message := flag.String("message", "", "Custom birthday message")
	link := flag.String("link", "", "Open a received cake link")
	noMusic := flag.Bool("no-music", false, "Do not play the birthday song")

	if len(os.Args) > 1 && os.Args[1] == "link" {
		logger.SetLevel("warn")
		cfg, err := config.LoadConfig()
		if err != nil {
			logger.Warnf("Ignoring unreadable config: %v", err)
		}
		if cfg == nil {
			cfg = types.DefaultConfig()
		}
		if err := runLink(os.Args[2:], cfg, os.Stdout, time.Now()); err != nil {
			if !errors.Is(err, flag.ErrHelp) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			os.Exit(1)
		}
		os.Exit(0)
	}

	flag.Parse()

	logger.SetLevel(*logLevel)
	if *logFilename != "" {
		if err := logger.SetOutputFile(*logFilename); err != nil {
			fmt.Printf("Error setting log file: %v\n", err)
			os.Exit(1)
		}
		defer logger.CloseLogFile()
	}

	if *runWizard {
		if err := config.RunWizard(); err != nil {
			logger.Error("Error running wizard", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if *listDevices {
		names, err := audio.ListCaptureDevices()
		if err != nil {
			logger.Error("Failed to list capture devices", err)
			os.Exit(1)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		os.Exit(0)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Error loading config", err)
		os.Exit(1)
	}
	if cfg == nil {
		logger.Info("No configuration found, using defaults")
		logger.Info("💡 Note: You can run `candleblow --wizard` to set up your cake")
		cfg = types.DefaultConfig()
	}

	if *link != "" {
		data, err := permalink.Parse(*link)
		if err != nil {
			logger.Error("Invalid cake link", err)
			os.Exit(1)
		}
		if err := data.Validate(time.Now()); err != nil {
			logger.Error("This cake is no longer available", err)
			os.Exit(1)
		}
		*name, *message = data.Name, data.Message
		logger.Infof("🎂 Cake for %s, %s", data.Name, permalink.FormatTimeRemaining(data.TimeRemaining(time.Now())))
	}

	if *noMusic {
		cfg.Sounds.Music.Enabled = false
	}

	state.Init(cfg, *name, *message)

	if err := run(*input, *dump, *dbusMode, *logFilename != ""); err != nil {
		logger.Error("Candleblow failed", err)
		os.Exit(1)
	}
}

func run(input, dump string, daemon, logToFile bool) error {
	app := state.Get()

	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return fmt.Errorf("failed to initialize file operations: %w", err)
	}
	if err := fileOps.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create necessary directories: %w", err)
	}

	opts := partyOptions{
		detector:  app.GetDetectorConfig(),
		cake:      app.GetCakeConfig(),
		manualKey: app.Config.GetManualKey(),
		name:      app.Name,
		message:   app.Message,
	}

	if input != "" {
		opts.source = audio.NewFileSource(input, app.GetCaptureConfig())
		opts.sourceName = filepath.Base(input)
		opts.replay = true
		opts.notifier = notification.NewSilent()
	} else {
		// Only one process may hold the microphone
		if err := fileOps.CheckPID(); errors.Is(err, fileops.ErrProcessAlreadyRunning) {
			return err
		}
		if err := fileOps.SavePID(); err != nil {
			return fmt.Errorf("failed to save PID file: %w", err)
		}
		defer func() {
			if err := fileOps.CleanupPID(); err != nil {
				logger.Error("Failed to cleanup PID file", err)
			}
		}()

		if dump != "" && filepath.Dir(dump) == "." {
			dump = filepath.Join(fileOps.GetDumpsDir(), dump)
		}
		opts.source = audio.NewMicSource(app.GetCaptureConfig(), dump)
		opts.sourceName = "microphone"
		opts.notifier = notification.New(app.Config.Sounds, fileOps.GetSoundsDir())
	}

	if daemon {
		opts.stay = true
		opts.notifier = notification.NewSilent()
	} else {
		opts.out = os.Stdout
		if !logToFile {
			// The cake owns the terminal
			if err := logger.SetOutputFile(filepath.Join(fileOps.GetConfigDir(), "candleblow.log")); err != nil {
				logger.Warnf("Could not redirect log to file: %v", err)
			}
			defer logger.CloseLogFile()
		}
	}

	if sm, err := stats.NewStatsManager(); err != nil {
		logger.Warnf("Statistics disabled: %v", err)
	} else {
		opts.stats = sm
	}

	p := newParty(opts)

	if daemon {
		server := dbus.NewServer(p.detector, p.cake)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start D-Bus service: %w", err)
		}
		defer server.Stop()
		p.setPresenter(server)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("🎂 %d candles lit, blow!", opts.cake.Candles)
	return p.run(ctx)
}
