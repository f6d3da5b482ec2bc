package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"carevox/internal/alert"
	"carevox/internal/config"
	"carevox/internal/conversation"
	"carevox/internal/dialog"
	"carevox/internal/ipc"
	"carevox/internal/nlu"
	"carevox/internal/notify"
	"carevox/internal/proxy"
	"carevox/internal/reminder"
	"carevox/internal/session"
	"carevox/internal/storage"
	"carevox/pkg/protocol"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	os.Exit(start())
}

func start() int {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	config.AddFlags(cli.CommandLine)
	cli.Parse()

	cfg, err := config.Load(*envFile, cli.CommandLine)
	if err != nil {
		fmt.Fprintln(os.Stderr, "carevox:", err)
		return 2
	}

	// stdout belongs to the conversation in text mode.
	logOut, noColor := os.Stderr, false
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "carevox:", err)
			return 2
		}
		defer f.Close()
		logOut, noColor = f, true
	}
	log.SetDefault(log.New(tint.NewHandler(logOut, &tint.Options{
		Level:      logLevelMap[cfg.LogLevel],
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	})))

	if err := run(cfg); err != nil {
		log.Error("CareVox stopped", "err", err)
		return 1
	}
	return 0
}

func run(cfg *config.Config) error {
	log.Info("Booting up", "mode", cfg.Mode)

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	profiles, metrics, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		return err
	}
	defer metrics.Close()
	log.Debug("Loaded storage", "backend", cfg.StorageBackend)

	replier, err := newReplier(cfg)
	if err != nil {
		return err
	}

	alerter := newAlerter(ctx, cfg)

	fe, err := openFrontEnd(ctx, cfg, cancel)
	if err != nil {
		return fmt.Errorf("open %s front end: %w", cfg.Mode, err)
	}
	defer fe.close()
	go func() {
		select {
		case <-fe.closed:
			log.Info("Input closed, ending conversation")
			cancel()
		case <-ctx.Done():
		}
	}()

	profile, err := profiles.Profile(ctx)
	if err != nil {
		return err
	}
	if fe.tuner != nil {
		fe.tuner.SetRate(dialog.RateFromSpeed(profile.Preferences.VoiceSpeed))
		fe.tuner.SetVolume(profile.Preferences.Volume)
	}

	queue := reminder.NewQueue()
	desktop := notify.NewDesktop("CareVox")
	sched := reminder.NewScheduler(queue, reminder.Options{
		OnFire: func(e reminder.Entry) {
			if err := desktop.Notify(ctx, "CareVox reminder", e.Text); err != nil {
				log.Debug("Desktop notification failed", "err", err)
			}
		},
	})
	sched.Rebuild(profile)
	sched.Start(ctx)
	defer sched.Stop()

	resume := make(chan struct{}, 1)
	ctl, err := ipc.StartServer(ctx, cfg.Socket, func(m ipc.ControlMessage) error {
		switch m.Cmd {
		case ipc.CmdResume:
			select {
			case resume <- struct{}{}:
			default:
			}
		case ipc.CmdStop:
			log.Info("Stop requested over control socket")
			cancel()
		default:
			return fmt.Errorf("unknown command %q", m.Cmd)
		}
		return nil
	})
	if err != nil {
		log.Warn("Control socket unavailable", "path", cfg.Socket, "err", err)
	} else {
		defer ctl.Close()
	}

	sess := session.NewContext(cfg.Knobs, session.DefaultHistoryCap)
	out := session.NewRenderer(fe.speaker, sess.History, nil)
	out.SetPause(fe.sentencePause)

	flows := dialog.New(dialog.Deps{
		Listener:           fe.listener,
		Output:             out,
		History:            sess.History,
		Knobs:              cfg.Knobs,
		Profiles:           profiles,
		Metrics:            metrics,
		Alerts:             alerter,
		Tuner:              fe.tuner,
		Pause:              fe.itemPause,
		MedicationsChanged: sched.Rebuild,
	})

	log.Info("Boot up - successful")

	loop := conversation.New(conversation.Deps{
		Session:   sess,
		Listener:  fe.listener,
		Output:    out,
		Dialog:    flows,
		Profiles:  profiles,
		Metrics:   metrics,
		Replier:   replier,
		Queue:     queue,
		Resume:    resume,
		TurnPause: fe.turnPause,
	})
	return loop.Run(ctx)
}

func newReplier(cfg *config.Config) (*nlu.Replier, error) {
	if cfg.APIKey == "" {
		log.Warn("No LLM API key set; open conversation will only apologise")
	}

	httpClient, err := proxy.NewHTTPClient(cfg.SocksProxy, 0)
	if err != nil {
		return nil, fmt.Errorf("llm http client: %w", err)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(1),
	}
	if cfg.LLMBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.LLMBaseURL))
	}

	rc := nlu.DefaultReplierConfig()
	if cfg.LLMModel != "" {
		rc.Model = cfg.LLMModel
	}
	return nlu.NewReplier(openai.NewClient(opts...), rc), nil
}

// newAlerter falls back to logging when the hub cannot be reached.
func newAlerter(ctx context.Context, cfg *config.Config) dialog.Alerter {
	if cfg.HubURL == "" {
		return alert.Log{}
	}

	ptcl, err := protocol.NewProtocol(protocol.PtclConfig{
		Shard: alert.Shard,
		Url:   cfg.HubURL,
		EmitOut: func(m *protocol.Message) {
			log.Debug("Unsolicited hub frame", "msg", m.String())
		},
	})
	if err != nil {
		log.Warn("Alert hub unreachable, alerts will only be logged", "url", cfg.HubURL, "err", err)
		return alert.Log{}
	}
	go ptcl.Run(ctx)

	log.Debug("Connected to alert hub", "url", cfg.HubURL)
	return alert.NewHubNotifier(ptcl)
}
