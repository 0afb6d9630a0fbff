package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/gordonklaus/portaudio"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/andrevianna/clara/internal/analyzer"
	"github.com/andrevianna/clara/internal/capture"
	"github.com/andrevianna/clara/internal/config"
	"github.com/andrevianna/clara/internal/conversation"
	"github.com/andrevianna/clara/internal/httpapi"
	"github.com/andrevianna/clara/internal/memory"
	"github.com/andrevianna/clara/internal/observability"
	"github.com/andrevianna/clara/internal/playback"
	"github.com/andrevianna/clara/internal/realtime"
	"github.com/andrevianna/clara/internal/reasoning"
	"github.com/andrevianna/clara/internal/session"
	"github.com/andrevianna/clara/internal/synthesis"
	"github.com/andrevianna/clara/internal/transcribe"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("config error: " + err.Error())
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("turn archive init failed")
	}
	defer store.Close()

	if err := portaudio.Initialize(); err != nil {
		logger.Fatal().Err(err).Msg("portaudio init failed")
	}
	defer portaudio.Terminate()

	recorder := capture.NewService(capture.Config{
		SampleRate:      cfg.CaptureSampleRate,
		FramesPerBuffer: cfg.CaptureFrameSize,
	}, logger)
	player := playback.NewService(cfg.PlaybackSampleRate, logger)
	viz := analyzer.New(recorder, player, logger,
		analyzer.WithInterval(cfg.AnalyzerInterval),
		analyzer.WithBins(cfg.AnalyzerBins))

	synth := synthesis.NewFetcher(synthesis.Config{
		URL:          cfg.TTSURL,
		APIKey:       cfg.TTSAPIKey,
		VoiceProfile: cfg.TTSVoiceProfile,
		VoiceID:      cfg.TTSVoiceID,
		Timeout:      cfg.TTSTimeout,
	})
	batch := transcribe.NewClient(transcribe.Config{
		URL:      cfg.BatchSTTURL,
		APIKey:   cfg.BatchSTTAPIKey,
		Language: cfg.Language,
		Timeout:  cfg.BatchSTTTimeout,
	})
	responder, err := reasoning.NewAdapter(reasoning.Config{
		Mode:        cfg.ReasoningMode,
		AgentURL:    cfg.ReasoningAgentURL,
		AgentKey:    cfg.ReasoningAgentKey,
		OpenAIKey:   cfg.OpenAIAPIKey,
		OpenAIModel: cfg.OpenAIModel,
		Timeout:     cfg.ReasoningTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("reasoning adapter init failed")
	}

	sessions := session.NewManager(10 * time.Minute)
	sess := sessions.Create(cfg.UserID, cfg.Language, cfg.TTSVoiceID)

	var dial conversation.DialFunc
	if cfg.RealtimeSTTURL != "" {
		rtCfg := realtime.Config{
			URL:            cfg.RealtimeSTTURL,
			APIKey:         cfg.RealtimeSTTAPIKey,
			Language:       cfg.Language,
			SampleRate:     cfg.CaptureSampleRate,
			Format:         "pcm16",
			ConnectTimeout: cfg.RealtimeConnectTimeout,
		}
		dial = func(ctx context.Context) (conversation.Stream, error) {
			return realtime.Dial(ctx, rtCfg, logger)
		}
	}

	machine := conversation.New(conversation.Config{
		Greeting:  cfg.Greeting,
		Apology:   cfg.Apology,
		AgentID:   cfg.AgentID,
		SessionID: sess.ID,
		UserID:    cfg.UserID,
	}, conversation.Deps{
		Recorder:    recorder,
		Player:      player,
		Dial:        dial,
		Synthesizer: synth,
		Transcriber: batch,
		Responder:   responder,
		Visualizer:  viz,
		Archive:     store,
		Metrics:     metrics,
		OnOutcome: func(outcome string) {
			if outcome == "completed" {
				_ = sessions.RecordTurn(sess.ID)
			}
		},
	}, logger)
	defer machine.Close()

	sessions.SetExpireHook(func(s *session.Session) {
		logger.Info().Str("session_id", s.ID).Msg("session expired, resetting")
		machine.ForceReset()
	})

	api := httpapi.New(cfg, machine, sessions, viz, store, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	sessions.StartJanitor(runCtx, 15*time.Second)

	go func() {
		logger.Info().Str("addr", cfg.BindAddr).Msg("api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen error")
		}
	}()

	quit := make(chan struct{})
	go keyLoop(machine, logger, quit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case <-quit:
		logger.Info().Msg("quit requested")
	}

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	logger.Info().Msg("shutdown complete")
}

// keyLoop drives the single-trigger contract from the terminal: space
// activates, r force-resets, q or Esc quits. When no TTY is available the
// HTTP API remains the only control surface.
func keyLoop(machine *conversation.Machine, logger zerolog.Logger, quit chan<- struct{}) {
	if err := keyboard.Open(); err != nil {
		logger.Warn().Err(err).Msg("keyboard unavailable, use the HTTP API")
		return
	}
	defer keyboard.Close()

	logger.Info().Msg("press space to talk, r to reset, q to quit")
	for {
		char, key, err := keyboard.GetKey()
		if err != nil {
			logger.Debug().Err(err).Msg("key read error")
			return
		}
		switch {
		case key == keyboard.KeySpace:
			machine.Activate()
		case char == 'r' || char == 'R':
			machine.ForceReset()
		case char == 'q' || char == 'Q' || key == keyboard.KeyEsc || key == keyboard.KeyCtrlC:
			close(quit)
			return
		}
	}
}
