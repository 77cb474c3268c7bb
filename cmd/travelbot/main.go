// Command travelbot watches an IMAP inbox for forwarded travel emails,
// extracts itineraries with an LLM, and replies with a calendar file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nhle/travelbot/internal/credential"
	"github.com/nhle/travelbot/internal/extract"
	"github.com/nhle/travelbot/internal/guard"
	"github.com/nhle/travelbot/internal/logger"
	"github.com/nhle/travelbot/internal/mailbox"
	"github.com/nhle/travelbot/internal/mailer"
	"github.com/nhle/travelbot/internal/model"
	"github.com/nhle/travelbot/internal/monitor"
	"github.com/nhle/travelbot/internal/pipeline"
	"github.com/nhle/travelbot/internal/reason"
	"github.com/nhle/travelbot/internal/store"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	pollOverride := flag.Int("poll-interval", 0, "override poll interval in seconds")
	setCred := flag.String("set-credential", "",
		"store a secret in the system keyring and exit; the value is read from stdin "+
			"(keys: "+strings.Join(credential.KnownKeys(), ", ")+")")
	deleteCred := flag.String("delete-credential", "", "remove a secret from the system keyring and exit")
	flag.Parse()

	if *setCred != "" {
		if err := storeCredential(*setCred); err != nil {
			fail("storing credential", err)
		}
		return
	}
	if *deleteCred != "" {
		if !credential.ValidKey(*deleteCred) {
			fail("deleting credential", fmt.Errorf("unknown key %q", *deleteCred))
		}
		if err := credential.Delete(*deleteCred); err != nil {
			fail("deleting credential", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		fail("config load", err)
	}
	if *pollOverride > 0 {
		cfg.IMAP.PollIntervalSec = *pollOverride
	}

	baseLogger, err := logger.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "travelbot").Logger()

	credential.Fill(cfg, log)
	if cfg.LLM.APIKey == "" {
		log.Fatal().Msg("no llm api key in config or keyring")
	}

	var st store.Store
	if cfg.Store.Path != "" {
		st, err = store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("opening state store")
		}
		log.Info().Str("path", cfg.Store.Path).Msg("using sqlite state store")
	} else {
		st = store.NewMemoryStore()
		log.Info().Msg("using in-memory state store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("closing state store")
		}
	}()

	mb := mailbox.NewClient(cfg.IMAP, log.With().Str("component", "mailbox").Logger())
	sender := mailer.NewSender(cfg.SMTP, log.With().Str("component", "mailer").Logger())
	reasoner := reason.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.MaxTokens,
		time.Duration(cfg.LLM.TimeoutSec)*time.Second,
		log.With().Str("component", "reasoner").Logger(),
	)

	classifier := guard.NewClassifier(sender.From())
	limiter := guard.NewRateLimiter(st, cfg.Guard.MaxReplies, time.Duration(cfg.Guard.WindowSec)*time.Second)
	resolver := guard.NewReplyResolver(cfg.Guard.DefaultReplyTo)
	tracker := pipeline.NewFailureTracker(st, cfg.Retry.MaxAttempts, cfg.Retry.ParseFailurePoisons, log)
	extractor := extract.New(log.With().Str("component", "extractor").Logger())

	pipe := pipeline.New(mb, sender, reasoner, extractor, classifier, limiter, resolver, tracker, log)
	mon := monitor.New(mb, pipe, cfg.IMAP, cfg.Retry, log)

	log.Info().
		Str("imap_host", cfg.IMAP.Host).
		Str("mailbox", cfg.IMAP.Mailbox).
		Bool("idle_enabled", cfg.IMAP.IdleEnabled).
		Msg("travelbot starting")

	if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("monitor terminated")
	}

	log.Info().Msg("travelbot stopped")
}

// storeCredential reads the secret value from stdin, trailing newline
// trimmed, and writes it to the system keyring.
func storeCredential(key string) error {
	if !credential.ValidKey(key) {
		return fmt.Errorf("unknown key %q (expected one of %s)",
			key, strings.Join(credential.KnownKeys(), ", "))
	}

	value, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading value from stdin: %w", err)
	}
	trimmed := strings.TrimRight(string(value), "\r\n")
	if trimmed == "" {
		return fmt.Errorf("empty value for %s", key)
	}

	if err := credential.Set(key, trimmed); err != nil {
		return err
	}
	fmt.Printf("stored %s\n", key)
	return nil
}

func fail(stage string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", stage, err)
	os.Exit(1)
}
