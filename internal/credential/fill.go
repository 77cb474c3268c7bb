package credential

import (
	"github.com/rs/zerolog"

	"github.com/nhle/travelbot/internal/model"
)

// Fill backfills secrets the config file left empty from the system
// keyring. Missing keyring entries are not an error; a secret that is
// genuinely required fails later with a clearer message at connect
// time.
func Fill(cfg *model.AppConfig, logger zerolog.Logger) {
	lookup := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		value, err := Get(key)
		if err != nil {
			logger.Debug().Str("key", key).Err(err).Msg("keyring lookup failed")
			return
		}
		*dst = value
	}

	lookup(&cfg.IMAP.Password, KeyIMAPPassword)
	lookup(&cfg.SMTP.Password, KeySMTPPassword)
	lookup(&cfg.LLM.APIKey, KeyLLMAPIKey)
}
