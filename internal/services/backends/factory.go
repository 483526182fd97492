package backends

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/interfaces"
)

// NewBackends constructs the analysis backends in the configured preference
// order. Unknown names are an error; backends without credentials are still
// constructed (IsAvailable filters them at selection time) so a key provided
// later via environment works without code changes.
func NewBackends(cfg *common.Config, logger arbor.ILogger) ([]interfaces.AnalysisBackend, error) {
	if len(cfg.Backends.Preference) == 0 {
		return nil, fmt.Errorf("backends.preference must not be empty")
	}

	list := make([]interfaces.AnalysisBackend, 0, len(cfg.Backends.Preference))
	for _, name := range cfg.Backends.Preference {
		switch name {
		case "claude":
			list = append(list, NewClaudeBackend(&cfg.Claude, logger))
		case "gemini":
			list = append(list, NewGeminiBackend(&cfg.Gemini, logger))
		case "deepseek":
			list = append(list, NewDeepSeekBackend(&cfg.DeepSeek, logger))
		default:
			return nil, fmt.Errorf("unknown backend %q in backends.preference", name)
		}
	}

	available := 0
	for _, b := range list {
		if b.IsAvailable() {
			available++
			logger.Info().
				Str("backend", b.Identity().Name).
				Str("model", b.Identity().Model).
				Msg("Analysis backend available")
		}
	}
	if available == 0 {
		logger.Warn().Msg("No analysis backend has credentials configured")
	}

	return list, nil
}
