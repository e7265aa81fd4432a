// Package personality optionally restyles outbound text (PR bodies,
// comments). It treats the rewriter as an opaque collaborator and always
// falls back to the original text when anything goes wrong.
package personality

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Rewriter transforms a prompt into text. The agent's CLI runner
// implements this.
type Rewriter interface {
	Rewrite(ctx context.Context, prompt string) (string, error)
}

type Styler struct {
	enabled bool
	rw      Rewriter
	logger  *slog.Logger
}

func New(enabled bool, rw Rewriter, logger *slog.Logger) *Styler {
	return &Styler{enabled: enabled, rw: rw, logger: logger}
}

// Style rewrites text in the configured personality. Disabled stylers and
// failed rewrites return the input unchanged.
func (s *Styler) Style(ctx context.Context, text string) string {
	if !s.enabled || s.rw == nil || strings.TrimSpace(text) == "" {
		return text
	}

	prompt := fmt.Sprintf(
		"Rewrite the following text in your own voice. Keep the meaning, all links, "+
			"and all markdown structure intact. Reply with the rewritten text only.\n\n"+
			"Original text:\n%s", text)

	out, err := s.rw.Rewrite(ctx, prompt)
	if err != nil {
		s.logger.Warn("personality rewrite failed, using original text", "err", err)
		return text
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return text
	}
	// Drop a trailing unclosed code fence from a truncated rewrite.
	if strings.Count(out, "```")%2 == 1 {
		out = out[:strings.LastIndex(out, "```")]
		out = strings.TrimSpace(out)
		if out == "" {
			return text
		}
	}
	return out
}
