package classifier

import (
	"context"

	"github.com/hablemos/language-league/internal/domain/league"
)

type hintKey struct{}

// WithHint attaches a language detected upstream (for example by the chat
// gateway) to ctx.
func WithHint(ctx context.Context, lang league.Language) context.Context {
	return context.WithValue(ctx, hintKey{}, lang)
}

// HintFrom returns the language attached by WithHint.
func HintFrom(ctx context.Context) (league.Language, bool) {
	lang, ok := ctx.Value(hintKey{}).(league.Language)
	return lang, ok
}

// Hinted trusts the upstream hint. Without one it falls back to Next, or
// reports no language when Next is nil.
type Hinted struct {
	Next league.Classifier
}

var _ league.Classifier = Hinted{}

// Detect implements league.Classifier.
func (h Hinted) Detect(ctx context.Context, text string) (league.Language, error) {
	if lang, ok := HintFrom(ctx); ok {
		switch lang {
		case league.LanguageSpanish, league.LanguageEnglish:
			return lang, nil
		}
		return league.LanguageNone, nil
	}
	if h.Next == nil {
		return league.LanguageNone, nil
	}
	return h.Next.Detect(ctx, text)
}
