package validate

import (
	"fmt"

	"github.com/hazyhaar/presse/llm"
)

// Phrase lists are matched case-insensitively against visible text.

// strongPaywallPhrases end the paywall check immediately: the page itself
// says the narrative stops here.
var strongPaywallPhrases = []string{
	"suscríbete para seguir leyendo",
	"suscribete para seguir leyendo",
	"regístrate para seguir leyendo",
	"registrate para seguir leyendo",
	"inicia sesión para seguir leyendo",
	"subscribe to continue reading",
	"subscribe to read the full article",
	"sign in to continue reading",
	"this article is for subscribers only",
	"to continue reading, subscribe",
	"este contenido es exclusivo para suscriptores",
	"contenido exclusivo para suscriptores",
}

// blockingKeywords are weaker signals used by the quality judge: they only
// condemn a page when the visible text is also short.
var blockingKeywords = []string{
	"para seguir leyendo",
	"seguir leyendo",
	"hazte premium",
	"hazte suscriptor",
	"suscríbete",
	"suscribete",
	"subscribe now",
	"subscribe to continue",
	"already a subscriber",
	"sign in to read",
	"create a free account",
	"register to continue",
}

// continuationPhrases mark a text that ends at a subscription gate rather
// than a natural close.
var continuationPhrases = []string{
	"suscríbete para seguir leyendo",
	"suscribete para seguir leyendo",
	"para seguir leyendo",
	"seguir leyendo",
	"continue reading",
	"subscribe to continue",
	"sign in to continue",
	"regístrate para continuar",
	"read the full story",
}

const validatorSystem = "You judge extracted news-article text. Answer strictly " +
	"with the requested JSON object and nothing else."

func paywallPrompt(url, head, tail string) llm.Request {
	prompt := fmt.Sprintf(`A page at %s yielded the visible text sampled below.
Decide whether a BLOCKING paywall cuts the article short. A donation appeal or
subscription ad after a complete narrative is NOT a blocking paywall.

Start of text:
%s

End of text:
%s

Reply with JSON: {"is_paywall": true|false, "confidence": 0-100}`, url, head, tail)
	return llm.Request{
		Prompt:      prompt,
		System:      validatorSystem,
		Temperature: 0,
		MaxTokens:   200,
		Format:      llm.FormatJSON,
	}
}

func qualityPrompt(url, title, text string, isArchive bool) llm.Request {
	archiveNote := ""
	if isArchive {
		archiveNote = "\nThis text comes from an archive snapshot. Subscription " +
			"banners in snapshots cannot block access; ignore them unless the " +
			"narrative itself is cut short."
	}
	prompt := fmt.Sprintf(`A page at %s (expected article: %q) yielded this visible text.%s
Decide whether it contains a real article body and whether a blocking paywall
truncates it.

Text:
%s

Reply with JSON: {"has_paywall": true|false, "has_content": true|false, "confidence": 0-100}`,
		url, title, archiveNote, text)
	return llm.Request{
		Prompt:      prompt,
		System:      validatorSystem,
		Temperature: 0,
		MaxTokens:   200,
		Format:      llm.FormatJSON,
	}
}

func completenessPrompt(title, head, tail string) llm.Request {
	prompt := fmt.Sprintf(`An article titled %q was extracted. Judge from how the
text ENDS whether the article is complete: a natural close counts as complete,
an abrupt mid-sentence stop or a subscription gate counts as incomplete.

Start of text (context only):
%s

End of text:
%s

Reply with JSON: {"is_complete": true|false, "confidence": 0-100}`, title, head, tail)
	return llm.Request{
		Prompt:      prompt,
		System:      validatorSystem,
		Temperature: 0,
		MaxTokens:   200,
		Format:      llm.FormatJSON,
	}
}
