package extract

import (
	"regexp"
	"strings"
)

// boilerplateLinePatterns match whole lines of publisher chrome that survive
// selector extraction: share prompts, newsletter pitches, related-article
// teasers. Spanish and English, since the corpus spans both.
var boilerplateLinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(comparte|compartir)( esta noticia| este art[ií]culo)?[:.!]?\s*$`),
	regexp.MustCompile(`(?i)^\s*share (this )?(article|story)[:.!]?\s*$`),
	regexp.MustCompile(`(?i)^\s*(s[ií]guenos en|follow us on|síguenos)\b.*$`),
	regexp.MustCompile(`(?i)^\s*(lee|leer|lea) tambi[eé]n[:.]?\s.*$`),
	regexp.MustCompile(`(?i)^\s*(read|see) (more|also)[:.]?\s.*$`),
	regexp.MustCompile(`(?i)^\s*(te puede interesar|también te puede interesar|related articles?)[:.]?\s*$`),
	regexp.MustCompile(`(?i)^\s*(publicidad|advertisement|advertising)\s*$`),
	regexp.MustCompile(`(?i)^\s*(suscr[ií]bete a (nuestro|nuestra) (bolet[ií]n|newsletter)|subscribe to our newsletter)\b.*$`),
	regexp.MustCompile(`(?i)^\s*(todos los )?derechos reservados\b.*$`),
	regexp.MustCompile(`(?i)^\s*all rights reserved\b.*$`),
	regexp.MustCompile(`(?i)^\s*(foto|photo|imagen|image|credit)[:/]\s.*$`),
	regexp.MustCompile(`(?i)^\s*tags?[:.]?\s.*$`),
}

var (
	urlRe        = regexp.MustCompile(`https?://\S+`)
	emailRe      = regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.-]+\b`)
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
	punctSpaceRe = regexp.MustCompile(`\s+([.,;:!?])`)
	zeroWidthSet = "\u200b\u200c\u200d\ufeff\u00ad"
)

// CleanArticle normalises extracted article text for storage: strips
// boilerplate lines, URLs, email addresses, and zero-width characters, then
// normalises whitespace and punctuation spacing.
//
// The cleaner runs exactly once per article, on the winning extraction.
func CleanArticle(text string) string {
	text = strings.Map(func(r rune) rune {
		if strings.ContainsRune(zeroWidthSet, r) {
			return -1
		}
		return r
	}, text)

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isBoilerplateLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.Join(kept, "\n")

	text = urlRe.ReplaceAllString(text, "")
	text = emailRe.ReplaceAllString(text, "")

	text = spaceRunRe.ReplaceAllString(text, " ")
	text = punctSpaceRe.ReplaceAllString(text, "$1")
	text = blankRunRe.ReplaceAllString(text, "\n\n")

	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		sb.WriteString(strings.TrimSpace(line))
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}

func isBoilerplateLine(line string) bool {
	for _, pat := range boilerplateLinePatterns {
		if pat.MatchString(line) {
			return true
		}
	}
	return false
}
