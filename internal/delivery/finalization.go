package delivery

import (
	"strings"
)

// closingPhrases is the fixed list of phrases that mark a reply as naturally
// concluding the interaction. Matching is case- and accent-insensitive.
var closingPhrases = []string{
	"qualquer outra duvida",
	"qualquer duvida chama",
	"qualquer duvida e so chamar",
	"estamos a disposicao",
	"estou a disposicao",
	"fico a disposicao",
	"precisando e so chamar",
	"disponha",
	"ate logo",
	"ate a proxima",
	"tenha um otimo dia",
	"conte conosco",
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

// IsFinalizing reports whether reply text matches the finalization heuristic,
// meaning no follow-up should be scheduled.
func IsFinalizing(text string) bool {
	normalized := accentReplacer.Replace(strings.ToLower(text))
	for _, phrase := range closingPhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}
