package rewrite

import (
	"regexp"
	"strings"

	"github.com/levkin/ragbase/model"
)

// selfContainedPatterns match questions that carry their own subject and
// never need history, even when they also look referential.
var selfContainedPatterns = []string{
	"что такое",
	"кто такой",
	"кто такая",
	"что значит",
	"что означает",
	"как работает",
	"как настроить",
	"what is",
	"what are",
	"who is",
	"how does",
	"how do i",
	"define ",
}

// referentialPatterns are anaphora that only make sense with history.
var referentialPatterns = []string{
	"а что насчёт",
	"а что насчет",
	"что насчёт",
	"что насчет",
	"об этом",
	"про это",
	"про него",
	"про неё",
	"про нее",
	"о нём",
	"о нем",
	"о ней",
	"подробнее",
	"расскажи ещё",
	"расскажи еще",
	"какие ещё",
	"какие еще",
	"а другие",
	"about this",
	"about that",
	"about it",
	"more details",
	"tell me more",
	"which else",
	"what else",
	"that one",
	"this one",
}

// itemReference matches positional references like "пункт 2" or "item 3".
var itemReference = regexp.MustCompile(`(?i)(?:^|\s)(?:пункт|item|вариант|option)\s+\d+`)

// leadingConjunctions signal an elliptical continuation of the previous turn.
var leadingConjunctions = []string{
	"а ", "и ", "но ", "или ",
	"and ", "but ", "or ", "so ",
}

var stopwords = map[string]bool{
	// Russian pronouns, particles and conjunctions.
	"он": true, "она": true, "оно": true, "они": true, "это": true,
	"этот": true, "эта": true, "эти": true, "тот": true, "та": true,
	"те": true, "его": true, "её": true, "ее": true, "их": true,
	"что": true, "как": true, "где": true, "когда": true, "почему": true,
	"зачем": true, "какой": true, "какая": true, "какие": true,
	"еще": true, "ещё": true, "там": true, "тут": true, "здесь": true,
	"так": true, "тоже": true, "да": true, "нет": true, "ли": true,
	"же": true, "бы": true, "не": true, "ни": true, "а": true,
	"и": true, "но": true, "или": true, "про": true, "для": true,
	"от": true, "до": true, "из": true, "по": true, "на": true,
	"в": true, "с": true, "о": true, "об": true, "у": true,
	// English pronouns and function words.
	"it": true, "its": true, "this": true, "that": true, "these": true,
	"those": true, "he": true, "she": true, "they": true, "them": true,
	"his": true, "her": true, "their": true, "what": true, "which": true,
	"who": true, "how": true, "why": true, "when": true, "where": true,
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"can": true, "about": true, "more": true, "else": true, "one": true,
	"and": true, "but": true, "or": true, "so": true, "then": true,
	"there": true, "here": true, "also": true, "too": true, "not": true,
	"какой-то": true, "такой": true, "него": true, "ней": true,
	"насчет": true, "насчёт": true, "подробнее": true,
}

// NeedsRewrite decides whether a follow-up query should be rewritten against
// the conversation history. It returns the decision and a short reason, and
// is deliberately pure so the heuristics are testable in isolation.
func NeedsRewrite(query string, history []model.HistoryMessage) (bool, string) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return false, "empty query"
	}
	if len(history) == 0 {
		return false, "no conversation history"
	}

	lowered := strings.ToLower(trimmed)

	// Self-contained questions win over referential patterns: a query like
	// "что такое этот механизм" already names its subject.
	for _, pattern := range selfContainedPatterns {
		if strings.HasPrefix(lowered, pattern) {
			return false, "self-contained question"
		}
	}

	for _, pattern := range referentialPatterns {
		if strings.Contains(lowered, pattern) {
			return true, "referential pattern " + quoted(pattern)
		}
	}
	if itemReference.MatchString(lowered) {
		return true, "positional item reference"
	}
	for _, conjunction := range leadingConjunctions {
		if strings.HasPrefix(lowered, conjunction) {
			return true, "leading conjunction"
		}
	}

	words := strings.Fields(lowered)
	if len(words) <= 3 && !hasNounLikeToken(words) {
		return true, "short query without a recognizable subject"
	}

	return false, "query looks self-sufficient"
}

func quoted(pattern string) string {
	return `"` + pattern + `"`
}

// hasNounLikeToken reports whether any word could plausibly name a subject:
// at least four letters and not a known function word or pronoun.
func hasNounLikeToken(words []string) bool {
	for _, word := range words {
		cleaned := strings.TrimFunc(word, func(r rune) bool {
			return !isLetter(r)
		})
		if len([]rune(cleaned)) < 4 {
			continue
		}
		if stopwords[cleaned] {
			continue
		}
		return true
	}
	return false
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= 'а' && r <= 'я') || (r >= 'А' && r <= 'Я') || r == 'ё' || r == 'Ё'
}
