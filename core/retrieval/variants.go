package retrieval

import "strings"

// Keyboard layout pairs for the standard qwerty/йцукен mapping. A query typed
// with the wrong layout active comes out as gibberish in the other alphabet;
// transliterating it back recovers the intended words.
var latinToCyrillic = map[rune]rune{
	'q': 'й', 'w': 'ц', 'e': 'у', 'r': 'к', 't': 'е', 'y': 'н', 'u': 'г',
	'i': 'ш', 'o': 'щ', 'p': 'з', '[': 'х', ']': 'ъ',
	'a': 'ф', 's': 'ы', 'd': 'в', 'f': 'а', 'g': 'п', 'h': 'р', 'j': 'о',
	'k': 'л', 'l': 'д', ';': 'ж', '\'': 'э',
	'z': 'я', 'x': 'ч', 'c': 'с', 'v': 'м', 'b': 'и', 'n': 'т', 'm': 'ь',
	',': 'б', '.': 'ю',
}

var cyrillicToLatin = func() map[rune]rune {
	m := make(map[rune]rune, len(latinToCyrillic))
	for latin, cyrillic := range latinToCyrillic {
		m[cyrillic] = latin
	}
	return m
}()

// Variants expands a query into its spelling variants: the query itself,
// its ё→е normalization and both wrong-keyboard-layout transliterations.
// The original query always comes first; duplicates are dropped.
func Variants(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	variants := []string{query}
	seen := map[string]bool{query: true}

	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	add(normalizeYo(query))
	add(transliterate(query, latinToCyrillic))
	add(transliterate(query, cyrillicToLatin))

	return variants
}

// normalizeYo folds ё into е, the spelling most content uses.
func normalizeYo(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'ё':
			return 'е'
		case 'Ё':
			return 'Е'
		}
		return r
	}, s)
}

// transliterate remaps letters through the layout table. It returns "" when
// nothing changed or when part of the query has no mapping, since a partial
// transliteration is not a plausible intended query.
func transliterate(s string, table map[rune]rune) string {
	var b strings.Builder
	changed := false
	for _, r := range strings.ToLower(s) {
		if r == ' ' || r == '-' {
			b.WriteRune(r)
			continue
		}
		mapped, ok := table[r]
		if !ok {
			return ""
		}
		b.WriteRune(mapped)
		changed = true
	}
	if !changed {
		return ""
	}
	return b.String()
}
