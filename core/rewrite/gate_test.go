package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/levkin/ragbase/model"
)

func testHistory() []model.HistoryMessage {
	return []model.HistoryMessage{
		{Role: "user", Content: "Как настроить резервное копирование?"},
		{Role: "assistant", Content: "Резервное копирование настраивается в разделе администрирования."},
	}
}

func TestNeedsRewrite(t *testing.T) {
	history := testHistory()

	cases := []struct {
		name    string
		query   string
		history []model.HistoryMessage
		want    bool
	}{
		{"Empty query never rewrites", "   ", history, false},
		{"Empty history never rewrites", "а что насчёт расписания?", nil, false},
		{"Self-contained Russian question", "Что такое репликация?", history, false},
		{"Self-contained English question", "What is replication?", history, false},
		{"Self-contained wins over referential", "что такое это расширение", history, false},
		{"Referential Russian follow-up", "а что насчёт расписания?", history, true},
		{"Referential without yo", "а что насчет расписания?", history, true},
		{"More details follow-up", "расскажи подробнее", history, true},
		{"English anaphora", "tell me more about it", history, true},
		{"Positional item reference", "покажи пункт 2", history, true},
		{"Leading conjunction", "и для другого сервера?", history, true},
		{"Short query without a noun", "они где?", history, true},
		{"Short query with a noun stands alone", "установка сертификата", history, false},
		{"Ordinary full question", "Какой порт использует сервер лицензий?", history, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, reason := NeedsRewrite(c.query, c.history)
			assert.Equal(t, c.want, got, "query %q, reason %q", c.query, reason)
			assert.NotEmpty(t, reason, "every decision should carry a reason")
		})
	}
}

func TestNeedsRewriteSelfContainedIgnoresHistorySize(t *testing.T) {
	long := testHistory()
	for i := 0; i < 20; i++ {
		long = append(long, model.HistoryMessage{Role: "user", Content: "ещё вопрос"})
	}

	got, _ := NeedsRewrite("Что такое индексация?", long)
	assert.False(t, got, "a self-contained question never needs history, however long it is")
}

func TestHasNounLikeToken(t *testing.T) {
	assert.True(t, hasNounLikeToken([]string{"сертификат"}))
	assert.False(t, hasNounLikeToken([]string{"они", "где"}), "pronouns and short words are not subjects")
	assert.False(t, hasNounLikeToken([]string{"about", "this"}), "function words are not subjects")
	assert.True(t, hasNounLikeToken([]string{"про", "кластер?"}), "punctuation is stripped before the length check")
}
