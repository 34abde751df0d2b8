package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		answer string
		want   []string
	}{
		{"peyk, Azərbaycan, orbit", []string{"peyk", "Azərbaycan", "orbit"}},
		{"1. satellite\n2. Azerbaijan\n3. launch\n4. government\n5. space", []string{"satellite", "Azerbaijan", "launch", "government"}},
		{"- \"Azercosmos\"\n- **Azersky**\n- azercosmos", []string{"Azercosmos", "Azersky"}},
		{"Keywords: peyk; orbit.", []string{"peyk", "orbit"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseKeywords(tt.answer), tt.answer)
	}
}

func TestHeuristicKeywords(t *testing.T) {
	got := HeuristicKeywords("Azerbaijan launches new satellite, confirmed by government statement")
	assert.Equal(t, []string{"Azerbaijan", "launches", "satellite", "confirmed"}, got)

	got = HeuristicKeywords("Peyk orbitə çıxdı. Peyk Azercosmos tərəfindən idarə olunur və peyk 2026 ildə buraxılıb.")
	assert.Equal(t, "Peyk", got[0], "most frequent word first")
	assert.NotContains(t, got, "2026")
	assert.NotContains(t, got, "və")
}

func TestKeywordDeriver_UsesOracle(t *testing.T) {
	d := NewKeywordDeriver(&fakeOracle{answer: "satellite, Azerbaijan, launch"}, time.Second, nil)

	kw := d.Derive(context.Background(), "Azerbaijan launches new satellite")
	assert.False(t, kw.Heuristic)
	assert.Equal(t, "satellite Azerbaijan launch", kw.Query())
}

func TestKeywordDeriver_FallsBack(t *testing.T) {
	text := "Azerbaijan launches new satellite, confirmed by government statement"

	failing := NewKeywordDeriver(&fakeOracle{err: errors.New("timeout")}, time.Second, nil)
	kw := failing.Derive(context.Background(), text)
	assert.True(t, kw.Heuristic)
	assert.NotEmpty(t, kw.Terms)

	empty := NewKeywordDeriver(&fakeOracle{answer: "   "}, time.Second, nil)
	assert.True(t, empty.Derive(context.Background(), text).Heuristic)

	none := NewKeywordDeriver(nil, time.Second, nil)
	assert.True(t, none.Derive(context.Background(), text).Heuristic)
}
