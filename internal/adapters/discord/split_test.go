package discord

import (
	"strings"
	"testing"
)

func TestSplitDescriptionRespectsLimit(t *testing.T) {
	var builder strings.Builder
	builder.WriteString(strings.Repeat("a", 3000))
	builder.WriteString("\n\n")
	builder.WriteString(strings.Repeat("b", 2000))
	builder.WriteString("\n")
	builder.WriteString(strings.Repeat("c", 500))

	parts := SplitDescription(builder.String())
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}

	for i, part := range parts {
		if length := len([]rune(part)); length > descriptionLimit {
			t.Fatalf("часть %d превышает лимит: %d", i, length)
		}
	}

	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatal("неожиданный состав первой части")
	}
	if !strings.HasSuffix(parts[1], strings.Repeat("c", 500)) {
		t.Fatal("вторая часть должна заканчиваться блоком 'c'")
	}
}

func TestSplitDescriptionShortText(t *testing.T) {
	parts := SplitDescription("  👑 short leaderboard\n")
	if len(parts) != 1 || parts[0] != "👑 short leaderboard" {
		t.Fatalf("ожидали одну обрезанную часть, получили %v", parts)
	}
}

func TestSplitDescriptionEmpty(t *testing.T) {
	if parts := SplitDescription("   \n  "); parts != nil {
		t.Fatalf("ожидали nil для пустого текста, получили %v", parts)
	}
}
