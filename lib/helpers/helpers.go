package helpers

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"strings"
)

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// FormatMetricValue renders a position metric with magnitude-dependent
// precision: health factors and ratios keep more decimals than large values.
func FormatMetricValue(value float64, escapeMarkdown bool) string {
	decimals := 4

	if value >= 1000 {
		decimals = 0
	} else if value >= 100 {
		decimals = 2
	} else if value < 0.0001 {
		decimals = 8
	}

	p := message.NewPrinter(language.English)
	formatted := p.Sprintf("%.*f", decimals, value)

	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}

func FormatPercent(value float64, escapeMarkdown bool) string {
	p := message.NewPrinter(language.English)
	formatted := p.Sprintf("%.2f%%", value)

	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}
