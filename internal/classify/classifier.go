/**
 * Error Classifier for ErrorScope Analysis Worker
 *
 * Two-strategy classification: an LLM pass when a provider is configured,
 * with a deterministic rule-based fallback. Classification never fails the
 * pipeline; the worst case is the default unknown classification.
 */

package classify

import (
	"context"
	"log"
	"regexp"
	"strings"
)

// Classification is the result of error analysis
type Classification struct {
	ApplicationType  string   `json:"application_type"`
	ErrorCategory    string   `json:"error_category"`
	Severity         string   `json:"severity"`
	Keywords         []string `json:"keywords"`
	Confidence       float64  `json:"confidence"`
	SuggestedActions []string `json:"suggested_actions"`
}

// applicationPattern ties an application type to its trigger keywords and
// per-application category tables. Order matters: entries are checked
// first to last.
type applicationPattern struct {
	App        string
	Keywords   []string
	Categories []categoryPattern
}

type categoryPattern struct {
	Category string
	Keywords []string
}

var applicationPatterns = []applicationPattern{
	{
		App:      "1c",
		Keywords: []string{"1с", "1c", "конфигуратор", "платформа", "конфигурация"},
		Categories: []categoryPattern{
			{"sql_errors", []string{"sql", "запрос", "база данных", "субд", "нарушение уникальности"}},
			{"config_errors", []string{"конфигурация", "не удалось найти процедуру", "неопределенный тип"}},
			{"rights_errors", []string{"недостаточно прав", "доступ запрещен", "нет права"}},
			{"update_errors", []string{"обновление", "версия", "совместимость"}},
			{"report_errors", []string{"отчет", "печатная форма", "шаблон"}},
		},
	},
	{
		App:      "windows",
		Keywords: []string{"windows", "система", "bsod", "синий экран", "служба"},
		Categories: []categoryPattern{
			{"system_errors", []string{"системная ошибка", "критическая ошибка"}},
			{"bsod_errors", []string{"синий экран", "bsod", "stop error"}},
			{"service_errors", []string{"служба", "service", "не удалось запустить"}},
			{"registry_errors", []string{"реестр", "registry", "ключ"}},
			{"driver_errors", []string{"драйвер", "driver", "устройство"}},
		},
	},
	{
		App:      "office",
		Keywords: []string{"excel", "word", "outlook", "powerpoint", "офис"},
		Categories: []categoryPattern{
			{"excel_errors", []string{"excel", "таблица", "ячейка", "формула"}},
			{"word_errors", []string{"word", "документ", "шаблон"}},
			{"outlook_errors", []string{"outlook", "почта", "email"}},
			{"powerpoint_errors", []string{"powerpoint", "презентация", "слайд"}},
		},
	},
	{
		App:      "browser",
		Keywords: []string{"chrome", "firefox", "edge", "браузер", "browser"},
		Categories: []categoryPattern{
			{"connection_errors", []string{"соединение", "connection", "сеть"}},
			{"javascript_errors", []string{"javascript", "скрипт", "script"}},
			{"security_errors", []string{"безопасность", "security", "сертификат"}},
			{"plugin_errors", []string{"плагин", "plugin", "расширение"}},
		},
	},
}

// Severity tiers, checked highest first
var (
	criticalKeywords = []string{"критическая", "critical", "fatal", "синий экран", "bsod"}
	highKeywords     = []string{"ошибка", "error", "failed", "не удалось"}
	mediumKeywords   = []string{"предупреждение", "warning", "внимание"}
)

// Cross-application category fallbacks, checked in order
var generalCategories = []categoryPattern{
	{"sql", []string{"sql", "запрос", "база данных"}},
	{"rights", []string{"права", "доступ", "permission"}},
	{"connection", []string{"соединение", "connection", "сеть"}},
	{"file", []string{"файл", "file", "не найден"}},
}

// suggestedActions keyed by application and category
var suggestedActions = map[string]map[string][]string{
	"1c": {
		"sql_errors":    {"Check the SQL query", "Check database access rights"},
		"config_errors": {"Check the configuration", "Update the configuration"},
		"rights_errors": {"Check user permissions", "Configure access roles"},
	},
	"windows": {
		"system_errors":  {"Restart the system", "Run a system file check"},
		"bsod_errors":    {"Check the drivers", "Install system updates"},
		"service_errors": {"Restart the service", "Check service dependencies"},
	},
	"office": {
		"excel_errors": {"Check the formulas", "Check external file references"},
		"word_errors":  {"Check the template", "Check the macros"},
	},
}

var defaultActions = []string{"Check the logs", "Restart the application"}

var keywordCodePattern = regexp.MustCompile(`\b\d{3,5}\b|\b0x[0-9A-Fa-f]{8}\b`)
var wordPattern = regexp.MustCompile(`[\p{L}\d_]{4,}`)

// LLMClassifier is the optional AI strategy
type LLMClassifier interface {
	Classify(ctx context.Context, errorText string, applicationHint string) (*Classification, error)
}

// Classifier classifies error text; llm may be nil for rules-only operation
type Classifier struct {
	llm LLMClassifier
}

// NewClassifier creates a classifier; pass nil for rules-only mode
func NewClassifier(llm LLMClassifier) *Classifier {
	return &Classifier{llm: llm}
}

// Classify produces a classification for the error text. The application
// hint from OCR wins over keyword scanning when present. This method never
// returns an error; every failure degrades to the rule-based strategy or
// the default classification.
func (c *Classifier) Classify(ctx context.Context, errorText string, applicationHint string) Classification {
	if strings.TrimSpace(errorText) == "" {
		return DefaultClassification()
	}

	if c.llm != nil {
		result, err := c.llm.Classify(ctx, errorText, applicationHint)
		if err == nil && result != nil {
			return *result
		}
		if err != nil {
			log.Printf("[Classify] LLM classification failed, using rules: %v", err)
		}
	}

	return classifyWithRules(errorText, applicationHint)
}

func classifyWithRules(errorText, applicationHint string) Classification {
	text := strings.ToLower(errorText)

	appType := detectApplicationType(text, applicationHint)
	category := detectErrorCategory(text, appType)
	severity := detectSeverity(text)
	keywords := extractKeywords(text, appType)
	actions := actionsFor(appType, category)

	return Classification{
		ApplicationType:  appType,
		ErrorCategory:    category,
		Severity:         severity,
		Keywords:         keywords,
		Confidence:       70.0,
		SuggestedActions: actions,
	}
}

func detectApplicationType(text, hint string) string {
	if hint != "" {
		return hint
	}
	for _, pattern := range applicationPatterns {
		for _, kw := range pattern.Keywords {
			if strings.Contains(text, kw) {
				return pattern.App
			}
		}
	}
	return "unknown"
}

func detectErrorCategory(text, appType string) string {
	for _, pattern := range applicationPatterns {
		if pattern.App != appType {
			continue
		}
		for _, cat := range pattern.Categories {
			for _, kw := range cat.Keywords {
				if strings.Contains(text, kw) {
					return cat.Category
				}
			}
		}
	}

	for _, cat := range generalCategories {
		for _, kw := range cat.Keywords {
			if strings.Contains(text, kw) {
				return cat.Category
			}
		}
	}
	return "unknown"
}

func detectSeverity(text string) string {
	for _, kw := range criticalKeywords {
		if strings.Contains(text, kw) {
			return "critical"
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(text, kw) {
			return "high"
		}
	}
	for _, kw := range mediumKeywords {
		if strings.Contains(text, kw) {
			return "medium"
		}
	}
	return "low"
}

// extractKeywords builds the search keyword set: application trigger words,
// error codes found in the text, and the first five words of four or more
// characters. Deduplicated preserving first occurrence.
func extractKeywords(text, appType string) []string {
	var keywords []string
	seen := make(map[string]bool)

	add := func(kw string) {
		if kw != "" && !seen[kw] {
			seen[kw] = true
			keywords = append(keywords, kw)
		}
	}

	for _, pattern := range applicationPatterns {
		if pattern.App == appType {
			for _, kw := range pattern.Keywords {
				add(kw)
			}
		}
	}

	for _, code := range keywordCodePattern.FindAllString(text, -1) {
		add(code)
	}

	words := wordPattern.FindAllString(text, -1)
	count := 0
	for _, w := range words {
		if count >= 5 {
			break
		}
		if !seen[w] {
			add(w)
			count++
		}
	}

	return keywords
}

func actionsFor(appType, category string) []string {
	if byCategory, ok := suggestedActions[appType]; ok {
		if actions, ok := byCategory[category]; ok {
			return actions
		}
	}
	return defaultActions
}

// DefaultClassification is returned when nothing can be determined
func DefaultClassification() Classification {
	return Classification{
		ApplicationType:  "unknown",
		ErrorCategory:    "unknown",
		Severity:         "medium",
		Keywords:         []string{},
		Confidence:       0.0,
		SuggestedActions: defaultActions,
	}
}
