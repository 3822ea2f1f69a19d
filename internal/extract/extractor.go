// Package extract pulls structured job records out of a results view. Every
// field is resolved through an ordered fallback selector list so that markup
// drift degrades extraction gracefully instead of crashing the batch.
package extract

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hireloop/jobharvester/internal/crawl"
)

// Config controls the extraction engine.
type Config struct {
	Source string // value stamped into RawJobRecord.Source
	Fields []FieldSelectors
	Cards  []string
}

func (c Config) withDefaults() Config {
	if c.Source == "" {
		c.Source = "search"
	}
	if len(c.Fields) == 0 {
		c.Fields = DefaultFieldSelectors()
	}
	if len(c.Cards) == 0 {
		c.Cards = CardSelectors()
	}
	return c
}

// Engine extracts raw job records from card elements.
type Engine struct {
	cfg    Config
	clock  crawl.Clock
	logger *zap.Logger
}

// NewEngine builds an extraction engine. A nil clock uses real time.
func NewEngine(cfg Config, clock crawl.Clock, logger *zap.Logger) *Engine {
	if clock == nil {
		clock = crawl.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg.withDefaults(), clock: clock, logger: logger}
}

// Extract resolves one card into a record, or nil when the card is unusable.
// A card missing title or company is discarded; any other missing field
// degrades to an empty value. Query errors discard the card, never the batch.
func (e *Engine) Extract(ctx context.Context, card crawl.Element) *crawl.RawJobRecord {
	record := &crawl.RawJobRecord{
		Source:      e.cfg.Source,
		ExtractedAt: e.clock.Now(),
	}

	for _, field := range e.cfg.Fields {
		value, err := firstMatch(ctx, card, field.Selectors)
		if err != nil {
			e.logger.Debug("card query failed, discarding card",
				zap.String("field", field.Field), zap.Error(err))
			return nil
		}
		if value == "" && field.Required {
			return nil
		}
		switch field.Field {
		case "title":
			record.Title = value
		case "company":
			record.Company = value
		case "location":
			record.Location = value
		case "salary":
			record.Salary = value
		case "description":
			record.Description = value
		}
	}

	e.fillLinkFields(ctx, card, record)
	if value, err := firstMatch(ctx, card, postedDateSelectors()); err == nil {
		record.PostedDate = value
	}
	if value, err := firstMatch(ctx, card, jobTypeSelectors()); err == nil {
		record.JobTypeText = value
	}
	return record
}

// ExtractAll locates cards via the fallback card selectors and maps Extract
// over them. The second return value counts discarded cards.
func (e *Engine) ExtractAll(ctx context.Context, page crawl.Page) ([]crawl.RawJobRecord, int, error) {
	var cards []crawl.Element
	for _, selector := range e.cfg.Cards {
		found, err := page.Elements(ctx, selector)
		if err != nil {
			return nil, 0, err
		}
		if len(found) > 0 {
			cards = found
			break
		}
	}

	records := make([]crawl.RawJobRecord, 0, len(cards))
	dropped := 0
	for _, card := range cards {
		record := e.Extract(ctx, card)
		if record == nil {
			dropped++
			continue
		}
		records = append(records, *record)
	}
	return records, dropped, nil
}

// fillLinkFields resolves the detail URL and external job key from the card's
// primary anchor. Both are best-effort.
func (e *Engine) fillLinkFields(ctx context.Context, card crawl.Element, record *crawl.RawJobRecord) {
	for _, selector := range detailLinkSelectors() {
		href, err := card.Attr(ctx, selector, "href")
		if err != nil || href == "" {
			continue
		}
		record.DetailURL = href
		if key, err := card.Attr(ctx, selector, "data-jk"); err == nil && key != "" {
			record.ExternalID = key
		} else if id, err := card.Attr(ctx, selector, "id"); err == nil && id != "" {
			record.ExternalID = strings.TrimPrefix(id, "job_")
		}
		return
	}
}

func firstMatch(ctx context.Context, card crawl.Element, selectors []string) (string, error) {
	for _, selector := range selectors {
		text, err := card.Text(ctx, selector)
		if err != nil {
			return "", err
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return trimmed, nil
		}
	}
	return "", nil
}
