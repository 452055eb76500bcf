// Package personas synthesizes consumer archetypes for the consumer
// segment.  The heavy lifting is delegated to the language-generation
// collaborator; this package owns the prompt contract, output
// validation, market-share normalization, and the deterministic
// fallback used when generation fails.
package personas

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/stratlens/stratlens/internal/analysis/mathmodel"
	"github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/internal/intelligence/langgen"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// Market-share bounds applied to every persona before renormalization.
const (
	MinMarketShare = 0.05
	MaxMarketShare = 0.5
)

// Persona count bounds enforced on generator output.
const (
	MinPersonas = 3
	MaxPersonas = 5
)

// fallbackConfidence marks personas produced by the placeholder path so
// readers can tell them from generated ones.
const fallbackConfidence = 0.3

const systemPrompt = `You are a consumer research analyst. Reply with a single JSON object:
{"personas": [{"persona_name": string, "age": string, "demographics": string,
"psychographics": string, "pain_points": [string], "goals": [string],
"buying_behavior": string, "market_share": number, "value_tier": string,
"key_messaging": [string], "confidence": number}]}
market_share values are fractions of the addressable market and should sum to 1.
confidence is your certainty in the persona, between 0 and 1.`

// Synthesizer turns topic content into consumer personas.
type Synthesizer struct {
	gen             langgen.Generator
	log             logging.Logger
	numPersonas     int
	summaryMaxChars int
}

// NewSynthesizer builds a synthesizer.  numPersonas is clamped into the
// supported [3,5] band.
func NewSynthesizer(gen langgen.Generator, log logging.Logger, numPersonas, summaryMaxChars int) *Synthesizer {
	if log == nil {
		log = logging.Default()
	}
	if numPersonas < MinPersonas {
		numPersonas = MinPersonas
	}
	if numPersonas > MaxPersonas {
		numPersonas = MaxPersonas
	}
	if summaryMaxChars <= 0 {
		summaryMaxChars = 8000
	}
	return &Synthesizer{
		gen:             gen,
		log:             log.Named("personas"),
		numPersonas:     numPersonas,
		summaryMaxChars: summaryMaxChars,
	}
}

// Generate synthesizes personas for the session.  Generation failures
// never propagate: the synthesizer falls back to placeholder personas so
// the consumer segment always yields a usable, clearly low-confidence
// result.
func (s *Synthesizer) Generate(ctx context.Context, sessionID common.SessionID, topic string, content []string) []results.ConsumerPersona {
	personas, err := s.synthesize(ctx, sessionID, topic, content)
	if err != nil {
		s.log.Warn("persona synthesis failed, using fallback",
			logging.String("session_id", string(sessionID)),
			logging.Err(err),
		)
		return s.fallback(sessionID, topic)
	}
	return personas
}

func (s *Synthesizer) synthesize(ctx context.Context, sessionID common.SessionID, topic string, content []string) ([]results.ConsumerPersona, error) {
	if s.gen == nil {
		return nil, errors.New(errors.ErrCodePersonaGenerationFailed, "no generator configured")
	}

	summary := SummarizeContent(topic, content, s.summaryMaxChars)
	userPrompt := fmt.Sprintf(
		"Topic: %s\n\nSynthesize exactly %d distinct consumer personas for this topic.\n\nResearch content:\n%s",
		topic, s.numPersonas, summary,
	)

	raw, err := s.gen.GenerateJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersonaGenerationFailed, "persona generation call failed")
	}

	var wire struct {
		Personas []personaWire `json:"personas"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersonaOutputMalformed, "persona output is not valid JSON")
	}
	if len(wire.Personas) < MinPersonas {
		return nil, errors.Newf(errors.ErrCodePersonaOutputMalformed,
			"got %d personas, need at least %d", len(wire.Personas), MinPersonas)
	}
	if len(wire.Personas) > MaxPersonas {
		wire.Personas = wire.Personas[:MaxPersonas]
	}

	personas := make([]results.ConsumerPersona, 0, len(wire.Personas))
	shares := make([]float64, 0, len(wire.Personas))
	for i, w := range wire.Personas {
		name := strings.TrimSpace(w.PersonaName)
		if name == "" {
			// Drop the unnamed persona, keep its siblings; the survivor
			// count is re-checked below.
			s.log.Warn("dropping persona with empty name", logging.Int("index", i))
			continue
		}
		personas = append(personas, results.ConsumerPersona{
			SessionID:      sessionID,
			Topic:          topic,
			PersonaName:    name,
			Age:            strings.TrimSpace(w.Age),
			Demographics:   strings.TrimSpace(w.Demographics),
			Psychographics: strings.TrimSpace(w.Psychographics),
			PainPoints:     w.PainPoints,
			Goals:          w.Goals,
			BuyingBehavior: strings.TrimSpace(w.BuyingBehavior),
			ValueTier:      strings.TrimSpace(w.ValueTier),
			KeyMessaging:   w.KeyMessaging,
			Confidence:     mathmodel.Clamp01(w.Confidence),
		})
		shares = append(shares, w.MarketShare)
	}

	if len(personas) < MinPersonas {
		return nil, errors.Newf(errors.ErrCodePersonaOutputMalformed,
			"only %d personas survived validation, need at least %d", len(personas), MinPersonas)
	}

	for i, share := range NormalizeShares(shares) {
		personas[i].MarketShare = share
	}
	return personas, nil
}

type personaWire struct {
	PersonaName    string   `json:"persona_name"`
	Age            string   `json:"age"`
	Demographics   string   `json:"demographics"`
	Psychographics string   `json:"psychographics"`
	PainPoints     []string `json:"pain_points"`
	Goals          []string `json:"goals"`
	BuyingBehavior string   `json:"buying_behavior"`
	MarketShare    float64  `json:"market_share"`
	ValueTier      string   `json:"value_tier"`
	KeyMessaging   []string `json:"key_messaging"`
	Confidence     float64  `json:"confidence"`
}

// NormalizeShares clamps every share into [MinMarketShare, MaxMarketShare]
// and rescales the result to sum exactly 1.0.  Non-positive input sums
// degrade to equal shares.
func NormalizeShares(shares []float64) []float64 {
	n := len(shares)
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	var sum float64
	for i, s := range shares {
		out[i] = mathmodel.Clamp(s, MinMarketShare, MaxMarketShare)
		sum += out[i]
	}
	if sum <= 0 {
		for i := range out {
			out[i] = 1.0 / float64(n)
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// fallback returns the placeholder persona set used when generation is
// unavailable.  Shares are equal and confidence is uniformly low.
func (s *Synthesizer) fallback(sessionID common.SessionID, topic string) []results.ConsumerPersona {
	archetypes := []struct {
		name string
		tier string
	}{
		{"Pragmatic Adopter", "mid"},
		{"Value Seeker", "budget"},
		{"Early Enthusiast", "premium"},
	}
	personas := make([]results.ConsumerPersona, 0, len(archetypes))
	share := 1.0 / float64(len(archetypes))
	for _, a := range archetypes {
		personas = append(personas, results.ConsumerPersona{
			SessionID:      sessionID,
			Topic:          topic,
			PersonaName:    a.name,
			Age:            "25-54",
			Demographics:   "placeholder generated without research content",
			Psychographics: "placeholder generated without research content",
			PainPoints:     []string{"insufficient research content available"},
			Goals:          []string{"evaluate " + topic},
			BuyingBehavior: "unknown",
			MarketShare:    share,
			ValueTier:      a.tier,
			KeyMessaging:   []string{},
			Confidence:     fallbackConfidence,
		})
	}
	return personas
}

// SummarizeContent condenses research documents to at most maxChars,
// keeping the chunks that mention the topic's terms most often.  Order
// among kept chunks follows their original position so the summary still
// reads coherently.
func SummarizeContent(topic string, docs []string, maxChars int) string {
	type chunk struct {
		pos   int
		score int
		text  string
	}

	keywords := strings.Fields(strings.ToLower(topic))
	var chunks []chunk
	pos := 0
	for _, doc := range docs {
		for _, part := range strings.Split(doc, "\n\n") {
			text := strings.TrimSpace(part)
			if text == "" {
				continue
			}
			lower := strings.ToLower(text)
			score := 0
			for _, kw := range keywords {
				score += strings.Count(lower, kw)
			}
			chunks = append(chunks, chunk{pos: pos, score: score, text: text})
			pos++
		}
	}
	if len(chunks) == 0 {
		return ""
	}

	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].score > chunks[j].score })

	var kept []chunk
	used := 0
	for _, c := range chunks {
		cost := len(c.text)
		if used > 0 {
			cost += 2
		}
		if used+cost > maxChars {
			continue
		}
		kept = append(kept, c)
		used += cost
	}
	// Nothing fit whole: hard-truncate the best chunk.
	if len(kept) == 0 {
		text := chunks[0].text
		if len(text) > maxChars {
			text = text[:maxChars]
		}
		return text
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].pos < kept[j].pos })
	parts := make([]string, len(kept))
	for i, c := range kept {
		parts[i] = c.text
	}
	return strings.Join(parts, "\n\n")
}
