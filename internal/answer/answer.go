// Package answer turns retrieved chunks into grounded, cited answers. The
// engine refuses instead of guessing: no evidence means no model call, an
// uncited response is never trusted, and confidence is computed from
// retrieval quality rather than the model's own claims.
package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sitesage/sitesage/internal/llm"
)

// Confidence labels how well an answer is grounded in retrieved evidence.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// Relevance thresholds for confidence scoring.
const (
	strongRelevance   = 0.75
	moderateRelevance = 0.5
)

// ErrGenerationUnavailable reports that the language model could not
// produce an answer after the client's retry budget was spent. It is an
// operational failure, distinct from the "no evidence" refusal.
var ErrGenerationUnavailable = errors.New("answer generation unavailable")

// Citation is one source reference the model actually used.
type Citation struct {
	Source  int // 1-based position in the evidence as presented
	ChunkID string
	URL     string
	Title   string
}

// Answer is the result of one question. Citations are ordered by first
// appearance in the response text.
type Answer struct {
	Text       string
	Citations  []Citation
	Confidence Confidence
}

// Engine answers questions against the indexed site content.
type Engine struct {
	evidence EvidenceSource
	model    llm.Generator
	log      *slog.Logger
}

func NewEngine(evidence EvidenceSource, model llm.Generator, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{evidence: evidence, model: model, log: log}
}

// Ask retrieves up to nSources chunks for the question and generates a
// cited answer from them. With no evidence it returns the fixed refusal
// without calling the model. A model failure surfaces as
// ErrGenerationUnavailable, never as a fabricated answer.
func (e *Engine) Ask(ctx context.Context, question string, nSources int) (Answer, error) {
	evidence, err := e.gather(ctx, question, nSources)
	if err != nil {
		return Answer{}, err
	}
	if len(evidence) == 0 {
		return Answer{Text: DontKnow, Confidence: ConfidenceNone}, nil
	}

	text, err := e.model.Generate(ctx, buildPrompt(question, evidence))
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	return e.finish(text, evidence), nil
}

// AskStream behaves like Ask but forwards response fragments to onDelta as
// they arrive. Citations and confidence are computed from the reassembled
// text once the stream completes, so the returned Answer is identical to
// what Ask would produce.
func (e *Engine) AskStream(ctx context.Context, question string, nSources int, onDelta func(string)) (Answer, error) {
	evidence, err := e.gather(ctx, question, nSources)
	if err != nil {
		return Answer{}, err
	}
	if len(evidence) == 0 {
		if onDelta != nil {
			onDelta(DontKnow)
		}
		return Answer{Text: DontKnow, Confidence: ConfidenceNone}, nil
	}

	prompt := buildPrompt(question, evidence)
	var text string
	if sg, ok := e.model.(llm.StreamingGenerator); ok {
		text, err = sg.GenerateStream(ctx, prompt, onDelta)
	} else {
		text, err = e.model.Generate(ctx, prompt)
		if err == nil && onDelta != nil {
			onDelta(text)
		}
	}
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	return e.finish(text, evidence), nil
}

func (e *Engine) gather(ctx context.Context, question string, n int) ([]Evidence, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("empty question")
	}
	evidence, err := e.evidence.Retrieve(ctx, question, n)
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence: %w", err)
	}
	e.log.Debug("evidence retrieved", "count", len(evidence))
	return evidence, nil
}

// finish applies the grounding contract to the raw model output.
func (e *Engine) finish(text string, evidence []Evidence) Answer {
	text = strings.TrimSpace(text)
	if isRefusal(text) {
		return Answer{Text: text, Confidence: ConfidenceNone}
	}

	citations := parseCitations(text, evidence)
	if len(citations) == 0 {
		e.log.Warn("response cited no sources, treating as ungrounded")
	}
	return Answer{
		Text:       text,
		Citations:  citations,
		Confidence: scoreConfidence(citations, evidence),
	}
}

// scoreConfidence derives the label from retrieval quality and citation
// presence. An uncited response scores none regardless of how strong the
// evidence was.
func scoreConfidence(citations []Citation, evidence []Evidence) Confidence {
	if len(evidence) == 0 || len(citations) == 0 {
		return ConfidenceNone
	}

	strong := 0
	best := 0.0
	for _, ev := range evidence {
		if ev.Relevance >= strongRelevance {
			strong++
		}
		if ev.Relevance > best {
			best = ev.Relevance
		}
	}
	switch {
	case strong >= 3:
		return ConfidenceHigh
	case best >= moderateRelevance:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
