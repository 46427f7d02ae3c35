// Package style applies a rhetorical register to an answer based on how
// confident the agent is in it and where it came from.
package style

import (
	"strconv"
	"strings"

	"github.com/acharya-agent/backend/internal/persona"
	"github.com/acharya-agent/backend/pkg/utils"
)

type Kind string

const (
	KindSage           Kind = "sage"
	KindConversational Kind = "conversational"
	KindScholarly      Kind = "scholarly"
	KindPlain          Kind = "plain"
)

type Origin string

const (
	OriginKnowledge Origin = "knowledge"
	OriginReference Origin = "reference"
	OriginFallback  Origin = "fallback"
)

const (
	SageThreshold           = 0.8
	ConversationalThreshold = 0.4
)

type Styler struct {
	styles persona.Styles
}

func New(styles persona.Styles) *Styler {
	return &Styler{styles: styles}
}

// Select is the fixed decision table: trusted stored knowledge gets the sage
// register, reference material is always attributed, middling confidence is
// conversational and everything else is left plain.
func Select(confidence float64, origin Origin) Kind {
	switch {
	case origin == OriginKnowledge && confidence >= SageThreshold:
		return KindSage
	case origin == OriginReference:
		return KindScholarly
	case confidence >= ConversationalThreshold && confidence < SageThreshold:
		return KindConversational
	default:
		return KindPlain
	}
}

// Style returns answer rewritten in the register Select picks. The same
// inputs always give the same output.
func (s *Styler) Style(answer string, confidence float64, origin Origin) string {
	return s.Apply(answer, Select(confidence, origin))
}

func (s *Styler) Apply(answer string, kind Kind) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return answer
	}

	switch kind {
	case KindSage:
		return s.sage(answer)
	case KindConversational:
		return s.conversational(answer)
	case KindScholarly:
		return s.scholarly(answer)
	default:
		return answer
	}
}

func (s *Styler) sage(answer string) string {
	sentences := utils.SplitSentences(answer)
	for i := 1; i < len(sentences); i += 2 {
		connective := pick(s.styles.Sage.Connectives, answer+strconv.Itoa(i))
		sentences[i] = join(connective, sentences[i])
	}

	framing := pick(s.styles.Sage.Framings, answer)
	return join(framing, strings.Join(sentences, " "))
}

func (s *Styler) conversational(answer string) string {
	sentences := utils.SplitSentences(answer)
	sentences[0] = s.dropFormalFramer(sentences[0])

	if len(sentences) > 1 {
		connective := pick(s.styles.Conversational.Connectives, answer+"1")
		sentences[1] = join(connective, sentences[1])
	}

	interjection := pick(s.styles.Conversational.Interjections, answer)
	return join(interjection, strings.Join(sentences, " "))
}

func (s *Styler) scholarly(answer string) string {
	attribution := pick(s.styles.Scholarly.Attributions, answer)
	if attribution == "" {
		return answer
	}
	return attribution + " " + answer
}

// dropFormalFramer removes a leading "Regarding ...," style clause.
func (s *Styler) dropFormalFramer(sentence string) string {
	lower := strings.ToLower(sentence)
	for _, framer := range s.styles.Conversational.FormalFramers {
		if !strings.HasPrefix(lower, strings.ToLower(framer)+" ") {
			continue
		}
		comma := strings.Index(sentence, ",")
		if comma < 0 || comma == len(sentence)-1 {
			return sentence
		}
		rest := strings.TrimSpace(sentence[comma+1:])
		return utils.UpperFirst(rest)
	}
	return sentence
}

func pick(phrases []string, seed string) string {
	if len(phrases) == 0 {
		return ""
	}
	return phrases[utils.StableIndex(seed, len(phrases))]
}

func join(lead, sentence string) string {
	if lead == "" {
		return sentence
	}
	if strings.HasSuffix(lead, ".") || strings.HasSuffix(lead, "!") || strings.HasSuffix(lead, "?") {
		return lead + " " + sentence
	}
	return lead + " " + utils.LowerLeadingWord(sentence)
}
