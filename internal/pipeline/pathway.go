package pipeline

import (
	"strings"

	"github.com/neeroai/migue.ai-sub000/internal/agent"
	"github.com/neeroai/migue.ai-sub000/internal/store"
)

// actionVerbs marks typed messages that directly request an action.
// Table-driven replacement for the ad hoc pattern checks this policy
// descends from; the mappings are pinned by golden tests.
var actionVerbs = []string{
	"remind", "recuérdame", "recordatorio",
	"schedule", "agenda", "agendar", "meeting", "reunión",
	"expense", "gasto", "gasté", "spent",
	"send a message", "envía", "mándale", "avísale",
}

var greetings = []string{
	"hi", "hello", "hey", "hola", "buenos días", "buenas", "thanks", "gracias", "ok",
}

// ChoosePathway maps an inbound message to its processing profile:
// media-derived content is rich input (low trust), typed action requests
// force tools, short greetings take the fast path, everything else is
// the default turn.
func ChoosePathway(msg *store.NormalizedMessage) agent.Pathway {
	if msg.Type != "text" && msg.Type != "interactive" {
		return agent.PathwayRichInput
	}

	text := strings.ToLower(strings.TrimSpace(msg.Text))

	for _, verb := range actionVerbs {
		if strings.Contains(text, verb) {
			return agent.PathwayToolIntent
		}
	}

	if len(text) < 40 {
		for _, g := range greetings {
			if text == g || strings.HasPrefix(text, g+" ") || strings.HasPrefix(text, g+"!") {
				return agent.PathwayFast
			}
		}
	}

	return agent.PathwayDefault
}
