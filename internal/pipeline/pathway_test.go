package pipeline

import (
	"testing"

	"github.com/neeroai/migue.ai-sub000/internal/agent"
	"github.com/neeroai/migue.ai-sub000/internal/store"
)

func TestChoosePathway(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		text    string
		want    agent.Pathway
	}{
		{"short greeting", "text", "hola", agent.PathwayFast},
		{"greeting with tail", "text", "hola migue!", agent.PathwayFast},
		{"thanks", "text", "gracias", agent.PathwayFast},
		{"reminder request", "text", "recuérdame pagar el arriendo mañana", agent.PathwayToolIntent},
		{"english reminder", "text", "remind me to call mom", agent.PathwayToolIntent},
		{"meeting request", "text", "agenda una reunión con Beto el lunes", agent.PathwayToolIntent},
		{"expense", "text", "gasté 20 mil en almuerzo", agent.PathwayToolIntent},
		{"send message", "text", "mándale un mensaje a mi mamá", agent.PathwayToolIntent},
		{"plain question", "text", "¿qué restaurantes me recomiendas cerca?", agent.PathwayDefault},
		{"long greeting-like text", "text", "hola quería preguntarte una cosa sobre el clima de mañana", agent.PathwayDefault},
		{"image", "image", "mi recibo", agent.PathwayRichInput},
		{"audio", "audio", "", agent.PathwayRichInput},
		{"document", "document", "", agent.PathwayRichInput},
		{"interactive reply", "interactive", "Confirmar", agent.PathwayDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &store.NormalizedMessage{Type: tt.msgType, Text: tt.text}
			if got := ChoosePathway(msg); got != tt.want {
				t.Errorf("ChoosePathway(%q/%q) = %q, want %q", tt.msgType, tt.text, got, tt.want)
			}
		})
	}
}
