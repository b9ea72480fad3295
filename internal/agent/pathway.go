package agent

// Pathway is a named processing profile controlling how much context and
// which capabilities a turn uses. Selected upstream (classifier or media
// type), table-driven here — no string-pattern branching downstream.
type Pathway string

const (
	// PathwayFast handles short chit-chat: minimal history, no
	// semantic retrieval, no tools.
	PathwayFast Pathway = "fast"
	// PathwayDefault is the standard text turn.
	PathwayDefault Pathway = "default"
	// PathwayToolIntent is a typed message the classifier recognized
	// as an action request; tool-calling is forced on.
	PathwayToolIntent Pathway = "tool_intent"
	// PathwayRichInput is content derived from an image or audio
	// transcript: more history, and a low-trust input for policy.
	PathwayRichInput Pathway = "rich_input"
)

type pathwayProfile struct {
	HistoryLimit int
	UseMemory    bool
	AllowTools   bool
	ForceTools   bool
	LowTrust     bool
}

var pathwayProfiles = map[Pathway]pathwayProfile{
	PathwayFast:       {HistoryLimit: 6},
	PathwayDefault:    {HistoryLimit: 12, UseMemory: true, AllowTools: true},
	PathwayToolIntent: {HistoryLimit: 12, UseMemory: true, AllowTools: true, ForceTools: true},
	PathwayRichInput:  {HistoryLimit: 20, UseMemory: true, AllowTools: true, LowTrust: true},
}

func profileFor(p Pathway) pathwayProfile {
	if prof, ok := pathwayProfiles[p]; ok {
		return prof
	}
	return pathwayProfiles[PathwayDefault]
}
