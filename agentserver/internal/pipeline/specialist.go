package pipeline

import (
	"github.com/couchrishi/sahabat/agentserver/internal/domain"
	"github.com/couchrishi/sahabat/agentserver/internal/prompt"
)

// Specialist is a terminal agent that writes final_response for one modality.
type Specialist struct {
	Name        domain.TargetAgent
	Description string
	Model       string
	Prompt      prompt.Name
	// ShapeByTier collapses Free answers into one paragraph.
	ShapeByTier bool
}

// Models names the model used by each agent.
type Models struct {
	Orchestrator string `yaml:"orchestrator"`
	Text         string `yaml:"text"`
	// TextPro is declared for complex text queries but not selected by any route.
	TextPro string `yaml:"text_pro"`
	Image   string `yaml:"image"`
	Video   string `yaml:"video"`
}

// DefaultModels returns the production model table.
func DefaultModels() Models {
	return Models{
		Orchestrator: "gemini-2.5-pro",
		Text:         "gemini-2.5-flash",
		TextPro:      "gemini-2.5-pro",
		Image:        "gemini-2.5-flash-image-preview",
		Video:        "veo-3.1-fast-generate-preview",
	}
}

// specialists builds the hand-off dispatch table keyed by target_agent.
func specialists(models Models) map[domain.TargetAgent]*Specialist {
	return map[domain.TargetAgent]*Specialist{
		domain.TargetText: {
			Name:        domain.TargetText,
			Description: "Handles all text-based tasks: writing, summarizing, translating, analysis and questions.",
			Model:       models.Text,
			Prompt:      prompt.Text,
			ShapeByTier: true,
		},
		domain.TargetImage: {
			Name:        domain.TargetImage,
			Description: "Handles all image generation tasks.",
			Model:       models.Image,
			Prompt:      prompt.Image,
		},
		domain.TargetVideo: {
			Name:        domain.TargetVideo,
			Description: "Handles all video generation tasks: videos, animations and motion pictures.",
			Model:       models.Video,
			Prompt:      prompt.Video,
		},
	}
}
