package llm

// Family identifies a provider backend family. Each family is served by one
// [Adapter] implementation.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyGoogle    Family = "google"
	FamilyAnthropic Family = "anthropic"
	FamilyMistral   Family = "mistral"
)

// CostTier is a coarse pricing classification for a model.
type CostTier string

const (
	CostTierFree     CostTier = "free"
	CostTierStandard CostTier = "standard"
	CostTierPremium  CostTier = "premium"
)

// ModelDescriptor is the static metadata for one supported model identifier.
// Descriptors are read-only; new models are added by registering metadata,
// not by touching routing logic.
type ModelDescriptor struct {
	// ID is the model identifier callers pass in requests (e.g. "gpt-4o").
	ID string `json:"id"`

	// Family selects which adapter serves this model.
	Family Family `json:"family"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Description is a one-line summary shown in model pickers.
	Description string `json:"description"`

	// MaxTokens is the model's context window size in tokens.
	MaxTokens int `json:"max_tokens"`

	// SupportsFunctions indicates native function/tool calling.
	SupportsFunctions bool `json:"supports_functions"`

	// SupportsVision indicates image input support.
	SupportsVision bool `json:"supports_vision"`

	// CostTier classifies the model's pricing.
	CostTier CostTier `json:"cost_tier"`
}

// Registry is an immutable model-identifier → descriptor lookup. It is the
// single authority for routing decisions and for rejecting unsupported
// models. Read-only after construction, so it needs no locking.
type Registry struct {
	byID  map[string]ModelDescriptor
	order []string
}

// NewRegistry builds a Registry from the given descriptors. Later duplicates
// of the same ID replace earlier ones.
func NewRegistry(models ...ModelDescriptor) *Registry {
	r := &Registry{byID: make(map[string]ModelDescriptor, len(models))}
	for _, m := range models {
		if _, seen := r.byID[m.ID]; !seen {
			r.order = append(r.order, m.ID)
		}
		r.byID[m.ID] = m
	}
	return r
}

// Lookup resolves a model identifier. The second return is false when the
// identifier is not registered.
func (r *Registry) Lookup(id string) (ModelDescriptor, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Models returns all registered descriptors in registration order.
func (r *Registry) Models() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// BuiltinModels returns the descriptor set for the models Mnemo supports out
// of the box. The catalog is the routing authority: the anthropic and mistral
// families are served through the Vertex AI adapter and are therefore only
// usable where Google Cloud credentials are configured.
func BuiltinModels() []ModelDescriptor {
	return []ModelDescriptor{
		// ── Google Gemini ────────────────────────────────────────────────────
		{
			ID: "gemini-1.5-pro", Family: FamilyGoogle, Name: "Gemini 1.5 Pro",
			Description: "Most capable Google model with 1M context window",
			MaxTokens:   1_048_576, SupportsFunctions: true, SupportsVision: true,
			CostTier: CostTierPremium,
		},
		{
			ID: "gemini-1.5-flash", Family: FamilyGoogle, Name: "Gemini 1.5 Flash",
			Description: "Fast and efficient Google model",
			MaxTokens:   1_048_576, SupportsFunctions: true, SupportsVision: true,
			CostTier: CostTierStandard,
		},
		{
			ID: "gemini-1.5-flash-lite", Family: FamilyGoogle, Name: "Gemini 1.5 Flash Lite",
			Description: "Optimized for cost-efficiency and latency",
			MaxTokens:   1_048_576, SupportsFunctions: true, SupportsVision: true,
			CostTier: CostTierStandard,
		},
		{
			ID: "gemini-1.0-pro", Family: FamilyGoogle, Name: "Gemini 1.0 Pro",
			Description: "Versatile language model for various tasks",
			MaxTokens:   32_768, SupportsFunctions: true,
			CostTier: CostTierStandard,
		},
		{
			ID: "gemini-1.0-pro-vision", Family: FamilyGoogle, Name: "Gemini 1.0 Pro Vision",
			Description: "Supports text, images, and vision tasks",
			MaxTokens:   32_768, SupportsFunctions: true, SupportsVision: true,
			CostTier: CostTierStandard,
		},

		// ── OpenAI ───────────────────────────────────────────────────────────
		{
			ID: "gpt-4-turbo", Family: FamilyOpenAI, Name: "GPT-4 Turbo",
			Description: "OpenAI's most capable model",
			MaxTokens:   128_000, SupportsFunctions: true, SupportsVision: true,
			CostTier: CostTierPremium,
		},
		{
			ID: "gpt-4o", Family: FamilyOpenAI, Name: "GPT-4o",
			Description: "OpenAI's most advanced multimodal model",
			MaxTokens:   128_000, SupportsFunctions: true, SupportsVision: true,
			CostTier: CostTierPremium,
		},
		{
			ID: "gpt-3.5-turbo", Family: FamilyOpenAI, Name: "GPT-3.5 Turbo",
			Description: "Efficient OpenAI model with good capabilities",
			MaxTokens:   16_000, SupportsFunctions: true, SupportsVision: true,
			CostTier: CostTierStandard,
		},

		// ── Anthropic Claude (via Vertex AI) ─────────────────────────────────
		{
			ID: "claude-3-opus", Family: FamilyAnthropic, Name: "Claude 3 Opus",
			Description: "Anthropic's most capable model",
			MaxTokens:   200_000, SupportsFunctions: true, SupportsVision: true,
			CostTier: CostTierPremium,
		},
		{
			ID: "claude-3-sonnet", Family: FamilyAnthropic, Name: "Claude 3 Sonnet",
			Description: "Balanced Claude model for performance and efficiency",
			MaxTokens:   180_000, SupportsFunctions: true, SupportsVision: true,
			CostTier: CostTierStandard,
		},
		{
			ID: "claude-3-haiku", Family: FamilyAnthropic, Name: "Claude 3 Haiku",
			Description: "Fast, compact model for high-throughput applications",
			MaxTokens:   150_000, SupportsFunctions: true, SupportsVision: true,
			CostTier: CostTierStandard,
		},
		{
			ID: "claude-2.1", Family: FamilyAnthropic, Name: "Claude 2.1",
			Description: "Previous generation Claude model",
			MaxTokens:   100_000,
			CostTier:    CostTierStandard,
		},

		// ── Mistral (via Vertex AI) ──────────────────────────────────────────
		{
			ID: "mistral-small-2402", Family: FamilyMistral, Name: "Mistral Small 2402",
			Description: "Balanced model for everyday use",
			MaxTokens:   32_000, SupportsFunctions: true,
			CostTier: CostTierStandard,
		},
		{
			ID: "mistral-medium-2312", Family: FamilyMistral, Name: "Mistral Medium 2312",
			Description: "Advanced reasoning and context understanding",
			MaxTokens:   32_000, SupportsFunctions: true,
			CostTier: CostTierStandard,
		},
		{
			ID: "mistral-large-2402", Family: FamilyMistral, Name: "Mistral Large 2402",
			Description: "Superior model for complex tasks",
			MaxTokens:   32_000, SupportsFunctions: true,
			CostTier: CostTierPremium,
		},
	}
}
