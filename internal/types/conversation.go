package types

import "time"

const (
	// RoleUser marks a turn authored by the user.
	RoleUser = "user"
	// RoleAssistant marks a turn authored by the companion.
	RoleAssistant = "assistant"
)

// Turn is one message exchanged in a conversation.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	Role           string    `json:"role"`
	Timestamp      time.Time `json:"timestamp"`
	ParentID       string    `json:"parent_id,omitempty"`
	Deleted        bool      `json:"deleted"`
}

// EmotionReading is the lexicon-based emotion estimate for one text.
type EmotionReading struct {
	Primary   string  `json:"primary"`
	Secondary string  `json:"secondary,omitempty"`
	Intensity float64 `json:"intensity"`
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
}

// EmotionTrend aggregates the rolling emotion history.
type EmotionTrend struct {
	Dominant   string  `json:"dominant"`
	AvgValence float64 `json:"avg_valence"`
	AvgArousal float64 `json:"avg_arousal"`
	Stability  float64 `json:"stability"`
}

const (
	TransitionNatural   = "natural"
	TransitionForced    = "forced"
	TransitionSuggested = "suggested"
)

// Topic holds running statistics for one discussed topic.
type Topic struct {
	ConversationID string    `json:"conversation_id"`
	Name           string    `json:"name"`
	LastDiscussed  time.Time `json:"last_discussed"`
	Frequency      int       `json:"frequency"`
	Duration       float64   `json:"duration"` // seconds
	Sentiment      float64   `json:"sentiment"`
	RelatedTopics  []string  `json:"related_topics"`
	ContextHistory []string  `json:"context_history"`
}

// TopicTransition records a change of dominant topic.
type TopicTransition struct {
	ConversationID string    `json:"conversation_id"`
	FromTopic      string    `json:"from_topic"`
	ToTopic        string    `json:"to_topic"`
	Timestamp      time.Time `json:"timestamp"`
	Kind           string    `json:"kind"`
	Context        string    `json:"context"`
}

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Memory is a remembered message with its importance score.
type Memory struct {
	ID                   string    `json:"id"`
	ConversationID       string    `json:"conversation_id"`
	Content              string    `json:"content"`
	Importance           float64   `json:"importance"`
	Context              string    `json:"context"`
	Sentiment            string    `json:"sentiment"`
	AssociatedAttributes []string  `json:"associated_attributes"`
	CreatedAt            time.Time `json:"created_at"`
	LastAccessed         time.Time `json:"last_accessed"`
	Embedding            []float32 `json:"-"`
}

// PersonalityAttribute is one named trait value in [0,100].
type PersonalityAttribute struct {
	ConversationID string  `json:"conversation_id"`
	Name           string  `json:"name"`
	Value          float64 `json:"value"`
}

// EmotionalState is the companion's running mood and energy.
type EmotionalState struct {
	ConversationID  string    `json:"conversation_id"`
	Mood            float64   `json:"mood"`
	Energy          float64   `json:"energy"`
	DominantEmotion string    `json:"dominant_emotion"`
	LastUpdate      time.Time `json:"last_update"`
	LastDecay       time.Time `json:"last_decay"`
}

// Interest is a learned user interest.
type Interest struct {
	ConversationID string    `json:"conversation_id"`
	Category       string    `json:"category"`
	Topic          string    `json:"topic"`
	Sentiment      float64   `json:"sentiment"`
	Frequency      int       `json:"frequency"`
	Confidence     float64   `json:"confidence"`
	RelatedTopics  []string  `json:"related_topics"`
	LastMentioned  time.Time `json:"last_mentioned"`
}

// Preference is a learned communication or interaction preference.
type Preference struct {
	ConversationID string    `json:"conversation_id"`
	Category       string    `json:"category"`
	Value          string    `json:"value"`
	Strength       float64   `json:"strength"`
	Context        []string  `json:"context"`
	LastUpdated    time.Time `json:"last_updated"`
}

const (
	IssueProfanity       = "profanity"
	IssueToxicity        = "toxicity"
	IssueSensitiveTopics = "sensitive_topics"
	IssueLength          = "length"
	IssueBannedWords     = "banned_words"
)

// ModerationVerdict is the outcome of moderating one message.
type ModerationVerdict struct {
	IsAllowed       bool            `json:"is_allowed"`
	Warnings        []string        `json:"warnings"`
	FilteredContent string          `json:"filtered_content"`
	ModerationScore float64         `json:"moderation_score"`
	DetectedIssues  map[string]bool `json:"detected_issues"`
}

// ModerationRecord is a logged moderation decision.
type ModerationRecord struct {
	ConversationID string            `json:"conversation_id"`
	Content        string            `json:"content"`
	Verdict        ModerationVerdict `json:"verdict"`
	CreatedAt      time.Time         `json:"created_at"`
}

const (
	MediaImage = "image"
	MediaVoice = "voice"
)

// MediaItem is a piece of shared media.
type MediaItem struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Kind           string    `json:"kind"`
	Caption        string    `json:"caption"`
	CreatedAt      time.Time `json:"created_at"`
}

// MediaFingerprint is the deterministic content summary of a media item.
type MediaFingerprint struct {
	MediaID    string    `json:"media_id"`
	Vector     []float32 `json:"-"`
	Tags       []string  `json:"tags"`
	Categories []string  `json:"categories"`
	ComputedAt time.Time `json:"computed_at"`
}

const (
	InteractionView   = "view"
	InteractionPlay   = "play"
	InteractionShare  = "share"
	InteractionDelete = "delete"
)

// MediaInteraction is a user action on a media item.
type MediaInteraction struct {
	MediaID        string    `json:"media_id"`
	ConversationID string    `json:"conversation_id"`
	Kind           string    `json:"kind"`
	Timestamp      time.Time `json:"timestamp"`
}

// ScoredMedia is a recommendation candidate with its score.
type ScoredMedia struct {
	Item  MediaItem `json:"item"`
	Score float64   `json:"score"`
}
