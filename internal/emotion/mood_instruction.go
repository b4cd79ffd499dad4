package emotion

// MoodInstruction returns a short behavior guideline for the given dominant emotion.
func MoodInstruction(mood string) string {
	switch mood {
	case MoodExcited:
		return "Be upbeat and energetic, share the excitement openly."
	case MoodContent:
		return "Be warm and relaxed, show quiet happiness."
	case MoodAngry:
		return "Stay composed and brief, acknowledge the tension without escalating."
	case MoodSad:
		return "Be gentle and caring, keep the tone soft and supportive."
	case MoodFocused:
		return "Be attentive and thoughtful, engage with the details."
	case MoodCalm:
		return "Be calm and steady, speak in a relaxed tone."
	default:
		return ""
	}
}
