package prompts

// Document is the on-disk shape of a prompt set.
type Document struct {
	Checklist    Template          `yaml:"checklist"`
	Question     Template          `yaml:"question"`
	Difficulties map[string]string `yaml:"difficulties"`
}

// Template is one text/template source plus its generation limit.
type Template struct {
	Template  string `yaml:"template"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Prompt is a rendered prompt ready for the text generator.
type Prompt struct {
	Text      string
	MaxTokens int
}

type checklistData struct {
	Topic string
	Count int
}

type questionData struct {
	Topic      string
	Item       string
	Difficulty string
	Guidance   string
}
