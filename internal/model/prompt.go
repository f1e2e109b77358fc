package model

type PromptTemplate struct {
	ModelID string `json:"model_id" yaml:"-" db:"model_id"`
	Prompt  string `json:"prompt" yaml:"prompt" db:"prompt"`
	Mtime   int64  `json:"mtime" yaml:"mtime,omitempty" db:"mtime"`
}
