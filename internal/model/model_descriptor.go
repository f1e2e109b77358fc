package model

import "time"

type ModelDescriptor struct {
	ID            string        `json:"id"`
	ProviderClass string        `json:"provider_class"`
	Label         string        `json:"label"`
	APIKey        string        `json:"-"`
	BaseURL       string        `json:"-"`
	Timeout       time.Duration `json:"timeout"`
}

type ModelInfo struct {
	ID             string `json:"id"`
	ProviderClass  string `json:"provider_class"`
	Label          string `json:"label"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (d ModelDescriptor) Info() ModelInfo {
	return ModelInfo{
		ID:             d.ID,
		ProviderClass:  d.ProviderClass,
		Label:          d.Label,
		TimeoutSeconds: int(d.Timeout / time.Second),
	}
}
