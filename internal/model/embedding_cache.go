package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// EmbeddingCacheKey identifies one cached vector. The text itself is never
// stored, only its sha256.
type EmbeddingCacheKey struct {
	ModelName   string `json:"model_name" db:"model_name"`
	TaskType    string `json:"task_type" db:"task_type"`
	ContentHash string `json:"content_hash" db:"content_hash"`
}

func NewEmbeddingCacheKey(modelName, taskType, text string) EmbeddingCacheKey {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	sum := sha256.Sum256([]byte(text))
	return EmbeddingCacheKey{
		ModelName:   modelName,
		TaskType:    taskType,
		ContentHash: hex.EncodeToString(sum[:]),
	}
}

func (k EmbeddingCacheKey) String() string {
	return "embed:" + k.ModelName + ":" + k.TaskType + ":" + k.ContentHash
}

type EmbeddingCache struct {
	EmbeddingCacheKey
	Embedding []float32 `json:"embedding"`
	Ctime     int64     `json:"ctime"`
}
