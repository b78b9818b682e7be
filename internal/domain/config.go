package domain

// VectorConfig is the vectorizer tuning every side of the engine must agree
// on. Snapshots built with one model and width only answer queries embedded
// the same way.
type VectorConfig struct {
	Model      string
	Dimensions int
	BatchSize  int
}

// DefaultVectorConfig returns the stock tuning for the OpenAI small
// embedding model.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		BatchSize:  32,
	}
}
