package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv reads .env from the working directory if present.
// Variables already set in the environment win.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

// Secrets holds the API credentials read from the environment.
type Secrets struct {
	ZoteroAPIKey          string
	ZoteroUserID          string
	NCBIAPIKey            string
	SemanticScholarAPIKey string
	OpenAIAPIKey          string
	AnthropicAPIKey       string
}

// SecretsFromEnv collects credentials from the process environment.
func SecretsFromEnv() Secrets {
	s2 := os.Getenv("SEMANTIC_SCHOLAR_API_KEY")
	if s2 == "" {
		s2 = os.Getenv("SEMANTICSCHOLAR_API")
	}
	return Secrets{
		ZoteroAPIKey:          os.Getenv("ZOTERO_API_KEY"),
		ZoteroUserID:          os.Getenv("ZOTERO_USER_ID"),
		NCBIAPIKey:            os.Getenv("NCBI_API_KEY"),
		SemanticScholarAPIKey: s2,
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:       os.Getenv("ANTHROPIC_API_KEY"),
	}
}
