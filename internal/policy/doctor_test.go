package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDoctorFlagsEmptyAllowlists(t *testing.T) {
	findings := Doctor(Document{})
	var messages []string
	for _, f := range findings {
		messages = append(messages, f.Message)
	}
	assert.Contains(t, messages, "allowedCommands is empty; only help/version will run")
	assert.Contains(t, messages, "allowedGlobs is empty; every path argument will be blocked")
}

func TestDoctorFlagsSensitiveEnvPassthrough(t *testing.T) {
	findings := Doctor(Document{EnvPassthrough: []string{"OPENAI_API_KEY"}})
	found := false
	for _, f := range findings {
		if f.Severity == "warn" && f.Message == `envPassthrough includes "OPENAI_API_KEY", which commonly carries secrets` {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDoctorCleanDocumentHasNoWarnings(t *testing.T) {
	doc := Document{
		AllowedCommands: []string{"recall"},
		AllowedGlobs:    []string{"src/**"},
	}
	findings := Doctor(doc)
	for _, f := range findings {
		assert.NotEqual(t, "warn", f.Severity)
	}
}
