package interpreter

import (
	"fmt"
	"os"
	"strings"
)

// APIKeyEnv is the environment variable the credential is read from.
const APIKeyEnv = "OPENAI_API_KEY"

// CredentialNotice is shown before asking for a key interactively.
const CredentialNotice = `OpenAI API key not found.

To use Open Interpreter in your terminal, set the environment variable using 'export OPENAI_API_KEY=your_api_key' in Unix-based systems, or 'setx OPENAI_API_KEY your_api_key' in Windows.

To get an API key, visit https://platform.openai.com/account/api-keys.
`

// CredentialPrompt asks for the key.
const CredentialPrompt = "Please enter an OpenAI API key for this session:"

// Prompter asks the user for a secret.
type Prompter interface {
	PromptSecret(notice, prompt string) (string, error)
}

// resolveCredential returns explicit, else the environment value, else
// the key the prompter returns.
func resolveCredential(explicit string, prompter Prompter) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		return key, nil
	}
	if prompter == nil {
		return "", ErrNoCredential
	}

	key, err := prompter.PromptSecret(CredentialNotice, CredentialPrompt)
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrNoCredential
	}
	return key, nil
}
