package interpreter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/interpreter/provider"
)

type fakePrompter struct {
	key     string
	err     error
	notices []string
	prompts []string
}

func (p *fakePrompter) PromptSecret(notice, prompt string) (string, error) {
	p.notices = append(p.notices, notice)
	p.prompts = append(p.prompts, prompt)
	return p.key, p.err
}

func TestResolveCredential(t *testing.T) {
	tests := []struct {
		name       string
		explicit   string
		env        string
		prompter   *fakePrompter
		want       string
		wantErr    error
		wantPrompt bool
	}{
		{name: "explicit wins", explicit: "sk-explicit", env: "sk-env", prompter: &fakePrompter{key: "sk-prompt"}, want: "sk-explicit"},
		{name: "environment", env: " sk-env\n", prompter: &fakePrompter{key: "sk-prompt"}, want: "sk-env"},
		{name: "prompted", prompter: &fakePrompter{key: "  sk-typed  "}, want: "sk-typed", wantPrompt: true},
		{name: "blank explicit falls through", explicit: "   ", env: "sk-env", want: "sk-env"},
		{name: "no prompter", wantErr: ErrNoCredential},
		{name: "empty answer", prompter: &fakePrompter{key: " "}, wantErr: ErrNoCredential, wantPrompt: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(APIKeyEnv, tt.env)

			var prompter Prompter
			if tt.prompter != nil {
				prompter = tt.prompter
			}

			got, err := resolveCredential(tt.explicit, prompter)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			if tt.prompter == nil {
				return
			}
			if tt.wantPrompt {
				assert.Equal(t, []string{CredentialNotice}, tt.prompter.notices)
				assert.Equal(t, []string{CredentialPrompt}, tt.prompter.prompts)
			} else {
				assert.Empty(t, tt.prompter.prompts)
			}
		})
	}
}

func TestResolveCredential_PrompterError(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	cause := errors.New("not a terminal")

	_, err := resolveCredential("", &fakePrompter{err: cause})
	assert.ErrorIs(t, err, cause)
}

// keyCapture is a registered provider that records the config it was built
// with.
var keyCapture struct {
	configs []provider.Config
}

func init() {
	provider.Register("credential-test", func(cfg provider.Config) (provider.StreamingProvider, error) {
		keyCapture.configs = append(keyCapture.configs, cfg)
		return &scriptedProvider{}, nil
	})
}

func TestNew_ResolvesCredentialOnce(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	keyCapture.configs = nil
	prompter := &fakePrompter{key: "sk-typed"}

	i, err := New(
		WithProviderName("credential-test"),
		WithPrompter(prompter),
		WithBaseURL("http://localhost:1234/v1"),
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)

	_, _ = i.Send(context.Background(), "hello")
	_, _ = i.Send(context.Background(), "again")

	assert.Len(t, prompter.prompts, 1)
	require.Len(t, keyCapture.configs, 1)
	assert.Equal(t, "sk-typed", keyCapture.configs[0].APIKey)
	assert.Equal(t, "http://localhost:1234/v1", keyCapture.configs[0].BaseURL)
}

func TestNew_Errors(t *testing.T) {
	t.Run("no credential", func(t *testing.T) {
		t.Setenv(APIKeyEnv, "")
		_, err := New(WithProviderName("credential-test"), WithLogger(discardLogger()))
		assert.ErrorIs(t, err, ErrNoCredential)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(WithAPIKey("sk-x"), WithProviderName("missing"), WithLogger(discardLogger()))
		assert.ErrorContains(t, err, "unknown provider")
	})

	t.Run("provider given directly", func(t *testing.T) {
		t.Setenv(APIKeyEnv, "")
		_, err := New(WithStreamingProvider(&scriptedProvider{}), WithLogger(discardLogger()))
		assert.NoError(t, err)
	})
}
