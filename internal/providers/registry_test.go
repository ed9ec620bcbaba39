package providers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgateway/config"
	"chatgateway/internal/core"
)

func TestNewRegistry_Builtins(t *testing.T) {
	reg, err := NewRegistry(nil)
	require.NoError(t, err)

	ids := make([]string, 0, reg.Len())
	for _, p := range reg.ListProviders() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"anthropic", "deepseek", "openai", "siliconflow"}, ids)

	anthropic, err := reg.Resolve("anthropic")
	require.NoError(t, err)
	assert.Equal(t, core.ShapeAnthropic, anthropic.Shape)
	assert.Equal(t, core.HeaderModeCustom, anthropic.HeaderMode)
	assert.Equal(t, "https://api.anthropic.com/v1", anthropic.BaseURL)
	assert.False(t, anthropic.Configured())

	deepseek, err := reg.Resolve("deepseek")
	require.NoError(t, err)
	assert.Equal(t, core.HeaderModeBearer, deepseek.HeaderMode)
	assert.Equal(t, "deepseek-chat", deepseek.DefaultModel)
}

func TestNewRegistry_Overrides(t *testing.T) {
	reg, err := NewRegistry(map[string]config.ProviderConfig{
		"openai": {APIKey: "sk-test", BaseURL: "http://localhost:8080/v1/"},
		"groq": {
			Name:    "Groq",
			Shape:   "openai",
			BaseURL: "https://api.groq.com/openai/v1",
			APIKey:  "gsk",
			Models:  []config.ModelConfig{{ID: "llama-3.1-8b-instant", Context: 131072}},
		},
		"claude-proxy": {Shape: "Anthropic", BaseURL: "http://proxy/v1", APIKey: "k"},
	})
	require.NoError(t, err)

	openai, err := reg.Resolve("openai")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1", openai.BaseURL)
	assert.Equal(t, "sk-test", openai.APIKey)
	assert.True(t, openai.Configured())
	assert.Len(t, openai.Models, 4, "builtin catalogue kept when no models configured")

	groq, err := reg.Resolve("groq")
	require.NoError(t, err)
	assert.Equal(t, core.HeaderModeBearer, groq.HeaderMode)
	assert.Equal(t, []core.ModelInfo{{ID: "llama-3.1-8b-instant", Name: "llama-3.1-8b-instant", ContextWindow: 131072}}, groq.Models)

	proxy, err := reg.Resolve("claude-proxy")
	require.NoError(t, err)
	assert.Equal(t, core.ShapeAnthropic, proxy.Shape)
	assert.Equal(t, core.HeaderModeCustom, proxy.HeaderMode)
}

func TestNewRegistry_InvalidEntries(t *testing.T) {
	tests := []struct {
		name    string
		cfg     map[string]config.ProviderConfig
		wantErr string
	}{
		{
			name:    "unsupported shape",
			cfg:     map[string]config.ProviderConfig{"x": {Shape: "gemini", BaseURL: "http://x"}},
			wantErr: `provider "x": unsupported shape "gemini"`,
		},
		{
			name:    "missing base url",
			cfg:     map[string]config.ProviderConfig{"local": {APIKey: "k"}},
			wantErr: `provider "local": base_url is required`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := NewRegistryFromProfiles()

	p, err := reg.Resolve("nonexistent")
	assert.Nil(t, p)
	require.Error(t, err)
	assert.True(t, core.IsErrorType(err, core.ErrorTypeUnknownProvider))
}

func TestRegistry_ListModels(t *testing.T) {
	reg := NewRegistryFromProfiles(
		core.ProviderProfile{ID: "bare", Shape: core.ShapeOpenAI, BaseURL: "http://bare"},
		core.ProviderProfile{
			ID:      "stocked",
			Shape:   core.ShapeOpenAI,
			BaseURL: "http://stocked",
			Models:  []core.ModelInfo{{ID: "m1", Name: "Model One", ContextWindow: 8192}},
		},
	)

	assert.Equal(t, []core.ModelInfo{}, reg.ListModels("bare"))
	assert.Equal(t, []core.ModelInfo{}, reg.ListModels("nonexistent"))
	assert.Equal(t, []core.ModelInfo{{ID: "m1", Name: "Model One", ContextWindow: 8192}}, reg.ListModels("stocked"))

	// the returned slice is a copy
	models := reg.ListModels("stocked")
	models[0].ID = "mutated"
	assert.Equal(t, "m1", reg.ListModels("stocked")[0].ID)
}

func TestRegistry_ProfilesAreCopies(t *testing.T) {
	reg := NewRegistryFromProfiles(core.ProviderProfile{
		ID:      "stocked",
		Shape:   core.ShapeOpenAI,
		BaseURL: "http://stocked",
		APIKey:  "sk-orig",
		Models:  []core.ModelInfo{{ID: "m1"}},
	})

	p, err := reg.Resolve("stocked")
	require.NoError(t, err)
	p.APIKey = "sk-mutated"
	p.Models[0].ID = "mutated"

	listed := reg.ListProviders()
	require.Len(t, listed, 1)
	listed[0].BaseURL = "http://mutated"
	listed[0].Models = append(listed[0].Models, core.ModelInfo{ID: "extra"})

	again, err := reg.Resolve("stocked")
	require.NoError(t, err)
	assert.Equal(t, "sk-orig", again.APIKey)
	assert.Equal(t, "http://stocked", again.BaseURL)
	assert.Equal(t, []core.ModelInfo{{ID: "m1"}}, again.Models)
}

func TestNewRegistryFromProfiles_DerivesHeaderMode(t *testing.T) {
	reg := NewRegistryFromProfiles(core.ProviderProfile{ID: "a", Shape: core.ShapeAnthropic, BaseURL: "http://a"})

	p, err := reg.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, core.HeaderModeCustom, p.HeaderMode)
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	reg, err := NewRegistry(nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = reg.Resolve("openai")
			_ = reg.ListProviders()
			_ = reg.ListModels("anthropic")
		}()
	}
	wg.Wait()
}
