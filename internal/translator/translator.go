// Package translator converts the uniform request envelope into the exact
// URL, headers and JSON body an upstream provider expects.
package translator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"chatgateway/internal/core"
)

const anthropicAPIVersion = "2023-06-01"

// Outbound is a fully built upstream request.
type Outbound struct {
	URL     string
	Headers http.Header
	Body    []byte
}

// dialect describes how one provider shape is addressed and encoded.
type dialect struct {
	endpoint  string
	buildBody func(env *core.RequestEnvelope) any
}

var dialects = map[core.Shape]dialect{
	core.ShapeOpenAI:    {endpoint: "/chat/completions", buildBody: openAIBody},
	core.ShapeAnthropic: {endpoint: "/messages", buildBody: anthropicBody},
}

var headerBuilders = map[core.HeaderMode]func(h http.Header, apiKey string){
	core.HeaderModeBearer: func(h http.Header, apiKey string) {
		h.Set("Authorization", "Bearer "+apiKey)
	},
	core.HeaderModeCustom: func(h http.Header, apiKey string) {
		h.Set("x-api-key", apiKey)
		h.Set("anthropic-version", anthropicAPIVersion)
	},
}

// Translate builds the upstream request for env against profile. The
// credential check runs first so nothing is built for an unusable profile.
// env.Model must already be resolved.
func Translate(env *core.RequestEnvelope, profile *core.ProviderProfile) (*Outbound, error) {
	if !profile.Configured() {
		return nil, core.NewMissingCredentialError(profile.ID)
	}

	d, ok := dialects[profile.Shape]
	if !ok {
		return nil, core.NewInvalidRequestError(fmt.Sprintf("provider %q has unsupported shape %q", profile.ID, profile.Shape), nil)
	}
	setHeaders, ok := headerBuilders[profile.HeaderMode]
	if !ok {
		return nil, core.NewInvalidRequestError(fmt.Sprintf("provider %q has unsupported header mode %q", profile.ID, profile.HeaderMode), nil)
	}

	body, err := json.Marshal(d.buildBody(env))
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to marshal request", err)
	}

	headers := make(http.Header)
	headers.Set("Content-Type", "application/json")
	setHeaders(headers, profile.APIKey)

	return &Outbound{
		URL:     strings.TrimRight(profile.BaseURL, "/") + d.endpoint,
		Headers: headers,
		Body:    body,
	}, nil
}
