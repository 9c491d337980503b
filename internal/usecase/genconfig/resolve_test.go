package genconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/llmsync/internal/usecase/genconfig"
)

func testProviders() map[string]any {
	return map[string]any{
		"zai": map[string]any{
			"api_base":      "https://api.z.ai",
			"api_key":       "sk-zai",
			"access_groups": []any{"General"},
			"interfaces": map[string]any{
				"anthropic": map[string]any{
					"models": map[string]any{
						"glm-4.6": map[string]any{},
					},
				},
				"openai": map[string]any{
					"models": map[string]any{
						"glm-4.6": map[string]any{
							"model_name": "glm-4.6-openai",
						},
					},
				},
			},
		},
		"keyless": map[string]any{
			"api_base": "https://nokey.example",
			"interfaces": map[string]any{
				"openai": map[string]any{
					"models": map[string]any{"m": map[string]any{}},
				},
			},
		},
	}
}

func TestResolveCredentialsOnePerInterface(t *testing.T) {
	credentials := genconfig.ResolveCredentials(testProviders())

	require.Len(t, credentials, 2)
	assert.Equal(t, "zai-anthropic", credentials[0].Name())
	assert.Equal(t, "zai-openai", credentials[1].Name())
	assert.Equal(t, "sk-zai", credentials[0].APIKey)
	assert.Equal(t, "https://api.z.ai", credentials[0].APIBase)
}

func TestResolveCredentialsExcludesKeylessProviders(t *testing.T) {
	credentials := genconfig.ResolveCredentials(testProviders())

	for _, cred := range credentials {
		assert.NotEqual(t, "keyless", cred.ServiceName)
	}
}

func TestResolveModelsBuildsCompleteRegistrations(t *testing.T) {
	models := genconfig.ResolveModels(testProviders())

	require.Len(t, models, 2)

	anthropicModel := models[0]
	assert.Equal(t, "glm-4.6", anthropicModel.ModelName)
	assert.Equal(t, "anthropic/glm-4.6", anthropicModel.LitellmParams["model"])
	assert.Equal(t, "zai-anthropic", anthropicModel.LitellmParams["litellm_credential_name"])
	assert.Equal(t, "glm-4.6", anthropicModel.ModelInfo["base_model"])
	assert.Equal(t, []string{"General"}, anthropicModel.ModelInfo["access_groups"])

	openaiModel := models[1]
	assert.Equal(t, "glm-4.6-openai", openaiModel.ModelName)
	assert.Equal(t, "openai/glm-4.6", openaiModel.LitellmParams["model"])
	assert.Equal(t, "glm-4.6-openai", openaiModel.ModelInfo["base_model"])
}

func TestResolveModelsExcludesKeylessProviders(t *testing.T) {
	models := genconfig.ResolveModels(testProviders())

	for _, model := range models {
		assert.NotContains(t, model.ModelName, "keyless")
	}
}

func TestResolveModelsModelLevelAccessGroupsWin(t *testing.T) {
	providers := map[string]any{
		"svc": map[string]any{
			"api_key":       "sk",
			"access_groups": []any{"General"},
			"interfaces": map[string]any{
				"openai": map[string]any{
					"models": map[string]any{
						"restricted": map[string]any{
							"access_groups": []any{"Admins"},
						},
						"hidden": map[string]any{
							// Present but empty: suppresses the provider default.
							"access_groups": []any{},
						},
						"inherits": map[string]any{},
					},
				},
			},
		},
	}

	models := genconfig.ResolveModels(providers)
	require.Len(t, models, 3)

	byName := make(map[string]map[string]any)
	for _, model := range models {
		byName[model.ModelName] = model.ModelInfo
	}

	assert.Equal(t, []string{"Admins"}, byName["restricted"]["access_groups"])
	assert.NotContains(t, byName["hidden"], "access_groups")
	assert.Equal(t, []string{"General"}, byName["inherits"]["access_groups"])
}

func TestResolveModelsKeepsExplicitBaseModel(t *testing.T) {
	providers := map[string]any{
		"svc": map[string]any{
			"api_key": "sk",
			"interfaces": map[string]any{
				"gemini": map[string]any{
					"models": map[string]any{
						"flash": map[string]any{
							"model_info": map[string]any{
								"base_model": "gemini-2.0-flash",
								"mode":       "chat",
							},
						},
					},
				},
			},
		},
	}

	models := genconfig.ResolveModels(providers)
	require.Len(t, models, 1)
	assert.Equal(t, "gemini-2.0-flash", models[0].ModelInfo["base_model"])
	assert.Equal(t, "chat", models[0].ModelInfo["mode"])
}

func TestResolveModelsPassesThroughParamFragments(t *testing.T) {
	providers := map[string]any{
		"svc": map[string]any{
			"api_key": "sk",
			"interfaces": map[string]any{
				"openai": map[string]any{
					"models": map[string]any{
						"slow": map[string]any{
							"litellm_params": map[string]any{
								"timeout": 600,
							},
						},
					},
				},
			},
		},
	}

	models := genconfig.ResolveModels(providers)
	require.Len(t, models, 1)
	assert.Equal(t, 600, models[0].LitellmParams["timeout"])
	assert.Equal(t, "openai/slow", models[0].LitellmParams["model"])
}
