package genconfig

import (
	"github.com/bkyoung/llmsync/internal/domain"
)

// ResolveCredentials flattens resolved providers into one credential entry
// per (provider, interface) pair. Providers without an api_key contribute
// nothing, regardless of their interfaces. Interfaces are emitted in sorted
// order so the output artifact is stable across runs.
func ResolveCredentials(providers map[string]any) []domain.Credential {
	var credentials []domain.Credential

	for _, serviceName := range sortedNames(providers) {
		block, _ := providers[serviceName].(map[string]any)
		apiKey, _ := block["api_key"].(string)
		if apiKey == "" {
			continue
		}
		apiBase, _ := block["api_base"].(string)

		interfaces, _ := block["interfaces"].(map[string]any)
		for _, iface := range sortedNames(interfaces) {
			credentials = append(credentials, domain.Credential{
				ServiceName: serviceName,
				Provider:    iface,
				APIKey:      apiKey,
				APIBase:     apiBase,
			})
		}
	}

	return credentials
}

// ResolveModels flattens resolved providers into complete model registration
// payloads, one per (interface, model) pair of every provider carrying an
// api_key.
//
// Per registration: model_name is the override name when given, else the raw
// model id; model_info.base_model defaults to the resolved model_name;
// access_groups resolve model-level first, then provider-level, and are
// omitted when empty; litellm_params.model is "{interface}/{model-id}" and
// litellm_params.litellm_credential_name is "{service_name}-{interface}".
// Extra model_info and litellm_params fragments pass through untouched.
func ResolveModels(providers map[string]any) []domain.ModelRegistration {
	var models []domain.ModelRegistration

	for _, serviceName := range sortedNames(providers) {
		block, _ := providers[serviceName].(map[string]any)
		apiKey, _ := block["api_key"].(string)
		if apiKey == "" {
			continue
		}
		providerGroups, providerHasGroups := stringSlice(block["access_groups"])

		interfaces, _ := block["interfaces"].(map[string]any)
		for _, iface := range sortedNames(interfaces) {
			ifaceBlock, _ := interfaces[iface].(map[string]any)
			ifaceModels, _ := ifaceBlock["models"].(map[string]any)
			credentialName := serviceName + "-" + iface

			for _, modelID := range sortedNames(ifaceModels) {
				override, _ := ifaceModels[modelID].(map[string]any)
				models = append(models, buildRegistration(
					iface, modelID, credentialName, override,
					providerGroups, providerHasGroups,
				))
			}
		}
	}

	return models
}

func buildRegistration(iface, modelID, credentialName string, override map[string]any, providerGroups []string, providerHasGroups bool) domain.ModelRegistration {
	modelName, _ := override["model_name"].(string)
	if modelName == "" {
		modelName = modelID
	}

	infoFragment, _ := override["model_info"].(map[string]any)
	modelInfo := make(map[string]any, len(infoFragment)+2)
	for key, value := range infoFragment {
		modelInfo[key] = value
	}

	baseModel, _ := modelInfo["base_model"].(string)
	if baseModel == "" {
		modelInfo["base_model"] = modelName
	}

	// A model-level access_groups key, even an empty one, overrides the
	// provider default; empty resolved groups are omitted entirely.
	groups, hasGroups := stringSlice(override["access_groups"])
	if !hasGroups && providerHasGroups {
		groups = providerGroups
	}
	if len(groups) > 0 {
		modelInfo["access_groups"] = groups
	}

	paramsFragment, _ := override["litellm_params"].(map[string]any)
	litellmParams := make(map[string]any, len(paramsFragment)+2)
	for key, value := range paramsFragment {
		litellmParams[key] = value
	}
	litellmParams["model"] = iface + "/" + modelID
	litellmParams["litellm_credential_name"] = credentialName

	return domain.ModelRegistration{
		ModelName:     modelName,
		LitellmParams: litellmParams,
		ModelInfo:     modelInfo,
	}
}

// stringSlice converts a document value into a string slice. The second
// return reports whether the key was present at all, which is distinct from
// an empty list.
func stringSlice(value any) ([]string, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
