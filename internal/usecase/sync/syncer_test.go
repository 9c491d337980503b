package sync_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/llmsync/internal/adapter/observability"
	"github.com/bkyoung/llmsync/internal/domain"
	"github.com/bkyoung/llmsync/internal/usecase/sync"
)

// fakeAPI is an in-memory gateway used to exercise the reconciler.
type fakeAPI struct {
	mu     stdsync.Mutex
	creds  map[string]domain.CredentialPayload
	models map[string]domain.RemoteModel
	router map[string]any
	nextID int

	listCredsErr   error
	listModelsErr  error
	createCredErr  error
	createModelErr error
	routerErr      error

	createdModels []domain.ModelPayload
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		creds:  map[string]domain.CredentialPayload{},
		models: map[string]domain.RemoteModel{},
		router: map[string]any{},
	}
}

func (f *fakeAPI) ListCredentials(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listCredsErr != nil {
		return nil, f.listCredsErr
	}
	var names []string
	for name := range f.creds {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeAPI) CreateCredential(ctx context.Context, payload domain.CredentialPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createCredErr != nil {
		return f.createCredErr
	}
	f.creds[payload.CredentialName] = payload
	return nil
}

func (f *fakeAPI) DeleteCredential(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds, name)
	return nil
}

func (f *fakeAPI) ListModels(ctx context.Context) ([]domain.RemoteModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listModelsErr != nil {
		return nil, f.listModelsErr
	}
	var models []domain.RemoteModel
	for _, model := range f.models {
		models = append(models, model)
	}
	return models, nil
}

func (f *fakeAPI) CreateModel(ctx context.Context, payload domain.ModelPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createModelErr != nil {
		return f.createModelErr
	}
	f.nextID++
	id := fmt.Sprintf("id-%d", f.nextID)
	credName, _ := payload.LitellmParams["litellm_credential_name"].(string)
	f.models[id] = domain.RemoteModel{
		ModelName:      payload.ModelName,
		CredentialName: credName,
		ID:             id,
		LitellmParams:  payload.LitellmParams,
		ModelInfo:      payload.ModelInfo,
	}
	f.createdModels = append(f.createdModels, payload)
	return nil
}

func (f *fakeAPI) DeleteModel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.models, id)
	return nil
}

func (f *fakeAPI) RouterSettings(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routerErr != nil {
		return nil, f.routerErr
	}
	return json.Marshal(f.router)
}

func (f *fakeAPI) UpdateRouterSettings(ctx context.Context, updates map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routerErr != nil {
		return f.routerErr
	}
	// Normalize through JSON so stored values compare like wire values.
	data, err := json.Marshal(updates)
	if err != nil {
		return err
	}
	var normalized map[string]any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return err
	}
	for key, value := range normalized {
		f.router[key] = value
	}
	return nil
}

func (f *fakeAPI) ResolveActor(ctx context.Context) string {
	return "test-actor"
}

func (f *fakeAPI) seedModel(id, modelName, credentialName string) {
	f.models[id] = domain.RemoteModel{
		ModelName:      modelName,
		CredentialName: credentialName,
		ID:             id,
		LitellmParams:  map[string]any{"litellm_credential_name": credentialName},
		ModelInfo:      map[string]any{"id": id},
	}
}

func newSyncer(api *fakeAPI, opts sync.Options) *sync.Syncer {
	s := sync.NewSyncer(api, observability.NopLogger{}, opts)
	s.SetClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 123_000_000, time.UTC)
	})
	return s
}

func testCredential() domain.Credential {
	return domain.Credential{
		ServiceName: "zai",
		Provider:    "openai",
		APIKey:      "sk-zai",
		APIBase:     "https://api.z.ai",
	}
}

func testModel(name string) domain.ModelRegistration {
	return domain.ModelRegistration{
		ModelName: name,
		LitellmParams: map[string]any{
			"model":                   "openai/" + name,
			"litellm_credential_name": "zai-openai",
		},
		ModelInfo: map[string]any{"base_model": name},
	}
}

func TestSyncCredentialsCreatesMissing(t *testing.T) {
	api := newFakeAPI()
	s := newSyncer(api, sync.Options{})

	counts := s.SyncCredentials(context.Background(), []domain.Credential{testCredential()})

	assert.Equal(t, 1, counts.Created)
	require.Contains(t, api.creds, "zai-openai")
	payload := api.creds["zai-openai"]
	assert.Equal(t, "https://api.z.ai/v1", payload.CredentialValues["api_base"])
	assert.Equal(t, "OpenAI_Compatible", payload.CredentialInfo["custom_llm_provider"])
}

func TestSyncCredentialsAnthropicHasNoPathSuffix(t *testing.T) {
	api := newFakeAPI()
	s := newSyncer(api, sync.Options{})

	cred := testCredential()
	cred.Provider = "anthropic"
	s.SyncCredentials(context.Background(), []domain.Credential{cred})

	payload := api.creds["zai-anthropic"]
	assert.Equal(t, "https://api.z.ai", payload.CredentialValues["api_base"])
	assert.Equal(t, "Anthropic", payload.CredentialInfo["custom_llm_provider"])
}

func TestSyncCredentialsSkipsExisting(t *testing.T) {
	api := newFakeAPI()
	api.creds["zai-openai"] = domain.CredentialPayload{CredentialName: "zai-openai"}
	s := newSyncer(api, sync.Options{})

	counts := s.SyncCredentials(context.Background(), []domain.Credential{testCredential()})

	assert.Equal(t, 1, counts.Skipped)
	assert.Equal(t, 0, counts.Created)
}

func TestSyncCredentialsForceReplaces(t *testing.T) {
	api := newFakeAPI()
	api.creds["zai-openai"] = domain.CredentialPayload{CredentialName: "zai-openai"}
	s := newSyncer(api, sync.Options{Force: true})

	counts := s.SyncCredentials(context.Background(), []domain.Credential{testCredential()})

	assert.Equal(t, 1, counts.Replaced)
	assert.Equal(t, "sk-zai", api.creds["zai-openai"].CredentialValues["api_key"])
}

func TestSyncCredentialsSkipsUnknownInterface(t *testing.T) {
	api := newFakeAPI()
	s := newSyncer(api, sync.Options{})

	cred := testCredential()
	cred.Provider = "bedrock"
	counts := s.SyncCredentials(context.Background(), []domain.Credential{cred})

	assert.Equal(t, sync.Counts{}, counts)
	assert.Empty(t, api.creds)
}

func TestSyncCredentialsPruneDeletesUnexpected(t *testing.T) {
	api := newFakeAPI()
	api.creds["stale-openai"] = domain.CredentialPayload{CredentialName: "stale-openai"}
	s := newSyncer(api, sync.Options{Prune: true})

	counts := s.SyncCredentials(context.Background(), []domain.Credential{testCredential()})

	assert.Equal(t, 1, counts.Created)
	assert.Equal(t, 1, counts.Deleted)
	assert.NotContains(t, api.creds, "stale-openai")
	assert.Contains(t, api.creds, "zai-openai")
}

func TestSyncCredentialsListFailureDegradesToCreate(t *testing.T) {
	api := newFakeAPI()
	api.listCredsErr = errors.New("boom")
	s := newSyncer(api, sync.Options{})

	counts := s.SyncCredentials(context.Background(), []domain.Credential{testCredential()})

	assert.Equal(t, 1, counts.Created)
}

func TestSyncModelsCreatesAndStampsAudit(t *testing.T) {
	api := newFakeAPI()
	s := newSyncer(api, sync.Options{})

	counts := s.SyncModels(context.Background(), []domain.ModelRegistration{testModel("glm-4.6")})

	assert.Equal(t, 1, counts.Created)
	require.Len(t, api.createdModels, 1)
	info := api.createdModels[0].ModelInfo
	assert.Equal(t, "2025-06-01T12:00:00.123Z", info["created_at"])
	assert.Equal(t, "test-actor", info["created_by"])
	assert.Equal(t, "2025-06-01T12:00:00.123Z", info["updated_at"])
	assert.Equal(t, "test-actor", info["updated_by"])
}

func TestSyncModelsSecondRunSkips(t *testing.T) {
	api := newFakeAPI()
	s := newSyncer(api, sync.Options{})
	models := []domain.ModelRegistration{testModel("glm-4.6")}

	first := s.SyncModels(context.Background(), models)
	second := s.SyncModels(context.Background(), models)

	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Created)
	assert.Len(t, api.models, 1)
}

func TestSyncModelsForceCollapsesDuplicates(t *testing.T) {
	api := newFakeAPI()
	api.seedModel("dup-1", "glm-4.6", "zai-openai")
	api.seedModel("dup-2", "glm-4.6", "zai-openai")
	api.seedModel("dup-3", "glm-4.6", "zai-openai")
	s := newSyncer(api, sync.Options{Force: true})

	counts := s.SyncModels(context.Background(), []domain.ModelRegistration{testModel("glm-4.6")})

	assert.Equal(t, 1, counts.Replaced)
	assert.Equal(t, 2, counts.Deleted)
	assert.Len(t, api.models, 1)
}

func TestSyncModelsPruneDeletesUnexpected(t *testing.T) {
	api := newFakeAPI()
	api.seedModel("stale-1", "old-model", "zai-openai")
	s := newSyncer(api, sync.Options{Prune: true})

	counts := s.SyncModels(context.Background(), []domain.ModelRegistration{testModel("glm-4.6")})

	assert.Equal(t, 1, counts.Created)
	assert.Equal(t, 1, counts.Deleted)
	for _, model := range api.models {
		assert.Equal(t, "glm-4.6", model.ModelName)
	}
}

func TestSyncModelsWithoutPruneLeavesStrays(t *testing.T) {
	api := newFakeAPI()
	api.seedModel("stale-1", "old-model", "zai-openai")
	s := newSyncer(api, sync.Options{})

	counts := s.SyncModels(context.Background(), []domain.ModelRegistration{testModel("glm-4.6")})

	assert.Equal(t, 0, counts.Deleted)
	assert.Len(t, api.models, 2)
}

func TestSyncModelsSameNameDifferentCredentialCoexist(t *testing.T) {
	api := newFakeAPI()
	api.seedModel("other-1", "glm-4.6", "other-openai")
	s := newSyncer(api, sync.Options{})

	counts := s.SyncModels(context.Background(), []domain.ModelRegistration{testModel("glm-4.6")})

	// Identity is the (model_name, credential_name) pair, not the name alone.
	assert.Equal(t, 1, counts.Created)
	assert.Len(t, api.models, 2)
}

func TestSyncModelsCreateFailureCounts(t *testing.T) {
	api := newFakeAPI()
	api.createModelErr = errors.New("boom")
	s := newSyncer(api, sync.Options{})

	counts := s.SyncModels(context.Background(), []domain.ModelRegistration{testModel("glm-4.6")})

	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, sync.StatusFailed, counts.Status())
}

func TestSyncAliasesSkipsWhenEqual(t *testing.T) {
	api := newFakeAPI()
	api.router["model_group_alias"] = map[string]any{"best": "glm-4.6"}
	s := newSyncer(api, sync.Options{})

	counts := s.SyncAliases(context.Background(), map[string]string{"best": "glm-4.6"})

	assert.Equal(t, 1, counts.Skipped)
	assert.Equal(t, 0, counts.Replaced)
}

func TestSyncAliasesPushesWhenDifferent(t *testing.T) {
	api := newFakeAPI()
	api.router["model_group_alias"] = map[string]any{"best": "old-model"}
	api.router["unrelated"] = "keep-me"
	s := newSyncer(api, sync.Options{})

	counts := s.SyncAliases(context.Background(), map[string]string{"best": "glm-4.6"})

	assert.Equal(t, 1, counts.Replaced)
	assert.Equal(t, map[string]any{"best": "glm-4.6"}, api.router["model_group_alias"])
	assert.Equal(t, "keep-me", api.router["unrelated"])
}

func TestSyncAliasesForcePushesWhenEqual(t *testing.T) {
	api := newFakeAPI()
	api.router["model_group_alias"] = map[string]any{"best": "glm-4.6"}
	s := newSyncer(api, sync.Options{Force: true})

	counts := s.SyncAliases(context.Background(), map[string]string{"best": "glm-4.6"})

	assert.Equal(t, 1, counts.Replaced)
}

func TestSyncAliasesEmptyIsNoOp(t *testing.T) {
	api := newFakeAPI()
	s := newSyncer(api, sync.Options{})

	counts := s.SyncAliases(context.Background(), nil)

	assert.Equal(t, sync.Counts{}, counts)
}

func TestSyncAliasesValidationNeverBlocks(t *testing.T) {
	api := newFakeAPI()
	s := newSyncer(api, sync.Options{})

	// Target does not exist remotely; the push must still succeed.
	counts := s.SyncAliases(context.Background(), map[string]string{"best": "no-such-model"})

	assert.Equal(t, 1, counts.Replaced)
	assert.Equal(t, 0, counts.Failed)
}

func TestSyncFallbacksSkipsWhenEqual(t *testing.T) {
	api := newFakeAPI()
	api.router["fallbacks"] = []any{map[string]any{"glm-4.6": []any{"claude-sonnet"}}}
	s := newSyncer(api, sync.Options{})

	counts := s.SyncFallbacks(context.Background(), []domain.FallbackRule{
		{"glm-4.6": {"claude-sonnet"}},
	})

	assert.Equal(t, 1, counts.Skipped)
}

func TestSyncFallbacksReorderedTargetsArePushed(t *testing.T) {
	api := newFakeAPI()
	api.router["fallbacks"] = []any{map[string]any{"glm-4.6": []any{"a", "b"}}}
	s := newSyncer(api, sync.Options{})

	counts := s.SyncFallbacks(context.Background(), []domain.FallbackRule{
		{"glm-4.6": {"b", "a"}},
	})

	assert.Equal(t, 1, counts.Replaced)
}

func TestSyncFallbacksRouterFailureCounts(t *testing.T) {
	api := newFakeAPI()
	api.routerErr = errors.New("boom")
	s := newSyncer(api, sync.Options{})

	counts := s.SyncFallbacks(context.Background(), []domain.FallbackRule{
		{"glm-4.6": {"claude-sonnet"}},
	})

	assert.Equal(t, 1, counts.Failed)
}

func TestPurgeModelsDeletesEverything(t *testing.T) {
	api := newFakeAPI()
	api.seedModel("id-1", "a", "c1")
	api.seedModel("id-2", "b", "c2")
	s := newSyncer(api, sync.Options{})

	counts, err := s.PurgeModels(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, 2, counts.Deleted)
	assert.Empty(t, api.models)
}

func TestPurgeModelsDryRunDeletesNothing(t *testing.T) {
	api := newFakeAPI()
	api.seedModel("id-1", "a", "c1")
	s := newSyncer(api, sync.Options{})

	counts, err := s.PurgeModels(context.Background(), true)

	require.NoError(t, err)
	assert.Equal(t, 0, counts.Deleted)
	assert.Len(t, api.models, 1)
}

func TestCountsStatus(t *testing.T) {
	assert.Equal(t, sync.StatusSuccess, sync.Counts{Created: 2}.Status())
	assert.Equal(t, sync.StatusSuccess, sync.Counts{Skipped: 5}.Status())
	assert.Equal(t, sync.StatusPartial, sync.Counts{Created: 1, Failed: 1}.Status())
	assert.Equal(t, sync.StatusFailed, sync.Counts{Failed: 3}.Status())
}
