package sync

import (
	"context"
	"encoding/json"
	"maps"
	"reflect"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bkyoung/llmsync/internal/domain"
)

// interfaceMeta describes how a credential for a given interface dialect is
// stored on the gateway.
type interfaceMeta struct {
	pathSuffix        string
	customLLMProvider string
}

var interfaceConfig = map[string]interfaceMeta{
	"openai":    {pathSuffix: "/v1", customLLMProvider: "OpenAI_Compatible"},
	"gemini":    {pathSuffix: "/v1beta", customLLMProvider: "Google_AI_Studio"},
	"anthropic": {pathSuffix: "", customLLMProvider: "Anthropic"},
}

// Options control reconciliation behavior for a run.
type Options struct {
	// Force replaces existing resources instead of skipping them.
	Force bool
	// Prune deletes remote credentials and models absent from the config.
	Prune bool
	// Workers bounds concurrent per-resource calls within a phase.
	Workers int
}

// Report aggregates the outcome of every synced resource type.
type Report struct {
	Credentials Counts
	Models      Counts
	Aliases     Counts
	Fallbacks   Counts
}

// Syncer reconciles a resolved configuration against the remote gateway.
// Phases are strictly sequential (credentials, models, aliases, fallbacks);
// within the credentials and models phases independent calls fan out on a
// bounded worker pool.
type Syncer struct {
	api    AdminAPI
	logger Logger
	opts   Options
	now    func() time.Time
}

// NewSyncer creates a reconciler.
func NewSyncer(api AdminAPI, logger Logger, opts Options) *Syncer {
	return &Syncer{
		api:    api,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// SetClock overrides the audit timestamp source (for testing).
func (s *Syncer) SetClock(now func() time.Time) {
	s.now = now
}

// SyncCredentials converges remote credentials toward the expected list.
// Existing entries are skipped unless force is set, in which case they are
// deleted and recreated. With prune, remote credentials not in the expected
// set are removed afterwards.
func (s *Syncer) SyncCredentials(ctx context.Context, credentials []domain.Credential) Counts {
	s.logger.Info("syncing credentials", map[string]any{"expected": len(credentials)})

	existing := s.snapshotCredentials(ctx)

	expected := make(map[string]bool, len(credentials))
	var counts tally
	var tasks []func()

	for _, cred := range credentials {
		meta, known := interfaceConfig[cred.Provider]
		if !known {
			s.logger.Warn("unknown provider interface, skipping credential",
				map[string]any{"provider": cred.Provider, "service": cred.ServiceName})
			continue
		}

		expected[cred.Name()] = true

		cred := cred
		tasks = append(tasks, func() {
			s.syncCredential(ctx, cred, meta, existing[cred.Name()], &counts)
		})
	}

	runBatch(s.opts.Workers, tasks)

	if s.opts.Prune {
		s.pruneCredentials(ctx, expected, &counts)
	}

	result := counts.snapshot()
	s.logger.Info("credentials sync complete", result.Fields())
	return result
}

func (s *Syncer) syncCredential(ctx context.Context, cred domain.Credential, meta interfaceMeta, exists bool, counts *tally) {
	name := cred.Name()
	action := "created"

	if exists {
		if !s.opts.Force {
			s.logger.Info("skipped credential", map[string]any{"credential": name})
			counts.skipped()
			return
		}
		if err := s.api.DeleteCredential(ctx, name); err != nil {
			s.logger.Error("failed to delete credential for replacement",
				map[string]any{"credential": name, "error": err.Error()})
			counts.failed()
			return
		}
		action = "replaced"
	}

	payload := domain.CredentialPayload{
		CredentialName: name,
		CredentialValues: map[string]any{
			"api_key":  cred.APIKey,
			"api_base": cred.APIBase + meta.pathSuffix,
		},
		CredentialInfo: map[string]any{
			"custom_llm_provider": meta.customLLMProvider,
		},
	}

	if err := s.api.CreateCredential(ctx, payload); err != nil {
		s.logger.Error("failed to create credential",
			map[string]any{"credential": name, "error": err.Error()})
		counts.failed()
		return
	}

	s.logger.Info(action+" credential", map[string]any{"credential": name})
	if action == "replaced" {
		counts.replaced()
	} else {
		counts.created()
	}
}

func (s *Syncer) pruneCredentials(ctx context.Context, expected map[string]bool, counts *tally) {
	s.logger.Info("pruning unused credentials", nil)

	names, err := s.api.ListCredentials(ctx)
	if err != nil {
		s.logger.Warn("failed to list credentials for pruning",
			map[string]any{"error": err.Error()})
		return
	}

	for _, name := range names {
		if expected[name] {
			continue
		}
		if err := s.api.DeleteCredential(ctx, name); err != nil {
			s.logger.Error("failed to delete credential",
				map[string]any{"credential": name, "error": err.Error()})
			counts.failed()
			continue
		}
		s.logger.Info("deleted credential", map[string]any{"credential": name})
		counts.deleted(1)
	}
}

// snapshotCredentials fetches remote credential names once for the phase. A
// fetch failure degrades to an empty snapshot: the phase then re-creates
// everything, which is safe under last-write-wins semantics.
func (s *Syncer) snapshotCredentials(ctx context.Context) map[string]bool {
	names, err := s.api.ListCredentials(ctx)
	if err != nil {
		s.logger.Warn("failed to list credentials, assuming none exist",
			map[string]any{"error": err.Error()})
		return map[string]bool{}
	}
	existing := make(map[string]bool, len(names))
	for _, name := range names {
		existing[name] = true
	}
	return existing
}

// SyncModels converges remote model registrations toward the expected list.
// The remote key (model_name, credential_name) may carry several ids from
// prior partial runs; force deletes all of them before creating one fresh
// registration and the surplus is reported as deleted duplicates.
func (s *Syncer) SyncModels(ctx context.Context, models []domain.ModelRegistration) Counts {
	s.logger.Info("syncing models", map[string]any{"expected": len(models)})

	actor := s.api.ResolveActor(ctx)
	s.logger.Info("resolved actor", map[string]any{"actor": actor})

	cache := s.snapshotModels(ctx)

	expected := make(map[domain.ModelKey]bool, len(models))
	var counts tally
	var tasks []func()

	for _, model := range models {
		expected[model.Key()] = true

		model := model
		tasks = append(tasks, func() {
			s.syncModel(ctx, model, actor, cache[model.Key()], &counts)
		})
	}

	runBatch(s.opts.Workers, tasks)

	if s.opts.Prune {
		s.pruneModels(ctx, expected, &counts)
	}

	result := counts.snapshot()
	s.logger.Info("models sync complete", result.Fields())
	return result
}

func (s *Syncer) syncModel(ctx context.Context, model domain.ModelRegistration, actor string, existingIDs []string, counts *tally) {
	key := model.Key()
	action := "created"

	if len(existingIDs) > 0 {
		if !s.opts.Force {
			s.logger.Info("skipped model",
				map[string]any{"model": key.ModelName, "credential": key.CredentialName})
			counts.skipped()
			return
		}
		for _, id := range existingIDs {
			if err := s.api.DeleteModel(ctx, id); err != nil {
				s.logger.Warn("failed to delete model registration",
					map[string]any{"model": key.ModelName, "id": id, "error": err.Error()})
			}
		}
		counts.deleted(len(existingIDs) - 1)
		action = "replaced"
	}

	payload := domain.ModelPayload{
		ModelName:     model.ModelName,
		LitellmParams: model.LitellmParams,
		ModelInfo:     s.stampAudit(model.ModelInfo, actor),
	}

	if err := s.api.CreateModel(ctx, payload); err != nil {
		s.logger.Error("failed to create model",
			map[string]any{"model": key.ModelName, "credential": key.CredentialName, "error": err.Error()})
		counts.failed()
		return
	}

	s.logger.Info(action+" model",
		map[string]any{"model": key.ModelName, "credential": key.CredentialName})
	if action == "replaced" {
		counts.replaced()
	} else {
		counts.created()
	}
}

// stampAudit copies model_info and adds actor/timestamp audit fields. Both
// created and updated stamps are written because every create call here is a
// true creation; replacements recreate the registration from scratch.
func (s *Syncer) stampAudit(modelInfo map[string]any, actor string) map[string]any {
	stamped := make(map[string]any, len(modelInfo)+4)
	for key, value := range modelInfo {
		stamped[key] = value
	}

	now := domain.AuditTimestamp(s.now())
	stamped["updated_at"] = now
	stamped["updated_by"] = actor
	stamped["created_at"] = now
	stamped["created_by"] = actor
	return stamped
}

func (s *Syncer) pruneModels(ctx context.Context, expected map[domain.ModelKey]bool, counts *tally) {
	s.logger.Info("pruning unused models", nil)

	remote, err := s.api.ListModels(ctx)
	if err != nil {
		s.logger.Warn("failed to list models for pruning",
			map[string]any{"error": err.Error()})
		return
	}

	for _, model := range remote {
		if expected[model.Key()] {
			continue
		}
		if err := s.api.DeleteModel(ctx, model.ID); err != nil {
			s.logger.Error("failed to delete model",
				map[string]any{"model": model.ModelName, "credential": model.CredentialName, "error": err.Error()})
			counts.failed()
			continue
		}
		s.logger.Info("deleted model",
			map[string]any{"model": model.ModelName, "credential": model.CredentialName})
		counts.deleted(1)
	}
}

// snapshotModels fetches remote registrations once for the phase, indexed by
// logical key. Duplicate ids under one key are kept: their count is the
// duplicate signal the force path cleans up.
func (s *Syncer) snapshotModels(ctx context.Context) map[domain.ModelKey][]string {
	remote, err := s.api.ListModels(ctx)
	if err != nil {
		s.logger.Warn("failed to list models, assuming none exist",
			map[string]any{"error": err.Error()})
		return map[domain.ModelKey][]string{}
	}

	cache := make(map[domain.ModelKey][]string)
	for _, model := range remote {
		cache[model.Key()] = append(cache[model.Key()], model.ID)
	}

	total := len(remote)
	duplicates := 0
	for _, ids := range cache {
		if len(ids) > 1 {
			duplicates++
		}
	}
	if duplicates > 0 {
		s.logger.Warn("found duplicate model registrations, force will clean them up",
			map[string]any{"duplicateKeys": duplicates})
	}
	s.logger.Info("fetched existing models",
		map[string]any{"total": total, "unique": len(cache)})

	return cache
}

// SyncAliases pushes the desired alias map into router settings. The push is
// skipped when the remote map already equals the desired one, unless force is
// set. The merge into router settings is a shallow key overwrite; unrelated
// settings are preserved. Alias targets are validated after a successful
// push; unresolved targets are warnings, never failures.
func (s *Syncer) SyncAliases(ctx context.Context, aliases map[string]string) Counts {
	s.logger.Info("syncing aliases", map[string]any{"expected": len(aliases)})

	var counts tally
	if len(aliases) == 0 {
		s.logger.Info("no aliases to update", nil)
		return counts.snapshot()
	}

	current := s.currentAliases(ctx)
	if !s.opts.Force && maps.Equal(current, aliases) {
		s.logger.Info("aliases already up-to-date, skipping", nil)
		counts.skipped()
		return counts.snapshot()
	}

	if err := s.api.UpdateRouterSettings(ctx, map[string]any{"model_group_alias": aliases}); err != nil {
		s.logger.Error("failed to update aliases", map[string]any{"error": err.Error()})
		counts.failed()
		return counts.snapshot()
	}
	s.logger.Info("updated model group aliases", map[string]any{"count": len(aliases)})
	counts.replaced()

	s.validateAliasTargets(ctx, aliases)

	result := counts.snapshot()
	s.logger.Info("aliases sync complete", result.Fields())
	return result
}

func (s *Syncer) validateAliasTargets(ctx context.Context, aliases map[string]string) {
	valid := s.remoteModelNames(ctx)
	for alias := range aliases {
		valid[alias] = true
	}
	for alias, target := range aliases {
		if !valid[target] {
			s.logger.Warn("alias points to a non-existent model",
				map[string]any{"alias": alias, "target": target})
		}
	}
}

// SyncFallbacks pushes the desired fallback rules into router settings, with
// the same skip-if-equal contract as aliases. Equality is ordered: reordering
// rules or targets counts as a change. Sources and targets are validated
// against remote models and current aliases after a successful push.
func (s *Syncer) SyncFallbacks(ctx context.Context, fallbacks []domain.FallbackRule) Counts {
	s.logger.Info("syncing fallbacks", map[string]any{"expected": len(fallbacks)})

	var counts tally
	if len(fallbacks) == 0 {
		s.logger.Info("no fallbacks to update", nil)
		return counts.snapshot()
	}

	current := s.currentFallbacks(ctx)
	if !s.opts.Force && reflect.DeepEqual(current, fallbacks) {
		s.logger.Info("fallbacks already up-to-date, skipping", nil)
		counts.skipped()
		return counts.snapshot()
	}

	if err := s.api.UpdateRouterSettings(ctx, map[string]any{"fallbacks": fallbacks}); err != nil {
		s.logger.Error("failed to update fallbacks", map[string]any{"error": err.Error()})
		counts.failed()
		return counts.snapshot()
	}
	s.logger.Info("updated fallback rules", map[string]any{"count": len(fallbacks)})
	counts.replaced()

	s.validateFallbackRefs(ctx, fallbacks)

	result := counts.snapshot()
	s.logger.Info("fallbacks sync complete", result.Fields())
	return result
}

func (s *Syncer) validateFallbackRefs(ctx context.Context, fallbacks []domain.FallbackRule) {
	valid := s.remoteModelNames(ctx)
	for alias := range s.currentAliases(ctx) {
		valid[alias] = true
	}

	for _, rule := range fallbacks {
		for source, targets := range rule {
			if !valid[source] {
				s.logger.Warn("fallback source is a non-existent model or alias",
					map[string]any{"source": source})
			}
			for _, target := range targets {
				if !valid[target] {
					s.logger.Warn("fallback target is a non-existent model or alias",
						map[string]any{"source": source, "target": target})
				}
			}
		}
	}
}

func (s *Syncer) remoteModelNames(ctx context.Context) map[string]bool {
	names := make(map[string]bool)
	remote, err := s.api.ListModels(ctx)
	if err != nil {
		s.logger.Warn("failed to list models for validation",
			map[string]any{"error": err.Error()})
		return names
	}
	for _, model := range remote {
		names[model.ModelName] = true
	}
	return names
}

// currentAliases reads the model_group_alias map from router settings,
// degrading to empty on any failure.
func (s *Syncer) currentAliases(ctx context.Context) map[string]string {
	aliases := make(map[string]string)
	raw, err := s.api.RouterSettings(ctx)
	if err != nil {
		s.logger.Warn("failed to read router settings",
			map[string]any{"error": err.Error()})
		return aliases
	}
	gjson.GetBytes(raw, "model_group_alias").ForEach(func(key, value gjson.Result) bool {
		aliases[key.String()] = value.String()
		return true
	})
	return aliases
}

// currentFallbacks reads the fallbacks list from router settings, degrading
// to nil on any failure.
func (s *Syncer) currentFallbacks(ctx context.Context) []domain.FallbackRule {
	raw, err := s.api.RouterSettings(ctx)
	if err != nil {
		s.logger.Warn("failed to read router settings",
			map[string]any{"error": err.Error()})
		return nil
	}

	rules := gjson.GetBytes(raw, "fallbacks")
	if !rules.IsArray() {
		return nil
	}

	var fallbacks []domain.FallbackRule
	if err := json.Unmarshal([]byte(rules.Raw), &fallbacks); err != nil {
		s.logger.Warn("failed to decode current fallbacks",
			map[string]any{"error": err.Error()})
		return nil
	}
	return fallbacks
}
