package sync

import "context"

// PurgeModels deletes every model registration on the gateway. When dryRun
// is set the victims are listed and nothing is deleted.
func (s *Syncer) PurgeModels(ctx context.Context, dryRun bool) (Counts, error) {
	var counts tally

	remote, err := s.api.ListModels(ctx)
	if err != nil {
		return counts.snapshot(), err
	}
	s.logger.Info("found model registrations", map[string]any{"total": len(remote)})

	if dryRun {
		for _, model := range remote {
			s.logger.Info("would delete model",
				map[string]any{"model": model.ModelName, "credential": model.CredentialName, "id": model.ID})
		}
		return counts.snapshot(), nil
	}

	var tasks []func()
	for _, model := range remote {
		model := model
		tasks = append(tasks, func() {
			if err := s.api.DeleteModel(ctx, model.ID); err != nil {
				s.logger.Error("failed to delete model",
					map[string]any{"model": model.ModelName, "id": model.ID, "error": err.Error()})
				counts.failed()
				return
			}
			s.logger.Info("deleted model",
				map[string]any{"model": model.ModelName, "credential": model.CredentialName})
			counts.deleted(1)
		})
	}
	runBatch(s.opts.Workers, tasks)

	result := counts.snapshot()
	s.logger.Info("purge complete", result.Fields())
	return result, nil
}
