package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/forumops/forumctl/internal/core/envfile"
	"github.com/forumops/forumctl/internal/core/pipeline"
	"github.com/forumops/forumctl/internal/core/secrets"
)

// =============================================================================
// Configuration Materializer
// =============================================================================

// Materialize brings the configuration record at EnvFilePath into a complete,
// valid state. Absent record: the template is copied verbatim, then filled.
// Known-malformed keys are corrected in place, each correction logged.
// Secret fields still holding template filler get generated values; anything
// an operator set is never touched, so re-running is a no-op apart from
// corrections.
func (e *Engine) Materialize(_ context.Context) (pipeline.Outcome, string, error) {
	created, err := e.ensureEnvFile()
	if err != nil {
		return pipeline.OutcomeFatal, "configuration record could not be created",
			fmt.Errorf("%w: %v", ErrPrerequisiteMissing, err)
	}
	if created {
		e.logger.Info("configuration record created from template", "path", e.cfg.EnvFilePath)
	}

	data, err := os.ReadFile(e.cfg.EnvFilePath)
	if err != nil {
		return pipeline.OutcomeFatal, "configuration record unreadable",
			fmt.Errorf("%w: %v", ErrPrerequisiteMissing, err)
	}

	record := envfile.Parse(string(data))
	before := record.String()

	corrections := record.CorrectMalformedKeys()
	for _, c := range corrections {
		e.logger.Warn("corrected malformed configuration key", "from", c.From, "to", c.To)
	}

	generated, err := e.fillSecrets(record)
	if err != nil {
		return pipeline.OutcomeFatal, "secret generation failed",
			fmt.Errorf("%w: %v", ErrPrerequisiteMissing, err)
	}

	if after := record.String(); after != before {
		if err := writeFileSync(e.cfg.EnvFilePath, []byte(after), 0o600); err != nil {
			return pipeline.OutcomeFatal, "configuration record could not be written",
				fmt.Errorf("%w: %v", ErrPrerequisiteMissing, err)
		}
	}

	if len(corrections) > 0 {
		return pipeline.OutcomeWarning,
			fmt.Sprintf("corrected %d malformed configuration key(s)", len(corrections)), nil
	}
	if generated > 0 {
		e.logger.Info("generated secrets", "count", generated)
	}
	return pipeline.OutcomeSuccess, "", nil
}

// ensureEnvFile copies the template into place when no record exists yet.
// Returns whether a new record was created.
func (e *Engine) ensureEnvFile() (bool, error) {
	if _, err := os.Stat(e.cfg.EnvFilePath); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	template, err := os.ReadFile(e.cfg.EnvTemplatePath)
	if err != nil {
		return false, fmt.Errorf("read template %s: %w", e.cfg.EnvTemplatePath, err)
	}
	if err := writeFileSync(e.cfg.EnvFilePath, template, 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", e.cfg.EnvFilePath, err)
	}
	return true, nil
}

// fillSecrets generates values for secret-marked keys still holding template
// filler. Returns how many were generated.
func (e *Engine) fillSecrets(record *envfile.Record) (int, error) {
	generated := 0
	for _, key := range envfile.SecretKeys {
		value, present := record.Get(key)
		if present && !secrets.IsPlaceholder(value) {
			continue
		}
		token, err := e.gen.Token(secrets.DefaultTokenBytes)
		if err != nil {
			return generated, fmt.Errorf("generate %s: %w", key, err)
		}
		record.Set(key, token)
		generated++
		e.logger.Info("generated secret", "key", key)
	}
	return generated, nil
}

// writeFileSync writes data and fsyncs before close, so a crash cannot leave
// a half-written configuration record behind a successful-looking run.
func writeFileSync(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
