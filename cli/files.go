package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/services"
	"gopkg.in/yaml.v3"
)

// readDocument reads a JSON or YAML file ("-" for stdin) and returns it as JSON
func readDocument(path string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	if json.Valid(data) {
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s is neither JSON nor YAML: %w", path, err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s to JSON: %w", path, err)
	}
	return out, nil
}

// splitRules accepts a single rule, a list of rules, or an import batch
// ({"rules": [...]}) and returns the raw rule documents
func splitRules(doc []byte) ([]json.RawMessage, error) {
	switch doc[0] {
	case '[':
		var docs []json.RawMessage
		if err := json.Unmarshal(doc, &docs); err != nil {
			return nil, fmt.Errorf("invalid rule list: %w", err)
		}
		return docs, nil
	case '{':
		var batch struct {
			Rules []json.RawMessage `json:"rules"`
		}
		if err := json.Unmarshal(doc, &batch); err != nil {
			return nil, fmt.Errorf("invalid rule document: %w", err)
		}
		if batch.Rules != nil {
			return batch.Rules, nil
		}
		return []json.RawMessage{doc}, nil
	default:
		return nil, errors.New("a rule document must be an object or a list")
	}
}

// decodeRule checks one raw document against the rule schema and decodes it
func decodeRule(raw json.RawMessage, skipSchema bool) (models.RuleInput, error) {
	var in models.RuleInput
	if !skipSchema {
		msgs, err := models.ValidateDocument(raw)
		if err != nil {
			return in, services.NewValidationError(err.Error(), nil)
		}
		if len(msgs) > 0 {
			return in, services.NewValidationError("rule document does not match the schema", msgs)
		}
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, services.NewValidationError(fmt.Sprintf("invalid rule document: %v", err), nil)
	}
	return in, nil
}

// loadRules reads every rule in path
func loadRules(path string, stdin io.Reader, skipSchema bool) ([]models.RuleInput, error) {
	doc, err := readDocument(path, stdin)
	if err != nil {
		return nil, err
	}
	docs, err := splitRules(doc)
	if err != nil {
		return nil, err
	}

	out := make([]models.RuleInput, 0, len(docs))
	for i, raw := range docs {
		in, err := decodeRule(raw, skipSchema)
		if err != nil {
			if len(docs) > 1 {
				return nil, fmt.Errorf("rule %d: %w", i+1, err)
			}
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// loadBatch reads an import file. Documents that fail the local checks are
// returned as per-item failures instead of aborting the batch.
func loadBatch(path string, stdin io.Reader, skipSchema bool) ([]models.RuleInput, []models.ImportError, error) {
	doc, err := readDocument(path, stdin)
	if err != nil {
		return nil, nil, err
	}
	docs, err := splitRules(doc)
	if err != nil {
		return nil, nil, err
	}

	var (
		valid  = make([]models.RuleInput, 0, len(docs))
		failed []models.ImportError
	)
	for i, raw := range docs {
		in, err := decodeRule(raw, skipSchema)
		if err != nil {
			failed = append(failed, models.ImportError{
				RuleName: documentName(raw, i),
				Error:    localFailure(err),
			})
			continue
		}
		valid = append(valid, in)
	}
	return valid, failed, nil
}

// documentName is the rule name of raw, or its 1-based position when unnamed
func documentName(raw json.RawMessage, i int) string {
	var named struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(raw, &named) == nil && named.Name != "" {
		return named.Name
	}
	return fmt.Sprintf("rule %d", i+1)
}

func localFailure(err error) string {
	var de *services.DomainError
	if !errors.As(err, &de) || len(de.FieldErrors) == 0 {
		return err.Error()
	}
	msg := de.Message
	for _, f := range de.FieldErrors {
		msg += fmt.Sprintf("; %s: %s", f.Field, f.Message)
	}
	return msg
}

// loadPatch reads a partial update. Patches are not schema checked since
// every field is optional.
func loadPatch(path string, stdin io.Reader) (models.RulePatch, error) {
	var p models.RulePatch
	doc, err := readDocument(path, stdin)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(doc, &p); err != nil {
		return p, services.NewValidationError(fmt.Sprintf("invalid patch document: %v", err), nil)
	}
	return p, nil
}
