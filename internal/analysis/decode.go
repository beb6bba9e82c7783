package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SchemaError means model output could not be coerced to Analysis, even after
// the repair attempt.
type SchemaError struct {
	First  error
	Repair error
}

func (e *SchemaError) Error() string {
	if e.Repair == nil {
		return fmt.Sprintf("analysis: output does not match schema: %v", e.First)
	}
	return fmt.Sprintf("analysis: output does not match schema after repair: %v (first attempt: %v)", e.Repair, e.First)
}

func (e *SchemaError) Unwrap() []error {
	var out []error
	if e.First != nil {
		out = append(out, e.First)
	}
	if e.Repair != nil {
		out = append(out, e.Repair)
	}
	return out
}

var (
	ErrMissingStage = errors.New("analysis: missing stage")
	ErrMissingScore = errors.New("analysis: missing score")
)

// Normalize rewrites model output so that "timestamp": null becomes an absent
// key at any depth. Other nulls are left for the validator to judge.
func Normalize(raw []byte) ([]byte, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("analysis: invalid json: %w", err)
	}
	return json.Marshal(dropNullKey(v, "timestamp"))
}

func dropNullKey(v any, key string) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if k == key && child == nil {
				delete(t, k)
				continue
			}
			t[k] = dropNullKey(child, key)
		}
	case []any:
		for i := range t {
			t[i] = dropNullKey(t[i], key)
		}
	}
	return v
}

// Decode normalizes raw model output, decodes it and checks it against the
// Analysis schema. All six stage keys must be present.
func Decode(raw []byte) (*Analysis, error) {
	norm, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	if err := requireStages(norm); err != nil {
		return nil, err
	}

	var a Analysis
	if err := json.Unmarshal(norm, &a); err != nil {
		return nil, fmt.Errorf("analysis: decode: %w", err)
	}
	if err := Validate(&a); err != nil {
		return nil, err
	}
	return &a, nil
}

// requireStages checks the keys that would otherwise decode to zero values:
// every score, every stage and each stage's present flag.
func requireStages(norm []byte) error {
	var shape struct {
		Scores map[string]json.RawMessage `json:"scores"`
		Stages map[string]json.RawMessage `json:"stages"`
	}
	if err := json.Unmarshal(norm, &shape); err != nil {
		return fmt.Errorf("analysis: decode: %w", err)
	}
	if shape.Scores == nil {
		return errors.New("analysis: scores missing")
	}
	var missingScores []string
	for _, k := range ScoreKeys {
		if !present(shape.Scores, k) {
			missingScores = append(missingScores, k)
		}
	}
	if len(missingScores) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingScore, strings.Join(missingScores, ", "))
	}

	var missing []string
	for _, k := range StageKeys {
		if !present(shape.Stages, k) {
			missing = append(missing, k)
			continue
		}
		var st map[string]json.RawMessage
		if err := json.Unmarshal(shape.Stages[k], &st); err != nil {
			return fmt.Errorf("analysis: decode: stages.%s: %w", k, err)
		}
		if !present(st, "present") {
			missing = append(missing, k+".present")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingStage, strings.Join(missing, ", "))
	}
	return nil
}

func present(m map[string]json.RawMessage, key string) bool {
	v, ok := m[key]
	return ok && string(v) != "null"
}

// Validate runs the struct-tag schema and flattens field errors into one
// readable message.
func Validate(a *Analysis) error {
	err := validate.Struct(a)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("analysis: invalid: %s", strings.Join(msgs, "; "))
}

// Sanitize prepares a validated result for persistence: nil lists become
// empty lists and free text is trimmed.
func Sanitize(a *Analysis) {
	if a == nil {
		return
	}
	a.Summary = strings.TrimSpace(a.Summary)
	a.GeneralFeedback = strings.TrimSpace(a.GeneralFeedback)
	a.CallTypePrediction = strings.TrimSpace(a.CallTypePrediction)
	if a.SalesInsights == nil {
		a.SalesInsights = []SalesInsight{}
	}
	if a.MissedOpportunities == nil {
		a.MissedOpportunities = []MissedOpportunity{}
	}
	if a.Checklist == nil {
		a.Checklist = []ChecklistItem{}
	}
	for _, k := range StageKeys {
		st, _ := a.Stages.ByKey(k)
		if st.Evidence == nil {
			st.Evidence = []Evidence{}
		}
		st.Notes = strings.TrimSpace(st.Notes)
	}
}

// Prune removes null members from a decoded JSON value at any depth.
func Prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if child == nil {
				delete(t, k)
				continue
			}
			t[k] = Prune(child)
		}
	case []any:
		out := t[:0]
		for _, child := range t {
			if child == nil {
				continue
			}
			out = append(out, Prune(child))
		}
		return out
	}
	return v
}

// Compact encodes a for storage with null members pruned.
func Compact(a *Analysis) ([]byte, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(Prune(v))
}
