package analysis

// responseSchema is the JSON schema sent with strict structured-output
// requests. Optional timestamps are typed number|null because strict mode
// requires every property; Normalize strips the nulls afterwards.
var responseSchema = func() map[string]any {
	timestamp := map[string]any{"type": []string{"number", "null"}}
	str := map[string]any{"type": "string"}
	score := map[string]any{"type": "integer", "minimum": 0, "maximum": 100}

	stage := object(map[string]any{
		"present": map[string]any{"type": "boolean"},
		"quality": map[string]any{"type": "string", "enum": []string{"poor", "ok", "good", "excellent"}},
		"evidence": array(object(map[string]any{
			"quote":     str,
			"timestamp": timestamp,
		})),
		"notes": str,
	})

	stages := map[string]any{}
	for _, k := range StageKeys {
		stages[k] = stage
	}

	return object(map[string]any{
		"summary":         str,
		"generalFeedback": str,
		"scores": object(map[string]any{
			"complianceOverall": score,
			"clarity":           score,
			"empathy":           score,
			"professionalism":   score,
		}),
		"callTypePrediction": str,
		"stages":             object(stages),
		"salesInsights": array(object(map[string]any{
			"type":        str,
			"description": str,
			"timestamp":   timestamp,
		})),
		"missedOpportunities": array(object(map[string]any{
			"description":    str,
			"recommendation": str,
			"timestamp":      timestamp,
		})),
		"checklist": array(object(map[string]any{
			"id":        str,
			"label":     str,
			"passed":    map[string]any{"type": "boolean"},
			"evidence":  str,
			"timestamp": timestamp,
		})),
	})
}()

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func array(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}
