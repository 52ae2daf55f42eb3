package perplexity

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"pplx-mcp/internal/domain"
)

// --- Perplexity API wire types ---

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID        string       `json:"id"`
	Model     string       `json:"model"`
	Object    string       `json:"object"`
	Created   int64        `json:"created"`
	Citations []string     `json:"citations"`
	Choices   []chatChoice `json:"choices"`
	Usage     chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int            `json:"index"`
	FinishReason string         `json:"finish_reason"`
	Message      domain.Message `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// responseSchema is the minimal shape a completion must have before it is
// decoded. Fields outside it are ignored. A null content or citations value
// means absent.
const responseSchema = `{
  "type": "object",
  "required": ["choices"],
  "properties": {
    "choices": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["message"],
        "properties": {
          "message": {
            "type": "object",
            "properties": {
              "content": {"type": ["string", "null"]}
            }
          }
        }
      }
    },
    "citations": {
      "type": ["array", "null"],
      "items": {"type": "string"}
    }
  }
}`

var (
	compiledResponseSchema *jsonschema.Schema
	compileOnce            sync.Once
	compileErr             error
)

func responseValidator() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledResponseSchema, compileErr = jsonschema.NewCompiler().Compile([]byte(responseSchema))
	})
	return compiledResponseSchema, compileErr
}

// decodeResponse checks body against responseSchema and decodes it.
func decodeResponse(body []byte) (*chatResponse, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	schema, err := responseValidator()
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}
	if result := schema.Validate(raw); !result.IsValid() {
		return nil, fmt.Errorf("unexpected response shape: %s", describeShapeErrors(result))
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

// describeShapeErrors lists the per-field failures of result as
// "path: message" pairs in path order.
func describeShapeErrors(result *jsonschema.EvaluationResult) string {
	detailed := result.DetailedErrors()
	if len(detailed) == 0 {
		return result.Error()
	}
	paths := slices.Sorted(maps.Keys(detailed))
	parts := make([]string, 0, len(paths))
	for _, path := range paths {
		label := path
		if label == "" {
			label = "/"
		}
		parts = append(parts, label+": "+detailed[path])
	}
	return strings.Join(parts, "; ")
}
