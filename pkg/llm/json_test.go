package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "plain object",
			input:    `{"tables": ["users"]}`,
			expected: `{"tables": ["users"]}`,
		},
		{
			name:     "object with surrounding prose",
			input:    "Here is the selection:\n{\"tables\": [\"users\"]}\nDone.",
			expected: `{"tables": ["users"]}`,
		},
		{
			name:     "think tags stripped",
			input:    "<think>let me reason about this</think>{\"ok\": true}",
			expected: `{"ok": true}`,
		},
		{
			name:     "array response",
			input:    `["a", "b"]`,
			expected: `["a", "b"]`,
		},
		{
			name:     "nested braces inside strings",
			input:    `{"sql": "SELECT '{' FROM t"}`,
			expected: `{"sql": "SELECT '{' FROM t"}`,
		},
		{
			name:     "escaped quotes inside strings",
			input:    `{"msg": "he said \"hi\""}`,
			expected: `{"msg": "he said \"hi\""}`,
		},
		{
			name:    "no json at all",
			input:   "I cannot answer that.",
			wantErr: true,
		},
		{
			name:    "unbalanced object",
			input:   `{"tables": ["users"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	type selection struct {
		Tables []string `json:"tables"`
	}

	got, err := ParseJSONResponse[selection]("```json\n{\"tables\": [\"orders\", \"customers\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "customers"}, got.Tables)

	_, err = ParseJSONResponse[selection](`{"tables": "not-an-array"}`)
	require.Error(t, err)
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "sql fence",
			input:    "Here you go:\n```sql\nSELECT * FROM users\n```",
			expected: "SELECT * FROM users",
		},
		{
			name:     "bare fence",
			input:    "```\nSELECT 1\n```",
			expected: "SELECT 1",
		},
		{
			name:     "no fence",
			input:    "  SELECT count(*) FROM orders  ",
			expected: "SELECT count(*) FROM orders",
		},
		{
			name:     "think tags before sql",
			input:    "<think>joins needed</think>SELECT a FROM b",
			expected: "SELECT a FROM b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractSQL(tt.input))
		})
	}
}
