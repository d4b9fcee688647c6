package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataDocValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     MetadataDoc
		wantErr bool
	}{
		{
			name: "scalar kinds",
			doc: MetadataDoc{
				"type":     "note",
				"pinned":   true,
				"revision": 3,
				"score":    0.75,
			},
		},
		{
			name: "string list",
			doc:  MetadataDoc{"tags": []string{"tls", "certificate"}},
		},
		{
			name: "json decoded string array",
			doc:  MetadataDoc{"tags": []interface{}{"tls", "certificate"}},
		},
		{
			name:    "nested document rejected",
			doc:     MetadataDoc{"inner": map[string]interface{}{"a": 1}},
			wantErr: true,
		},
		{
			name:    "mixed array rejected",
			doc:     MetadataDoc{"tags": []interface{}{"ok", 42}},
			wantErr: true,
		},
		{
			name:    "empty key rejected",
			doc:     MetadataDoc{"": "value"},
			wantErr: true,
		},
		{
			name: "nil value allowed",
			doc:  MetadataDoc{"cleared": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetadataDocValidateKeyLimit(t *testing.T) {
	doc := make(MetadataDoc, maxMetadataKeys+1)
	for i := 0; i <= maxMetadataKeys; i++ {
		doc[string(rune('a'+i%26))+string(rune('0'+i/26))] = i
	}
	require.Greater(t, len(doc), maxMetadataKeys)
	assert.Error(t, doc.Validate())
}

func TestMetadataDocStringList(t *testing.T) {
	doc := MetadataDoc{
		"native":  []string{"a", "b"},
		"decoded": []interface{}{"c", "d"},
		"scalar":  "not-a-list",
	}

	assert.Equal(t, []string{"a", "b"}, doc.StringList("native"))
	assert.Equal(t, []string{"c", "d"}, doc.StringList("decoded"))
	assert.Nil(t, doc.StringList("scalar"))
	assert.Nil(t, doc.StringList("missing"))
}

func TestMetadataDocClone(t *testing.T) {
	doc := MetadataDoc{
		"type": "task",
		"tags": []string{"a"},
	}

	clone := doc.Clone()
	clone["type"] = "note"
	clone.StringList("tags")
	clone["tags"].([]string)[0] = "mutated"

	assert.Equal(t, "task", doc["type"])
	assert.Equal(t, []string{"a"}, doc.StringList("tags"))
}

func TestMemoryType(t *testing.T) {
	m := &Memory{Metadata: MetadataDoc{"type": MemoryTypeTask}}
	assert.Equal(t, MemoryTypeTask, m.Type())

	assert.Empty(t, (&Memory{}).Type())
	assert.Empty(t, (&Memory{Metadata: MetadataDoc{"type": 42}}).Type())
}
