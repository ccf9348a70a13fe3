package openapi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_embedded_document_is_valid(t *testing.T) {
	doc, err := Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "zenflow", doc.Info.Title)
	assert.NotNil(t, doc.Paths.Find("/process-instances/{processInstanceId}/terminate"))
	assert.NotNil(t, doc.Paths.Find("/external-tasks/fetch-and-lock"))
}

func Test_json_renders_paths(t *testing.T) {
	data, err := JSON(context.Background())
	require.NoError(t, err)

	var rendered map[string]any
	require.NoError(t, json.Unmarshal(data, &rendered))
	assert.Equal(t, "3.0.3", rendered["openapi"])
	assert.Contains(t, rendered["paths"], "/messages")
}
