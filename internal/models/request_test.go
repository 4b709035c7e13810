package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTestMode(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"true", true},
		{"TRUE", true},
		{"True", true},
		{"", false},
		{"false", false},
		{"1", false},
		{"yes", false},
		{" true", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTestMode(tt.value))
		})
	}
}

func TestVerifyRequest_Decode(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		var req VerifyRequest
		require.NoError(t, json.Unmarshal([]byte(`{"captcha":"ABC123"}`), &req))
		require.NotNil(t, req.Captcha)
		assert.Equal(t, "ABC123", *req.Captcha)
	})

	t.Run("missing field", func(t *testing.T) {
		var req VerifyRequest
		require.NoError(t, json.Unmarshal([]byte(`{}`), &req))
		assert.Nil(t, req.Captcha)
	})

	t.Run("explicit null", func(t *testing.T) {
		var req VerifyRequest
		require.NoError(t, json.Unmarshal([]byte(`{"captcha":null}`), &req))
		assert.Nil(t, req.Captcha)
	})

	t.Run("empty string", func(t *testing.T) {
		var req VerifyRequest
		require.NoError(t, json.Unmarshal([]byte(`{"captcha":""}`), &req))
		require.NotNil(t, req.Captcha)
		assert.Empty(t, *req.Captcha)
	})
}
