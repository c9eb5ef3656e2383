package events

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name    string
		hs      Handshake
		want    int64
		wantErr bool
	}{
		{
			name: "auth payload number",
			hs:   Handshake{Auth: map[string]interface{}{"userId": float64(42)}},
			want: 42,
		},
		{
			name: "auth payload string",
			hs:   Handshake{Auth: map[string]interface{}{"userId": "42"}},
			want: 42,
		},
		{
			name: "auth payload json number",
			hs:   Handshake{Auth: map[string]interface{}{"userId": json.Number("17")}},
			want: 17,
		},
		{
			name: "query parameter",
			hs:   Handshake{Query: url.Values{"userId": {"7"}}},
			want: 7,
		},
		{
			name: "auth takes precedence over query",
			hs: Handshake{
				Auth:  map[string]interface{}{"userId": int64(1)},
				Query: url.Values{"userId": {"2"}},
			},
			want: 1,
		},
		{
			name: "zero and negative ids are accepted",
			hs:   Handshake{Query: url.Values{"userId": {"-3"}}},
			want: -3,
		},
		{
			name:    "missing everywhere",
			hs:      Handshake{},
			wantErr: true,
		},
		{
			name:    "empty query value",
			hs:      Handshake{Query: url.Values{"userId": {""}}},
			wantErr: true,
		},
		{
			name:    "non-numeric string",
			hs:      Handshake{Query: url.Values{"userId": {"alice"}}},
			wantErr: true,
		},
		{
			name:    "fractional number",
			hs:      Handshake{Auth: map[string]interface{}{"userId": 4.5}},
			wantErr: true,
		},
		{
			name:    "unsupported type",
			hs:      Handshake{Auth: map[string]interface{}{"userId": true}},
			wantErr: true,
		},
		{
			name:    "invalid auth does not fall back to query",
			hs:      Handshake{Auth: map[string]interface{}{"userId": "x"}, Query: url.Values{"userId": {"5"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Authenticate(tt.hs)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnauthenticated))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
