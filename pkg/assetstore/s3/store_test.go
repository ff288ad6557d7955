package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid minimal", Config{Bucket: "b"}, false},
		{"missing bucket", Config{}, true},
		{"key without secret", Config{Bucket: "b", AccessKeyID: "id"}, true},
		{"secret without key", Config{Bucket: "b", SecretAccessKey: "s"}, true},
		{"both credentials", Config{Bucket: "b", AccessKeyID: "id", SecretAccessKey: "s"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		key      string
		expected string
	}{
		{
			"aws virtual hosted",
			Config{Bucket: "songs", Region: "eu-west-1"},
			"latest/My Song.mp3",
			"https://songs.s3.eu-west-1.amazonaws.com/latest/My%20Song.mp3",
		},
		{
			"aws default region",
			Config{Bucket: "songs"},
			"a.mp3",
			"https://songs.s3.us-east-1.amazonaws.com/a.mp3",
		},
		{
			"custom endpoint",
			Config{Bucket: "songs", Endpoint: "http://localhost:9000"},
			"latest/a.mp3",
			"http://localhost:9000/songs/latest/a.mp3",
		},
		{
			"public base url",
			Config{Bucket: "songs", PublicBaseURL: "https://cdn.example.com/"},
			"latest/a.mp3",
			"https://cdn.example.com/latest/a.mp3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Store{cfg: tt.cfg}
			assert.Equal(t, tt.expected, s.publicURL(tt.key))
		})
	}
}

func TestPrefix(t *testing.T) {
	s := &Store{}
	assert.Equal(t, "latest/", s.prefix("latest"))
	assert.Equal(t, "", s.prefix(""))
}
