package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeURL(t *testing.T) {
	v := New()

	valid := []string{
		"https://example.com/watch?v=abc123",
		"http://media.example.org/playlist",
		"https://8.8.8.8/video",
	}
	for _, u := range valid {
		assert.NoError(t, v.Var(u, "safe_url"), u)
	}

	invalid := []string{
		"ftp://example.com/file",
		"file:///etc/passwd",
		"https://localhost/video",
		"http://127.0.0.1:8080/admin",
		"http://[::1]/video",
		"http://10.0.0.5/internal",
		"http://192.168.1.1/router",
		"http://169.254.169.254/latest/meta-data",
		"not a url",
		"https://",
	}
	for _, u := range invalid {
		assert.Error(t, v.Var(u, "safe_url"), u)
	}
}
