package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ResolveImageURL(t *testing.T) {
	const base = "http://localhost:5000"

	testCases := []struct {
		name      string
		imagePath string
		expected  string
	}{
		{
			name:      "absolute URL passes through untouched",
			imagePath: "https://cdn.example.com/p/peluche.jpg",
			expected:  "https://cdn.example.com/p/peluche.jpg",
		},
		{
			name:      "path already under the dataset prefix gets only the base",
			imagePath: "dataset/images/jouets/peluche_01.jpg",
			expected:  "http://localhost:5000/dataset/images/jouets/peluche_01.jpg",
		},
		{
			name:      "bare relative path gets base and prefix",
			imagePath: "jouets/peluche_01.jpg",
			expected:  "http://localhost:5000/dataset/images/jouets/peluche_01.jpg",
		},
		{
			name:      "empty path stays empty",
			imagePath: "",
			expected:  "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ResolveImageURL(base, tc.imagePath))
		})
	}
}

func Test_ResolveImageURL_TrailingSlashOnBase(t *testing.T) {
	assert.Equal(t,
		"http://localhost:5000/dataset/images/jouets/p.jpg",
		ResolveImageURL("http://localhost:5000/", "jouets/p.jpg"))
}
