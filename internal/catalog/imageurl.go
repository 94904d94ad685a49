package catalog

import "strings"

// datasetImagesPrefix is the path under which the backend serves catalog
// images. Stored image paths come in three shapes: a full URL, a path already
// carrying this prefix, or a bare relative path like "jouets/peluche_01.jpg".
const datasetImagesPrefix = "dataset/images/"

// ResolveImageURL applies the uniform three-way image resolution rule:
// absolute URLs pass through untouched, prefixed paths get only the base URL,
// bare paths get the base URL and the dataset prefix.
func ResolveImageURL(baseURL, imagePath string) string {
	if imagePath == "" {
		return ""
	}
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(imagePath, "http"):
		return imagePath
	case strings.HasPrefix(imagePath, datasetImagesPrefix):
		return base + "/" + imagePath
	default:
		return base + "/" + datasetImagesPrefix + imagePath
	}
}

// ImageURL resolves an image path against the client's backend base URL.
func (c *Client) ImageURL(imagePath string) string {
	return ResolveImageURL(c.baseURL, imagePath)
}
