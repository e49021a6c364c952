package scrape

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"
)

// ImageSaver is the slice of the session store that scrapers need: they
// download listing images straight into the session as they go
type ImageSaver interface {
	SaveImage(sessionID, platform, filename string, data []byte) (string, error)
}

// downloadImage fetches one listing image and stores it under the session,
// returning the stored path. Filenames follow <platform>_<index>_<slug>.jpg
// so a title can be recovered from the filename alone.
func downloadImage(ctx context.Context, c *Client, store ImageSaver, sessionID, platform string, index int, title, imgURL, referer string) (string, error) {
	data, err := c.Download(ctx, imgURL, referer)
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%s_%d_%s.jpg", platform, index, slugify(title))
	path, err := store.SaveImage(sessionID, platform, filename, data)
	if err != nil {
		return "", fmt.Errorf("saving image: %w", err)
	}

	log.Printf("[%s] saved image %s (%d bytes)", platform, filename, len(data))
	return path, nil
}

// slugify reduces a listing title to a short filesystem-safe token
func slugify(title string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
		if b.Len() >= 40 {
			break
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return "item"
	}
	return slug
}
