package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/watchfinder/backend/internal/domain"
)

const (
	sessionPrefix  = "session_"
	idFormat       = "20060102_150405"
	latestFile     = "latest_session.txt"
	imagesDir      = "scraped_images"
	resultsDir     = "results"
	matchesDir     = "matches"
	logsDir        = "logs"
	summaryFile    = "session_summary.json"
	matchDetailsFN = "match_details.json"
	logFile        = "session.log"
)

// Store persists search sessions on disk. The layout is a contract shared
// with the image-serving endpoint and external tooling:
//
//	<root>/session_<ID>/scraped_images/<platform>/<files>
//	<root>/session_<ID>/results/<platform>_results.json
//	<root>/session_<ID>/results/session_summary.json
//	<root>/session_<ID>/matches/match_details.json
//	<root>/session_<ID>/logs/session.log
//	<root>/latest_session.txt
type Store struct {
	root string
	now  func() time.Time
}

// NewStore creates a session store rooted at dir
func NewStore(dir string) *Store {
	return &Store{
		root: dir,
		now:  time.Now,
	}
}

// Create allocates a new session folder tree and returns its ID
func (s *Store) Create(query string) (string, error) {
	base := s.now().Format(idFormat)
	id := base

	// Same-second collisions get a numeric suffix
	for i := 2; ; i++ {
		if _, err := os.Stat(s.sessionDir(id)); os.IsNotExist(err) {
			break
		}
		id = fmt.Sprintf("%s_%d", base, i)
	}

	for _, sub := range []string{imagesDir, resultsDir, matchesDir, logsDir} {
		if err := os.MkdirAll(filepath.Join(s.sessionDir(id), sub), 0o755); err != nil {
			return "", fmt.Errorf("creating session folders: %w", err)
		}
	}

	if err := s.AppendLog(id, fmt.Sprintf("Session started: %s (query: %q)", id, query)); err != nil {
		return "", err
	}

	return id, nil
}

// SaveListings writes a platform's scraped listing metadata
func (s *Store) SaveListings(sessionID, platform string, listings []domain.Listing) error {
	if err := validateComponent(platform); err != nil {
		return err
	}
	path := filepath.Join(s.sessionDir(sessionID), resultsDir, platform+"_results.json")
	return writeJSON(path, listings)
}

// SaveImage stores one downloaded listing image and returns its path on disk
func (s *Store) SaveImage(sessionID, platform, filename string, data []byte) (string, error) {
	for _, part := range []string{sessionID, platform, filename} {
		if err := validateComponent(part); err != nil {
			return "", err
		}
	}

	dir := filepath.Join(s.sessionDir(sessionID), imagesDir, platform)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating image folder: %w", err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	return path, nil
}

// ListImages returns the paths of a platform's downloaded images, sorted by name.
// A platform that downloaded nothing yields an empty slice.
func (s *Store) ListImages(sessionID, platform string) ([]string, error) {
	dir := filepath.Join(s.sessionDir(sessionID), imagesDir, platform)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadListings reads back a platform's scraped listing metadata
func (s *Store) LoadListings(sessionID, platform string) ([]domain.Listing, error) {
	path := filepath.Join(s.sessionDir(sessionID), resultsDir, platform+"_results.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading listings: %w", err)
	}

	var listings []domain.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("decoding listings: %w", err)
	}
	return listings, nil
}

// SaveMatchDetails writes the matcher's per-platform results
func (s *Store) SaveMatchDetails(sessionID string, results map[string]domain.PlatformMatchResult) error {
	path := filepath.Join(s.sessionDir(sessionID), matchesDir, matchDetailsFN)
	return writeJSON(path, results)
}

// LoadMatchDetails reads back the matcher's per-platform results
func (s *Store) LoadMatchDetails(sessionID string) (map[string]domain.PlatformMatchResult, error) {
	path := filepath.Join(s.sessionDir(sessionID), matchesDir, matchDetailsFN)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading match details: %w", err)
	}

	var results map[string]domain.PlatformMatchResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decoding match details: %w", err)
	}
	return results, nil
}

// SaveSummary writes the final session summary
func (s *Store) SaveSummary(sessionID string, summary *domain.SessionSummary) error {
	path := filepath.Join(s.sessionDir(sessionID), resultsDir, summaryFile)
	return writeJSON(path, summary)
}

// LoadSummary reads back the final session summary
func (s *Store) LoadSummary(sessionID string) (*domain.SessionSummary, error) {
	path := filepath.Join(s.sessionDir(sessionID), resultsDir, summaryFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}

	var summary domain.SessionSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decoding summary: %w", err)
	}
	return &summary, nil
}

// AppendLog adds a timestamped line to the session log
func (s *Store) AppendLog(sessionID, line string) error {
	path := filepath.Join(s.sessionDir(sessionID), logsDir, logFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening session log: %w", err)
	}
	defer f.Close()

	stamp := s.now().Format("2006-01-02 15:04:05")
	_, err = fmt.Fprintf(f, "[%s] %s\n", stamp, line)
	return err
}

// SetLatest records sessionID as the most recently completed session
func (s *Store) SetLatest(sessionID string) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("creating sessions root: %w", err)
	}
	return os.WriteFile(filepath.Join(s.root, latestFile), []byte(sessionID), 0o644)
}

// Latest returns the most recently completed session's ID
func (s *Store) Latest() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, latestFile))
	if os.IsNotExist(err) {
		return "", domain.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading latest session: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ImagePath resolves a stored image's path for serving. Every component is
// validated before joining so request data cannot escape the session tree.
func (s *Store) ImagePath(sessionID, platform, filename string) (string, error) {
	for _, part := range []string{sessionID, platform, filename} {
		if err := validateComponent(part); err != nil {
			return "", err
		}
	}

	path := filepath.Join(s.sessionDir(sessionID), imagesDir, platform, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrSessionNotFound
		}
		return "", fmt.Errorf("resolving image: %w", err)
	}
	return path, nil
}

func (s *Store) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionPrefix+sessionID)
}

// validateComponent rejects path elements that could traverse directories
func validateComponent(part string) error {
	if part == "" || part == "." || part == ".." ||
		strings.ContainsAny(part, `/\`) || strings.ContainsRune(part, 0) {
		return fmt.Errorf("%w: invalid path component %q", domain.ErrSessionNotFound, part)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
