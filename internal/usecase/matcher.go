package usecase

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/watchfinder/backend/internal/domain"
)

// imageExtensions are the file types accepted as reference or scraped images
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// ReferenceEmbedding pairs a reference image with its vector so one
// embedding pass can serve every platform in a run
type ReferenceEmbedding struct {
	Path   string
	Vector []float32
}

// MatcherConfig holds configuration for the matcher service
type MatcherConfig struct {
	ReferenceDir       string
	EnableDebugLogging bool
}

// MatcherService scores scraped images against the uploaded reference set
type MatcherService struct {
	embedder           domain.EmbeddingClient
	referenceDir       string
	enableDebugLogging bool
}

// NewMatcherService creates a new matcher service
func NewMatcherService(embedder domain.EmbeddingClient, config MatcherConfig) *MatcherService {
	return &MatcherService{
		embedder:           embedder,
		referenceDir:       config.ReferenceDir,
		enableDebugLogging: config.EnableDebugLogging,
	}
}

// ReferenceDir exposes where reference uploads land
func (s *MatcherService) ReferenceDir() string {
	return s.referenceDir
}

// ReferenceImages lists the usable reference photos, sorted by name
func (s *MatcherService) ReferenceImages() ([]string, error) {
	entries, err := os.ReadDir(s.referenceDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading reference dir: %w", err)
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			images = append(images, filepath.Join(s.referenceDir, entry.Name()))
		}
	}

	sort.Strings(images)
	return images, nil
}

// LoadReferences embeds every reference image once for the whole run
func (s *MatcherService) LoadReferences(ctx context.Context) ([]ReferenceEmbedding, error) {
	images, err := s.ReferenceImages()
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, domain.ErrNoReferenceImages
	}

	refs := make([]ReferenceEmbedding, 0, len(images))
	for _, path := range images {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		vector, err := s.embedder.Embed(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("embedding reference %s: %w", filepath.Base(path), err)
		}
		refs = append(refs, ReferenceEmbedding{Path: path, Vector: vector})
	}

	log.Printf("[match] loaded %d reference embeddings", len(refs))
	return refs, nil
}

// MatchImages scores each candidate image against every reference and
// returns one verdict per analyzable image. Images the embedder cannot
// process are logged and skipped.
func (s *MatcherService) MatchImages(ctx context.Context, refs []ReferenceEmbedding, candidates []string, threshold float64) ([]domain.MatchDetail, error) {
	details := make([]domain.MatchDetail, 0, len(candidates))

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return details, ctx.Err()
		}

		vector, err := s.embedder.Embed(ctx, candidate)
		if err != nil {
			log.Printf("[match] skipping %s: %v", filepath.Base(candidate), err)
			continue
		}

		bestScore := 0.0
		bestRef := ""
		for _, ref := range refs {
			if score := cosineSimilarity(vector, ref.Vector); score > bestScore {
				bestScore = score
				bestRef = ref.Path
			}
		}

		if s.enableDebugLogging {
			log.Printf("[match] %s vs %s: %.4f", filepath.Base(candidate), filepath.Base(bestRef), bestScore)
		}

		details = append(details, domain.MatchDetail{
			TestImage:       filepath.Base(candidate),
			BestMatch:       filepath.Base(bestRef),
			BestScore:       bestScore,
			IsLikelyMatch:   bestScore >= threshold,
			ConfidenceLevel: domain.ConfidenceLevel(bestScore),
		})
	}

	return details, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
