// Package render produces the server-rendered results page for the simple
// search interface.
package render

import (
	"bytes"
	"fmt"
	"html/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/watchfinder/backend/internal/domain"
)

// Context carries everything one results page needs. The zero value renders
// the fresh search form.
type Context struct {
	Query     string         // last search query, echoed into the form
	Threshold *float64       // confidence cutoff, echoed into the form
	Error     string         // error banner text, escaped on output
	Matches   []domain.Match // results in display order, never re-sorted
}

// knownPlatformClass maps each supported marketplace to its badge classes.
// Anything else gets the plain badge.
var knownPlatformClass = func() map[string]string {
	m := make(map[string]string, len(domain.KnownPlatforms))
	for _, p := range domain.KnownPlatforms {
		m[p] = "platform-badge platform-" + p
	}
	return m
}()

var pageFuncs = template.FuncMap{
	"plural":         plural,
	"percent":        percent,
	"score":          score,
	"thresholdValue": thresholdValue,
	"platformClass":  platformClass,
	"platformTitle":  platformTitle,
	"platformCount":  platformCount,
	"avgConfidence":  avgConfidence,
}

func plural(n int, singular, many string) string {
	if n == 1 {
		return singular
	}
	return many
}

func percent(confidence float64) string {
	return fmt.Sprintf("%.1f", confidence*100)
}

func score(confidence float64) string {
	return fmt.Sprintf("%.2f", confidence)
}

// thresholdValue formats the form's threshold field. Absent and zero both
// fall back to the display default.
func thresholdValue(threshold *float64) string {
	if threshold == nil || *threshold == 0 {
		return "0.60"
	}
	return fmt.Sprintf("%.2f", *threshold)
}

func platformClass(platform string) string {
	if class, ok := knownPlatformClass[platform]; ok {
		return class
	}
	return "platform-badge"
}

func platformTitle(platform string) string {
	if platform == "" {
		return "Unknown"
	}
	return cases.Title(language.English).String(platform)
}

func platformCount(matches []domain.Match) int {
	seen := make(map[string]struct{}, len(matches))
	for _, match := range matches {
		seen[match.Platform] = struct{}{}
	}
	return len(seen)
}

func avgConfidence(matches []domain.Match) string {
	if len(matches) == 0 {
		return "0"
	}
	var sum float64
	for _, match := range matches {
		sum += match.Confidence
	}
	return fmt.Sprintf("%.0f", sum/float64(len(matches))*100)
}

// Render produces the complete results page for ctx. It is stateless and
// safe for concurrent use; the only failure mode is template execution.
func Render(ctx Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := resultsTmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("rendering results page: %w", err)
	}
	return buf.Bytes(), nil
}

var resultsTmpl = template.Must(template.New("results").Funcs(pageFuncs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Lost Watch Finder</title>
    <style>
        body { font-family: Arial, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; background: #fafafa; }
        h1 { color: #333; }
        .form-group { margin: 15px 0; }
        .form-group label { display: block; margin-bottom: 5px; font-weight: bold; }
        .form-group input { width: 100%; padding: 8px; border: 1px solid #ddd; border-radius: 4px; box-sizing: border-box; }
        .btn { background: #007bff; color: white; padding: 10px 20px; border: none; border-radius: 5px; cursor: pointer; font-size: 1em; }
        .btn:hover { background: #0056b3; }
        .error { background: #f8d7da; color: #721c24; border: 1px solid #f5c6cb; padding: 12px 15px; border-radius: 5px; margin: 15px 0; }
        .search-banner { background: #d4edda; color: #155724; border: 1px solid #c3e6cb; padding: 12px 15px; border-radius: 5px; margin: 20px 0 10px; }
        .stats { display: flex; gap: 10px; margin: 15px 0; }
        .stat { flex: 1; background: white; border: 1px solid #ddd; border-radius: 5px; padding: 12px; text-align: center; }
        .stat-value { display: block; font-size: 1.6em; font-weight: bold; color: #007bff; }
        .stat-label { color: #666; font-size: 0.85em; }
        .match-card { border: 1px solid #ddd; padding: 15px; margin: 10px 0; border-radius: 5px; background: white; }
        .match-card img { max-width: 200px; height: auto; border-radius: 4px; }
        .match-card h3 { margin-top: 0; color: #333; }
        .confidence-badge { background: #17a2b8; color: white; padding: 4px 8px; border-radius: 12px; font-size: 0.9em; font-weight: bold; }
        .confidence-score { color: #666; font-size: 0.9em; }
        .platform-badge { background: #6c757d; color: white; padding: 4px 8px; border-radius: 4px; font-size: 0.8em; margin-left: 10px; }
        .platform-ebay { background: #0064d2; }
        .platform-facebook { background: #1877f2; }
        .platform-poshmark { background: #822432; }
        .platform-craigslist { background: #5c2e91; }
        .platform-reddit { background: #ff4500; }
        .listing-link { display: inline-block; background: #28a745; color: white; padding: 8px 16px; text-decoration: none; border-radius: 4px; margin-top: 10px; font-weight: bold; }
        .listing-link:hover { background: #218838; }
        .no-matches { background: #fff3cd; border: 1px solid #ffeeba; color: #856404; padding: 15px; border-radius: 5px; margin: 15px 0; }
        .no-matches ul { margin: 10px 0 0; padding-left: 20px; }
    </style>
</head>
<body>
    <h1>&#128269; Lost Watch Finder</h1>

    <form method="POST">
        <div class="form-group">
            <label for="query">Search Query:</label>
            <input type="text" id="query" name="query" placeholder="Enter watch brand/model (e.g., 'patek philippe')" value="{{.Query}}" required>
        </div>
        <div class="form-group">
            <label for="threshold">Match Threshold:</label>
            <input type="number" id="threshold" name="threshold" step="0.01" min="0" max="1" value="{{thresholdValue .Threshold}}">
        </div>
        <button type="submit" class="btn">&#128269; Start Search</button>
    </form>
{{if .Error}}
    <div class="error">{{.Error}}</div>
{{end}}
{{if .Query}}
    <div class="search-banner">Search results for: &quot;{{.Query}}&quot;</div>
{{if .Matches}}
    <div class="stats">
        <div class="stat"><span class="stat-value">{{len .Matches}}</span><span class="stat-label">{{plural (len .Matches) "Match" "Matches"}} Found</span></div>
        <div class="stat"><span class="stat-value">{{platformCount .Matches}}</span><span class="stat-label">{{plural (platformCount .Matches) "Platform" "Platforms"}}</span></div>
        <div class="stat"><span class="stat-value">{{avgConfidence .Matches}}%</span><span class="stat-label">Avg Confidence</span></div>
    </div>
{{range .Matches}}
    <div class="match-card">
        <h3>
            {{if .Title}}{{.Title}}{{else}}Unknown Item{{end}}
            <span class="confidence-badge">{{percent .Confidence}}% Match</span>
            <span class="{{platformClass .Platform}}">{{platformTitle .Platform}}</span>
        </h3>
{{if .Filename}}
        <img src="/results/image/{{.SessionID}}/{{.Platform}}/{{.Filename}}" alt="{{if .Title}}{{.Title}}{{else}}Matched listing photo{{end}}" onerror="this.style.display='none'">
{{end}}
        <p class="confidence-score">Confidence Score: {{score .Confidence}}</p>
{{if .Price}}
        <p><strong>Price:</strong> {{.Price}}</p>
{{end}}
{{if .URL}}
        <a href="{{.URL}}" target="_blank" rel="noopener noreferrer" class="listing-link">&#128279; View Original Listing</a>
{{end}}
    </div>
{{end}}
{{else}}
    <div class="no-matches">
        <h3>No matches found</h3>
        <p>Nothing cleared the confidence threshold this time. A few things to try:</p>
        <ul>
            <li>Try different search terms, like the brand alone or a model nickname</li>
            <li>Lower the match threshold to widen the search</li>
            <li>Make sure your reference photos show the watch clearly</li>
            <li>Check back later; marketplace listings change constantly</li>
        </ul>
    </div>
{{end}}
{{end}}
</body>
</html>
`))
