package installer

import (
	"regexp"
	"strings"

	"github.com/oshokin/packwiz-deploy/internal/domain/deploy"
)

// manualLookahead is how many lines after the marker may carry the URL and destination.
const manualLookahead = 4

var (
	// excludedMarker matches the installer's "excluded from the CurseForge API" exception text.
	excludedMarker = regexp.MustCompile(`(?i)excluded\s+from\s+(?:the\s+)?(?:[a-z]+\s+)?API`)
	// manualURL matches the page the operator has to open.
	manualURL = regexp.MustCompile(`https?://[^\s"'<>]+`)
	// manualDestination matches "save this file to <path>".
	manualDestination = regexp.MustCompile(`(?i)save\s+(?:this|the)\s+file\s+to\s+(.+?)\s*$`)
	// versionSuffix matches the first separator followed by a version-looking token.
	versionSuffix = regexp.MustCompile(`[-_+ ](?:mc|v)?\d.*$`)
	// loaderSuffix matches a trailing mod loader tag left after the version is cut.
	loaderSuffix = regexp.MustCompile(`(?i)[-_+ ](?:forge|neoforge|fabric|quilt)$`)
)

// knownExtensions are stripped from file names, longest first.
//
//nolint:gochecknoglobals // Read-only lookup table.
var knownExtensions = []string{".jar.disabled", ".disabled", ".jar", ".zip"}

// ParseManualDownloads scans installer output for mods that must be fetched by
// hand. Each marker line opens a window of the next four lines in which the
// first URL and the first "save this file to" destination are taken. Records
// are deduplicated by derived mod name, keeping the first.
func ParseManualDownloads(output string) deploy.ManualDownloads {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")

	var records deploy.ManualDownloads

	for i, line := range lines {
		if !excludedMarker.MatchString(line) {
			continue
		}

		record, ok := parseManualBlock(lines[i+1 : min(i+1+manualLookahead, len(lines))])
		if !ok {
			continue
		}

		records.Add(record)
	}

	return records
}

// parseManualBlock extracts one record from the lines following a marker.
func parseManualBlock(window []string) (deploy.ManualDownload, bool) {
	var sourceURL, destination string

	for _, line := range window {
		// The next marker starts a new block.
		if excludedMarker.MatchString(line) {
			break
		}

		if m := manualDestination.FindStringSubmatch(line); m != nil && destination == "" {
			destination = m[1]
			line = line[:strings.Index(line, m[0])]
		}

		if sourceURL == "" {
			sourceURL = strings.TrimRight(manualURL.FindString(line), ".,;)")
		}
	}

	fileName := baseName(destination)
	if sourceURL == "" || fileName == "" {
		return deploy.ManualDownload{}, false
	}

	return deploy.ManualDownload{
		ModName:   DeriveModName(fileName),
		FileName:  fileName,
		SourceURL: sourceURL,
	}, true
}

// DeriveModName strips extension and version suffixes from a mod file name:
// "CoolMod-1.2.3.jar" becomes "CoolMod", "jei-forge-1.20.1-15.2.0.jar" becomes "jei".
func DeriveModName(fileName string) string {
	name := baseName(fileName)

	lower := strings.ToLower(name)
	for _, ext := range knownExtensions {
		if strings.HasSuffix(lower, ext) {
			name = name[:len(name)-len(ext)]
			break
		}
	}

	withoutExt := name

	name = versionSuffix.ReplaceAllString(name, "")
	for loaderSuffix.MatchString(name) {
		name = loaderSuffix.ReplaceAllString(name, "")
	}

	name = strings.TrimRight(name, "-_+ ")
	if name == "" {
		return withoutExt
	}

	return name
}

// baseName returns the last path element for both slash styles, without quotes.
func baseName(path string) string {
	path = strings.TrimRight(strings.TrimSpace(path), ".")
	path = strings.Trim(path, `"'`)

	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}

	return path
}
