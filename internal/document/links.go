package document

import (
	"regexp"
	"strings"
)

// WikiLinkPattern matches [[target]] and [[target|display]].
var WikiLinkPattern = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

// ExtractWikiLinks returns link targets in order of first appearance and the
// display-to-target map for aliased links.
func ExtractWikiLinks(body string) ([]string, map[string]string) {
	var links []string
	aliases := map[string]string{}
	seen := map[string]bool{}

	for _, m := range WikiLinkPattern.FindAllStringSubmatch(body, -1) {
		target, display, hasAlias := strings.Cut(m[1], "|")
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if hasAlias {
			if display = strings.TrimSpace(display); display != "" {
				aliases[display] = target
			}
		}
		if !seen[target] {
			seen[target] = true
			links = append(links, target)
		}
	}
	return links, aliases
}
