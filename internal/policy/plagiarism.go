package policy

import (
	"encoding/json"
	"sort"
	"strings"
)

const plagiarismMessage = "Your submission has been flagged for plagiarism. " +
	"If you wish to escalate the matter to the deans, please make a private post on the course forum. " +
	"Otherwise, no further action is required. You may view your report(s) here: "

// Plagiarism zeroes flagged submissions. Its data maps the matched
// submission to the report link.
type Plagiarism struct{}

// Apply prepends the flag message, with links in key order, when any match
// exists.
func (Plagiarism) Apply(points float64, comments []string, data json.RawMessage) (float64, []string, error) {
	var matches map[string]string
	if err := decode(data, &matches); err != nil {
		return 0, nil, err
	}
	if len(matches) == 0 {
		return points, comments, nil
	}

	keys := make([]string, 0, len(matches))
	for k := range matches {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	links := make([]string, len(keys))
	for i, k := range keys {
		links[i] = matches[k]
	}
	return 0, prepend(comments, plagiarismMessage+strings.Join(links, ", ")), nil
}
