package antibot

import "strings"

// DefaultSignatures lists body fragments served by marketplace bot walls
// instead of search results.
var DefaultSignatures = []string{
	"captcha",
	"punish?x5secdata",
	"_____tmd_____",
	"slide to verify",
	"please slide",
	"unusual traffic",
	"access denied",
	"verify you are human",
	"are you a robot",
}

// Detector matches payloads against known block signatures.
type Detector struct {
	signatures []string
}

// NewDetector lower-cases the signatures; an empty list selects DefaultSignatures.
func NewDetector(signatures []string) *Detector {
	if len(signatures) == 0 {
		signatures = DefaultSignatures
	}
	lowered := make([]string, 0, len(signatures))
	for _, s := range signatures {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			lowered = append(lowered, s)
		}
	}
	return &Detector{signatures: lowered}
}

// Match returns the first signature found in body.
func (d *Detector) Match(body string) (string, bool) {
	if d == nil || body == "" {
		return "", false
	}
	lower := strings.ToLower(body)
	for _, sig := range d.signatures {
		if strings.Contains(lower, sig) {
			return sig, true
		}
	}
	return "", false
}
