package security

import (
	"regexp"
)

type SecretMatch struct {
	Type     string
	Start    int
	End      int
	Redacted string
}

type SecretScanner struct {
	patterns []*secretPattern
}

type secretPattern struct {
	name       string
	regex      *regexp.Regexp
	redactWith string
}

var defaultSecretPatterns = []struct {
	name       string
	pattern    string
	redactWith string
}{
	{"Query Token", `(?i)([?&](?:token|access_token|jwt)=)[^&#\s]+`, "${1}****"},
	{"Bearer Token", `(?i)(bearer\s+)[a-zA-Z0-9\-_.=]+`, "${1}****"},
	{"JWT Token", `eyJ[a-zA-Z0-9\-_]+\.eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+`, "eyJ****"},
	{"Telegram Bot Token", `[0-9]{8,10}:[a-zA-Z0-9_-]{35}`, "****:****"},
	{"Discord Token", `[MN][a-zA-Z\d]{23}\.[\w-]{6}\.[\w-]{27}`, "DISCORD_TOKEN****"},
	{"NATS URL Credentials", `(?i)(nats|tls)://[^\s'"/@]+:[^\s'"/@]+@`, "${1}://****@"},
	{"Generic Secret", `(?i)(secret|password|passwd|pwd|jwt_secret)['"]?\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`, "SECRET****"},
}

func NewSecretScanner() *SecretScanner {
	scanner := &SecretScanner{
		patterns: make([]*secretPattern, 0, len(defaultSecretPatterns)),
	}

	for _, p := range defaultSecretPatterns {
		scanner.patterns = append(scanner.patterns, &secretPattern{
			name:       p.name,
			regex:      regexp.MustCompile(p.pattern),
			redactWith: p.redactWith,
		})
	}

	return scanner
}

func (s *SecretScanner) Scan(input string) []SecretMatch {
	var matches []SecretMatch

	for _, pattern := range s.patterns {
		for _, loc := range pattern.regex.FindAllStringIndex(input, -1) {
			matches = append(matches, SecretMatch{
				Type:     pattern.name,
				Start:    loc[0],
				End:      loc[1],
				Redacted: pattern.redactWith,
			})
		}
	}

	return matches
}

func (s *SecretScanner) HasSecrets(input string) bool {
	for _, pattern := range s.patterns {
		if pattern.regex.MatchString(input) {
			return true
		}
	}
	return false
}

// Redact replaces every match in pattern order
func (s *SecretScanner) Redact(input string) string {
	result := input

	for _, pattern := range s.patterns {
		result = pattern.regex.ReplaceAllString(result, pattern.redactWith)
	}

	return result
}

var defaultScanner = NewSecretScanner()

func HasSecrets(input string) bool {
	return defaultScanner.HasSecrets(input)
}

func RedactSecrets(input string) string {
	return defaultScanner.Redact(input)
}
