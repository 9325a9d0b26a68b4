package intent

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	yesPattern = regexp.MustCompile(`(?i)\b(yes+|yeah|yea|yep|yup|sure|absolutely|definitely|ok|okay|bet|down|count me in|i'?m in|for sure|of course|let'?s go|letsgo|say less|fs|can'?t wait|i'?ll be there|see you there|wouldn'?t miss it)\b`)
	noPattern  = regexp.MustCompile(`(?i)\b(no|nope|nah|can'?t|cannot|pass|i'?m good|not this time|maybe next|decline|won'?t make it)\b`)

	// Affirmative phrases that contain a negative word.
	negatedYes = regexp.MustCompile(`(?i)\b(can'?t wait|wouldn'?t miss it)\b`)
)

// Answer is the outcome of yes/no matching.
type Answer int

const (
	Unclear Answer = iota
	Yes
	No
)

// YesNo classifies text as an affirmative or negative reply. Text matching
// both vocabularies is Unclear.
func YesNo(text string) Answer {
	yes := yesPattern.MatchString(text)
	no := noPattern.MatchString(negatedYes.ReplaceAllString(text, ""))
	switch {
	case yes && !no:
		return Yes
	case no && !yes:
		return No
	}
	return Unclear
}

// FAQ is a recognised event question.
type FAQ string

const (
	FAQDrop    FAQ = "drop"
	FAQWhere   FAQ = "where"
	FAQWhen    FAQ = "when"
	FAQPlusOne FAQ = "plus_one"
)

var faqPatterns = []struct {
	kind FAQ
	re   *regexp.Regexp
}{
	{FAQDrop, regexp.MustCompile(`(?i)\b(drop|reveal)\b`)},
	{FAQWhere, regexp.MustCompile(`(?i)\b(where|location|address|venue)\b`)},
	{FAQWhen, regexp.MustCompile(`(?i)\b(when|what time|what day|which day|date)\b`)},
	{FAQPlusOne, regexp.MustCompile(`(?i)\b(bring|plus one|plus-one|invites? left|how many invites)\b`)},
}

// DetectFAQ returns the FAQ kind for text, or "" when none matches.
func DetectFAQ(text string) FAQ {
	for _, p := range faqPatterns {
		if p.re.MatchString(text) {
			return p.kind
		}
	}
	return ""
}

var (
	greeting      = regexp.MustCompile(`(?i)^(hi|hey|hello|yo)[,!.\s]+`)
	namePrefix    = regexp.MustCompile(`(?i)^(this is|i'?m|im|it'?s|its|my name is|my name's|name'?s|call me)\s+`)
	nameChars     = regexp.MustCompile(`^[\p{L}\s'\-.]+$`)
	questionStart = regexp.MustCompile(`(?i)^(what|where|when|who|why|how|which|can|could|is|are|do|does|will|should)\s`)
	greetingOnly  = map[string]bool{"hi": true, "hey": true, "hello": true, "yo": true, "thanks": true}
)

// ExtractName pulls a person's name out of a short reply such as "it's Sam".
func ExtractName(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.Contains(text, "?") || questionStart.MatchString(text) {
		return "", false
	}
	text = strings.TrimSpace(greeting.ReplaceAllString(text, ""))
	text = strings.TrimSpace(namePrefix.ReplaceAllString(text, ""))
	text = strings.TrimRight(text, ".! ")
	if text == "" || greetingOnly[strings.ToLower(text)] || !nameChars.MatchString(text) {
		return "", false
	}
	words := strings.Fields(text)
	if len(words) > 4 {
		return "", false
	}
	if len(words) == 1 && YesNo(text) != Unclear {
		return "", false
	}
	for _, w := range words {
		if len([]rune(w)) == 1 && strings.ToUpper(w) != w {
			return "", false
		}
	}
	return cases.Title(language.Und).String(strings.Join(words, " ")), true
}

var (
	handleURL     = regexp.MustCompile(`(?i)instagram\.com/([a-z0-9._]{1,30})`)
	handleAt      = regexp.MustCompile(`@([a-zA-Z0-9._]{1,30})`)
	handlePrefix  = regexp.MustCompile(`(?i)^(my\s+)?(ig|insta|instagram)\b\s*(is\b|:)?\s*`)
	handleIts     = regexp.MustCompile(`(?i)^it'?s\s+`)
	handleBare    = regexp.MustCompile(`^[a-zA-Z0-9._]{1,30}$`)
	skipWords     = map[string]bool{"skip": true, "no": true, "nah": true, "nope": true, "none": true, "n/a": true, "na": true, "pass": true}
	skipPhrases   = regexp.MustCompile(`(?i)(don'?t have|no (ig|insta|instagram)|don'?t (use|do|have) (ig|insta|instagram|social|that)|i'?m not on|not on (ig|insta|instagram)|no social)`)
	questionWords = map[string]bool{"what": true, "where": true, "when": true, "who": true, "why": true, "how": true}
)

// ExtractHandle finds a social handle in text and returns it lower-cased
// without the leading @.
func ExtractHandle(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if m := handleURL.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1]), true
	}
	if m := handleAt.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1]), true
	}
	cleaned := strings.TrimSpace(handlePrefix.ReplaceAllString(text, ""))
	cleaned = strings.TrimSpace(handleIts.ReplaceAllString(cleaned, ""))
	if handleBare.MatchString(cleaned) && !questionWords[strings.ToLower(cleaned)] && strings.Trim(cleaned, "._") != "" {
		return strings.ToLower(cleaned), true
	}
	return "", false
}

// IsSkip reports whether text declines to share a handle.
func IsSkip(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return skipWords[strings.TrimRight(t, ".!")] || skipPhrases.MatchString(t)
}

// HostCommand is a recognised host instruction.
type HostCommand string

const (
	CmdCancelDrop HostCommand = "cancel_drop"
	CmdSearch     HostCommand = "search"
	CmdList       HostCommand = "list"
	CmdStats      HostCommand = "stats"
	CmdDrop       HostCommand = "drop"
	CmdGraph      HostCommand = "graph"
)

var hostPatterns = []struct {
	cmd HostCommand
	re  *regexp.Regexp
}{
	{CmdCancelDrop, regexp.MustCompile(`(?i)\bcancel\s+(?:the\s+)?(?:location\s+)?drop\b`)},
	{CmdSearch, regexp.MustCompile(`(?i)\bsearch\s+(.+)`)},
	{CmdList, regexp.MustCompile(`(?i)\b(?:list|guest list|show.*guests?)\b`)},
	{CmdStats, regexp.MustCompile(`(?i)\bstats?\b`)},
	{CmdDrop, regexp.MustCompile(`(?i)\bdrop\s+location\b`)},
	{CmdGraph, regexp.MustCompile(`(?i)\b(?:graph|connections|social|ig graph)\b`)},
}

// DetectHostCommand returns the host command in text and its argument, if any.
func DetectHostCommand(text string) (HostCommand, string, bool) {
	for _, p := range hostPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		var arg string
		if len(m) > 1 {
			arg = strings.TrimSpace(m[1])
		}
		return p.cmd, arg, true
	}
	return "", "", false
}
