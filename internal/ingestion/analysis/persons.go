package analysis

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

// Runs of capitalised words. Sentence-initial words are trimmed by the
// stoplist below.
var nameMention = regexp.MustCompile(`\b([A-Z][a-z]{1,20}(?:[ \t]+[A-Z][a-z]{1,20})*)\b`)

const maxNameWords = 3

var nameStopwords = map[string]bool{
	"I": true, "The": true, "This": true, "That": true, "You": true, "We": true, "They": true,
	"He": true, "She": true, "It": true, "If": true, "And": true, "But": true, "Or": true,
	"Please": true, "Stop": true, "Yes": true, "No": true, "Ok": true, "Okay": true, "Hi": true,
	"Hey": true, "Thanks": true, "Sorry": true, "What": true, "When": true, "Where": true,
	"Why": true, "How": true, "My": true, "Your": true, "Our": true, "Just": true, "Don": true,
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true, "Friday": true,
	"Saturday": true, "Sunday": true, "Speaker": true, "Page": true, "Court": true, "Judge": true,
	"Tell": true, "Ask": true, "Call": true, "Text": true, "Meet": true, "Let": true, "Can": true,
	"Send": true, "Give": true, "Bring": true, "Come": true, "Go": true, "Take": true, "See": true,
}

// PersonExtractor derives persons from unit senders and names mentioned in
// content, and sender-to-mention relationships.
type PersonExtractor struct{}

func (PersonExtractor) Extract(units []evidence.ParsedUnit) ([]evidence.Person, []evidence.Relationship) {
	persons := map[string]*evidence.Person{}
	rels := map[[2]string]int{}

	touch := func(name string) *evidence.Person {
		p, ok := persons[name]
		if !ok {
			p = &evidence.Person{Name: name}
			persons[name] = p
		}
		return p
	}

	for _, u := range units {
		sender := strings.TrimSpace(u.Sender)
		if sender != "" {
			p := touch(sender)
			p.AsSender = true
			p.Mentions++
		}
		for _, m := range mentionedNames(u.Content) {
			if m == sender {
				continue
			}
			touch(m).Mentions++
			if sender != "" {
				rels[[2]string{sender, m}]++
			}
		}
	}

	outP := make([]evidence.Person, 0, len(persons))
	for _, p := range persons {
		outP = append(outP, *p)
	}
	sort.Slice(outP, func(i, j int) bool {
		if outP[i].Mentions != outP[j].Mentions {
			return outP[i].Mentions > outP[j].Mentions
		}
		return outP[i].Name < outP[j].Name
	})

	outR := make([]evidence.Relationship, 0, len(rels))
	for k, n := range rels {
		outR = append(outR, evidence.Relationship{From: k[0], To: k[1], Count: n})
	}
	sort.Slice(outR, func(i, j int) bool {
		if outR[i].From != outR[j].From {
			return outR[i].From < outR[j].From
		}
		return outR[i].To < outR[j].To
	})
	return outP, outR
}

func mentionedNames(content string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range nameMention.FindAllStringSubmatch(content, -1) {
		words := strings.Fields(m[1])
		for len(words) > 0 && nameStopwords[words[0]] {
			words = words[1:]
		}
		if len(words) == 0 || nameStopwords[words[len(words)-1]] {
			continue
		}
		if len(words) > maxNameWords {
			words = words[:maxNameWords]
		}
		name := strings.Join(words, " ")
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
