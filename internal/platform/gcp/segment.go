package gcp

import (
	"math"
	"strings"

	"google.golang.org/protobuf/types/known/durationpb"
)

// Segment is one piece of text recovered by a GCP extraction API, with
// whatever provenance the provider returned.
type Segment struct {
	Text       string   `json:"text"`
	Page       int      `json:"page,omitempty"`
	StartSec   *float64 `json:"start_sec,omitempty"`
	EndSec     *float64 `json:"end_sec,omitempty"`
	SpeakerTag int      `json:"speaker_tag,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Kind       string   `json:"kind"`
}

type timedWord struct {
	text    string
	start   float64
	end     float64
	speaker int
	conf    float64
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}

// groupBySpeaker folds consecutive words from the same speaker into one
// segment (one speaker turn). Speaker tag 0 means "unknown" and never splits.
func groupBySpeaker(words []timedWord, kind string) []Segment {
	if len(words) == 0 {
		return nil
	}
	var segs []Segment
	cur := words[0].speaker
	start, end := words[0].start, words[0].end
	var buf strings.Builder
	var confSum float64
	var confN int

	flush := func() {
		txt := strings.TrimSpace(buf.String())
		if txt == "" {
			return
		}
		s, e := start, end
		seg := Segment{Text: txt, StartSec: &s, EndSec: &e, SpeakerTag: cur, Kind: kind}
		if confN > 0 {
			seg.Confidence = confSum / float64(confN)
		}
		segs = append(segs, seg)
		buf.Reset()
		confSum, confN = 0, 0
	}

	for _, w := range words {
		if w.speaker != 0 && w.speaker != cur && buf.Len() > 0 {
			flush()
			cur = w.speaker
			start = w.start
			end = w.end
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(w.text)
		end = math.Max(end, w.end)
		if w.conf > 0 {
			confSum += w.conf
			confN++
		}
	}
	flush()
	return segs
}
