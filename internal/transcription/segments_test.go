package transcription

import "testing"

func TestMergeWords_GroupsConsecutiveTags(t *testing.T) {
	words := []Word{
		{Text: "hello", Start: 0, End: 0.4, Tag: "A"},
		{Text: "there", Start: 0.5, End: 0.9, Tag: "A"},
		{Text: "hi", Start: 1.2, End: 1.4, Tag: "B"},
		{Text: " ", Start: 1.5, End: 1.6, Tag: "B"},
		{Text: "ok", Start: 2.0, End: 2.2, Tag: "A"},
	}
	segs := MergeWords(words)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	if segs[0].Text != "hello there" || segs[0].Start != 0 || segs[0].End != 0.9 {
		t.Fatalf("unexpected first segment: %+v", segs[0])
	}
	if segs[1].Tag != "B" || segs[1].Text != "hi" {
		t.Fatalf("unexpected second segment: %+v", segs[1])
	}
	if segs[2].Text != "ok" {
		t.Fatalf("expected new segment after speaker change, got %+v", segs[2])
	}
}

func TestMergeWords_Empty(t *testing.T) {
	if got := MergeWords(nil); len(got) != 0 {
		t.Fatalf("expected no segments, got %d", len(got))
	}
}

func TestApplyRoles_UnknownTagAndClampedEnd(t *testing.T) {
	segs := []TaggedSegment{
		{Start: 1, End: 2, Tag: "A", Text: "a"},
		{Start: 3, End: 2.5, Tag: "C", Text: "c"},
	}
	out := ApplyRoles(segs, map[string]Speaker{"A": SpeakerTech})
	if out[0].Speaker != SpeakerTech {
		t.Fatalf("expected tech, got %s", out[0].Speaker)
	}
	if out[1].Speaker != SpeakerUnknown {
		t.Fatalf("expected unknown for unmapped tag, got %s", out[1].Speaker)
	}
	if out[1].End != 3 {
		t.Fatalf("expected end clamped to start, got %v", out[1].End)
	}
}

func TestTranscriptValidate(t *testing.T) {
	tr := &Transcript{Segments: []Segment{
		{Start: 0, End: 1, Speaker: "technician", Text: "hi"},
		{Start: 1, End: 2, Speaker: "someone", Text: "there"},
	}}
	if err := tr.Validate(); err != nil {
		t.Fatalf("expected valid transcript, got %v", err)
	}
	if tr.Segments[0].Speaker != SpeakerTech || tr.Segments[1].Speaker != SpeakerUnknown {
		t.Fatalf("speakers not coerced: %+v", tr.Segments)
	}
	if tr.Provider != "other" || tr.Text != "hi there" {
		t.Fatalf("defaults not applied: provider=%q text=%q", tr.Provider, tr.Text)
	}

	bad := &Transcript{Provider: "x", Segments: []Segment{{Start: 5, End: 1, Speaker: SpeakerTech}}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for end before start")
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]JobStatus{
		"completed":  JobStatusCompleted,
		"error":      JobStatusFailed,
		"processing": JobStatusProcessing,
		"queued":     JobStatusQueued,
		"":           JobStatusQueued,
	}
	for in, want := range cases {
		if got := NormalizeStatus(in); got != want {
			t.Fatalf("NormalizeStatus(%q)=%s want %s", in, got, want)
		}
	}
	if !JobStatusFailed.Terminal() || JobStatusProcessing.Terminal() {
		t.Fatalf("unexpected Terminal results")
	}
}
