package domain

import "testing"

func TestTrackKey(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		artist string
		album  string
		want   string
	}{
		{"basic", "Yesterday", "The Beatles", "Help!", "yesterday|the beatles|help!"},
		{"trims whitespace", " Yesterday ", "The Beatles", "Help!", "yesterday|the beatles|help!"},
		{"empty album", "Yesterday", "The Beatles", "", "yesterday|the beatles|"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrackKey(tt.title, tt.artist, tt.album)
			if got != tt.want {
				t.Errorf("TrackKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMBIDTypeConfidence(t *testing.T) {
	tests := []struct {
		typ  MBIDType
		want float64
	}{
		{MBIDTypeRecording, 1.0},
		{MBIDTypeReleaseTrack, 0.95},
		{MBIDTypeRelease, 0.7},
		{MBIDTypeUnknown, 0.5},
		{MBIDType("bogus"), 0.5},
	}
	for _, tt := range tests {
		if got := tt.typ.Confidence(); got != tt.want {
			t.Errorf("Confidence(%s) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestMBIDSetDeduplicates(t *testing.T) {
	set := MBIDSet{}
	set.Add(NewScoredMBID("abc-123", MBIDTypeRelease))
	set.Add(NewScoredMBID("abc-123", MBIDTypeRecording))
	set.Add(NewScoredMBID("abc-123", MBIDTypeUnknown))

	if len(set) != 1 {
		t.Fatalf("expected 1 member, got %d", len(set))
	}
	if got := set["abc-123"].Confidence; got != 1.0 {
		t.Errorf("expected highest confidence kept, got %v", got)
	}
}

func TestMBIDSetSorted(t *testing.T) {
	set := MBIDSet{}
	set.Add(NewScoredMBID("bbb", MBIDTypeRelease))
	set.Add(NewScoredMBID("aaa", MBIDTypeRecording))
	set.Add(NewScoredMBID("ccc", MBIDTypeRecording))

	got := set.Sorted()
	if len(got) != 3 {
		t.Fatalf("expected 3 members, got %d", len(got))
	}
	if got[0].MBID != "aaa" || got[1].MBID != "ccc" || got[2].MBID != "bbb" {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestPlexTrackMBIDs(t *testing.T) {
	track := &PlexTrack{
		RatingKey: 1,
		GUIDs: StringSlice{
			"mbid://B1A2C3D4-0000-1111-2222-333344445555",
			"plex://track/5d07bbfd403c640290f42b5c",
			"mbid://{aaaa0000-1111-2222-3333-444455556666}",
		},
	}

	mbids := track.MBIDs()
	if len(mbids) != 2 {
		t.Fatalf("expected 2 MBIDs, got %d: %v", len(mbids), mbids)
	}
	if mbids[0] != "b1a2c3d4-0000-1111-2222-333344445555" {
		t.Errorf("expected normalized lowercase MBID, got %q", mbids[0])
	}
	if mbids[1] != "aaaa0000-1111-2222-3333-444455556666" {
		t.Errorf("expected braces stripped, got %q", mbids[1])
	}

	if got := track.PrimaryMBID(); got != "aaaa0000-1111-2222-3333-444455556666" {
		t.Errorf("PrimaryMBID() = %q, want smallest MBID", got)
	}
}

func TestPlexTrackPrimaryMBIDEmpty(t *testing.T) {
	track := &PlexTrack{RatingKey: 1, GUIDs: StringSlice{"plex://track/abc"}}
	if got := track.PrimaryMBID(); got != "" {
		t.Errorf("expected empty MBID, got %q", got)
	}
}
