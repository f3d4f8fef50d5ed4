package storage

import (
	"strings"
	"testing"
	"time"
)

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for in, want := range cases {
		if got := FormatSize(in); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	if got := ContentTypeFor("tracks/a/b.MP3"); got != "audio/mpeg" {
		t.Errorf("mp3 = %q", got)
	}
	if got := ContentTypeFor("tracks/a/b"); got != "application/octet-stream" {
		t.Errorf("no ext = %q", got)
	}
}

func TestBucketStatsAdd(t *testing.T) {
	stats := &BucketStats{TypeCounts: map[string]int64{}}
	later := time.Now()
	stats.Add(ObjectInfo{Key: "a.mp3", Size: 10, LastModified: later.Add(-time.Hour)})
	stats.Add(ObjectInfo{Key: "b.mp3", Size: 5, LastModified: later})
	stats.Add(ObjectInfo{Key: "c.wav", Size: 1})

	if stats.TotalObjects != 3 || stats.TotalSize != 16 {
		t.Errorf("totals = %d/%d", stats.TotalObjects, stats.TotalSize)
	}
	if !stats.LastModified.Equal(later) {
		t.Errorf("lastModified = %v", stats.LastModified)
	}
	if stats.TypeCounts["mp3"] != 2 || stats.TypeCounts["wav"] != 1 {
		t.Errorf("type counts = %v", stats.TypeCounts)
	}
}

func TestTrackObjectName(t *testing.T) {
	name := TrackObjectName("abc", ".mp3")
	if !strings.HasPrefix(name, "tracks/abc/") || !strings.HasSuffix(name, ".mp3") {
		t.Errorf("name = %q", name)
	}
	if TrackObjectName("abc", ".mp3") == name {
		t.Error("object names must be unique")
	}
}
