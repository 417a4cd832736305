package transcripts

import "testing"

func TestPodcastID(t *testing.T) {
	id, err := PodcastID("RSS_1321")
	if err != nil || id != 1321 {
		t.Errorf("PodcastID(RSS_1321) = %d, %v", id, err)
	}
	if _, err := PodcastID("episodes"); err == nil {
		t.Error("non-RSS collection must be rejected")
	}
	if _, err := PodcastID("RSS_abc"); err == nil {
		t.Error("non-numeric suffix must be rejected")
	}
}

func TestDocumentText(t *testing.T) {
	raw := Document{File: "ep1.json", Transcript: "原始逐字稿"}
	if raw.Text() != "原始逐字稿" {
		t.Errorf("raw transcript preferred, got %q", raw.Text())
	}

	chunked := Document{File: "ep2.json", Chunks: []SourceChunk{
		{ChunkText: "第二段", ChunkIndex: 1},
		{ChunkText: "第一段", ChunkIndex: 0},
		{ChunkText: "  ", ChunkIndex: 2},
	}}
	if chunked.Text() != "第一段\n第二段" {
		t.Errorf("chunks must rejoin in order, got %q", chunked.Text())
	}
}
