package outcome

import "testing"

func TestDiagnostic(t *testing.T) {
	if d := Ok(3).Diagnostic("topics"); d != "" {
		t.Fatalf("Ok 不应产生诊断: %q", d)
	}
	if d := Skipped[int]("budget").Diagnostic("topics_llm"); d != "topics_llm_skipped:budget" {
		t.Fatalf("诊断格式不符: %q", d)
	}
	if d := Failedf[string]("http %d", 502).Diagnostic("radar"); d != "radar_failed:http 502" {
		t.Fatalf("诊断格式不符: %q", d)
	}
}
