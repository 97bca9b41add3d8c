package catalog

import "testing"

func TestTexts(t *testing.T) {
	c := New()
	c.SeedTexts(map[string][]string{"pause": {"machine jam", "break"}})

	if got := c.Texts("pause"); len(got) != 2 || got[0] != "break" {
		t.Fatalf("texts: %v", got)
	}
	if got := c.Texts("exit"); len(got) != 0 {
		t.Fatalf("unexpected exit texts: %v", got)
	}

	if err := c.AddText("exit", "end of shift"); err != nil {
		t.Fatalf("add: %v", err)
	}
	// duplicates collapse
	if err := c.AddText("exit", "end of shift"); err != nil {
		t.Fatalf("add dup: %v", err)
	}
	if got := c.Texts("exit"); len(got) != 1 {
		t.Fatalf("exit texts: %v", got)
	}

	c.RemoveText("exit", "end of shift")
	if got := c.Texts("exit"); len(got) != 0 {
		t.Fatalf("remove failed: %v", got)
	}

	if err := c.AddText("", "x"); err == nil {
		t.Fatal("empty category accepted")
	}
}

func TestStages(t *testing.T) {
	c := New()
	if err := c.PutStage("PKG", "packaging"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if label, ok := c.Stage("PKG"); !ok || label != "packaging" {
		t.Fatalf("stage: %q %v", label, ok)
	}
	if _, ok := c.Stage("NOPE"); ok {
		t.Fatal("unknown stage found")
	}
	if err := c.PutStage("", "x"); err == nil {
		t.Fatal("empty code accepted")
	}
	if len(c.Stages()) != 1 {
		t.Fatalf("stages: %v", c.Stages())
	}
}
