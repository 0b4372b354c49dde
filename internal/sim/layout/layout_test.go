package layout

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Configs(t *testing.T) {
	l, err := Load("../../../configs/layout.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(l.Structures) == 0 {
		t.Fatalf("empty layout")
	}
	var tank Placement
	for _, p := range l.Structures {
		if p.ID == "tank-1" {
			tank = p
		}
	}
	if tank.Def != "TANK" || tank.Pos != [2]int{3, 0} || tank.Contents["WATER"] != 40 {
		t.Fatalf("tank=%+v", tank)
	}
}

func TestLoad_RejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	body := "structures:\n  - {id: a, def: PIPE, pos: [0, 0]}\n  - {id: a, def: PIPE, pos: [1, 0]}\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}
