package types

import "testing"

// The alias row struct and the transaction-log kind for alias rows are
// distinct names; both must be usable side by side.
func TestEntityKindConstants(t *testing.T) {
	kinds := map[EntityType]string{
		EntityEntry:     "entry",
		EntityTriple:    "triple",
		EntityEntity:    "entity",
		EntityAliasKind: "alias",
	}
	for kind, want := range kinds {
		if string(kind) != want {
			t.Errorf("kind = %q, want %q", kind, want)
		}
	}

	alias := EntityAlias{ID: "a1", Alias: "k8s", CanonicalEntityID: "e1"}
	if alias.Alias != "k8s" {
		t.Errorf("alias row = %+v", alias)
	}
}

func TestTxOpConstants(t *testing.T) {
	ops := []TxOp{OpCreate, OpUpdate, OpDelete, OpMerge, OpRevert}
	want := []string{"CREATE", "UPDATE", "DELETE", "MERGE", "REVERT"}
	for i, op := range ops {
		if string(op) != want[i] {
			t.Errorf("op = %q, want %q", op, want[i])
		}
	}
}
