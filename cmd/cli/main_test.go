package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TAXO_STORE_BACKEND", "memory")
	t.Setenv("TAXO_SOURCE_GCS", "false")
	t.Setenv("TAXO_LOG_LEVEL", "error")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"automap", "bootstrap", "delete-marketplace", "export", "import", "stats"}
	var got []string
	for _, c := range newRootCommand().Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		found := false
		for _, g := range got {
			if g == name {
				found = true
			}
		}
		if !found {
			t.Errorf("Missing subcommand %q in %v", name, got)
		}
	}
}

func TestBootstrap(t *testing.T) {
	out, err := run(t, "bootstrap")
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	for _, sheet := range []string{"categories", "marketplaces"} {
		if !strings.Contains(out, sheet) {
			t.Errorf("Expected %q in output, got:\n%s", sheet, out)
		}
	}
}

func TestImport_RequiresFlags(t *testing.T) {
	if _, err := run(t, "import", "--file", "x.csv"); err == nil {
		t.Error("Expected error without --marketplace")
	}
}

func TestImport_UnknownMarketplace(t *testing.T) {
	file := filepath.Join(t.TempDir(), "shop.csv")
	if err := os.WriteFile(file, []byte("Category ID,Category\n1,Shoes\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "import", "--marketplace", "mkt-000001", "--file", file); err == nil {
		t.Error("Expected error for a marketplace that does not exist")
	}
}

func TestAutoMap_BadKind(t *testing.T) {
	if _, err := run(t, "automap", "--kind", "brand"); err == nil {
		t.Error("Expected error for unknown kind")
	}
}

func TestExport_WithoutTable(t *testing.T) {
	if _, err := run(t, "export"); err == nil {
		t.Error("Expected error when no export table is configured")
	}
}
