package safepath

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func realTempDir(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("eval temp root: %v", err)
	}
	return root
}

func TestJoinAllowsNestedAndMissingLeaf(t *testing.T) {
	t.Parallel()
	root := realTempDir(t)
	if err := os.MkdirAll(filepath.Join(root, "images"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := Join(root, filepath.Join("images", "cat.png"))
	if err != nil {
		t.Fatalf("join allowed path: %v", err)
	}
	if want := filepath.Join(root, "images", "cat.png"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestJoinRejectsTraversalAndAbsolute(t *testing.T) {
	t.Parallel()
	root := realTempDir(t)

	for _, name := range []string{
		filepath.Join("..", "etc", "passwd"),
		filepath.Join("a", "..", "..", "x"),
		"..",
		".",
		"",
		filepath.Join(root, "abs.png"),
	} {
		if _, err := Join(root, name); err == nil {
			t.Fatalf("expected rejection for %q", name)
		}
	}
}

func TestJoinRejectsSymlinkComponent(t *testing.T) {
	t.Parallel()
	root := realTempDir(t)
	outside := realTempDir(t)
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := Join(root, filepath.Join("link", "cat.png"))
	if err == nil || !strings.Contains(err.Error(), "symlink") {
		t.Fatalf("expected symlink rejection, got %v", err)
	}
}

func TestJoinFollowsSymlinkedRoot(t *testing.T) {
	t.Parallel()
	targetDir := realTempDir(t)
	linkParent := realTempDir(t)
	linkRoot := filepath.Join(linkParent, "root")
	if err := os.Symlink(targetDir, linkRoot); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got, err := Join(linkRoot, "out.png")
	if err != nil {
		t.Fatalf("join under symlinked root: %v", err)
	}
	if want := filepath.Join(targetDir, "out.png"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"T1":              "T1",
		"task/../../x":    "task-..-..-x",
		"  spaced name  ": "spaced-name",
		"...":             "output",
		"a:b*c?.png":      "a-b-c-.png",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
