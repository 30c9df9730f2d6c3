package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), mode); err != nil {
		t.Fatal(err)
	}
}

func TestAutosaveSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, "frequency: 200\naxes:\n  - id: 4\n", 0600)

	ac, err := LoadAutosave(path)
	if err != nil {
		t.Fatalf("LoadAutosave: %v", err)
	}
	if ac.IsDirty() || !ac.LastSaved().IsZero() {
		t.Error("fresh config is dirty")
	}
	if err := ac.SetRangeLimit(9, RangeLimitConfig{}); err == nil {
		t.Error("expected error for unknown axis")
	}
	if err := ac.SetRangeLimit(4, RangeLimitConfig{SwLimitPositive: true, LimitPositive: 12.5}); err != nil {
		t.Fatal(err)
	}
	if !ac.IsDirty() {
		t.Error("not dirty after edit")
	}
	if err := ac.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ac.IsDirty() || ac.LastSaved().IsZero() {
		t.Error("still dirty after save")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load saved file: %v", err)
	}
	if reloaded.Frequency != 200 || reloaded.Axes[0].RangeLimit.LimitPositive != 12.5 {
		t.Errorf("saved config = %+v", reloaded)
	}
	if fi, err := os.Stat(path); err != nil || fi.Mode().Perm() != 0600 {
		t.Errorf("mode after save = %v, %v", fi.Mode(), err)
	}

	backups, err := Backups(path)
	if err != nil || len(backups) != 1 {
		t.Fatalf("backups = %v, %v", backups, err)
	}
	old, err := Load(backups[0])
	if err != nil || old.Axes[0].RangeLimit.LimitPositive != 0 {
		t.Errorf("backup holds %+v, %v", old, err)
	}
}

func TestAutosaveRejectsInvalidEdit(t *testing.T) {
	c := Default()
	ac := NewAutosaveConfig(&c, "")
	id := c.Axes[0].ID
	bad := RangeLimitConfig{SwLimitPositive: true, SwLimitNegative: true, LimitPositive: -1, LimitNegative: 1}
	if err := ac.SetRangeLimit(id, bad); err == nil {
		t.Fatal("inverted limits accepted")
	}
	if ac.IsDirty() || ac.Config().Axes[0].RangeLimit != (RangeLimitConfig{}) {
		t.Error("rejected edit was kept")
	}
	// the caller's config is never modified
	if err := ac.SetRangeLimit(id, RangeLimitConfig{LimitPositive: 2}); err != nil {
		t.Fatal(err)
	}
	if c.Axes[0].RangeLimit.LimitPositive != 0 {
		t.Error("edit leaked into the wrapped config")
	}
}

func TestPruneBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, "axes:\n  - id: 1\n", 0644)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < KeepBackups+3; i++ {
		writeFile(t, backupName(path, base.Add(time.Duration(i)*time.Minute)), "x", 0644)
	}
	// not a backup
	writeFile(t, filepath.Join(dir, "motiond-notes.yml"), "x", 0644)

	if err := pruneBackups(path, KeepBackups); err != nil {
		t.Fatal(err)
	}
	backups, _ := Backups(path)
	if len(backups) != KeepBackups {
		t.Fatalf("kept %d backups, want %d", len(backups), KeepBackups)
	}
	if want := backupName(path, base.Add(3*time.Minute)); backups[0] != want {
		t.Errorf("oldest kept = %s, want %s", backups[0], want)
	}
	if _, err := os.Stat(filepath.Join(dir, "motiond-notes.yml")); err != nil {
		t.Error("pruned an unrelated file")
	}
}

func TestAutosaveReloadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, "axes:\n  - id: 1\n", 0644)
	ac, err := LoadAutosave(path)
	if err != nil {
		t.Fatal(err)
	}
	ac.SetRangeLimit(1, RangeLimitConfig{LimitPositive: 3})
	if err := ac.ReloadFromDisk(); err != nil {
		t.Fatal(err)
	}
	if ac.IsDirty() || ac.Config().Axes[0].RangeLimit.LimitPositive != 0 {
		t.Error("reload kept edits")
	}
}

func TestAutosaveWithoutPath(t *testing.T) {
	c := Default()
	ac := NewAutosaveConfig(&c, "")
	if err := ac.Save(); err == nil {
		t.Error("expected error without a path")
	}
	if err := ac.ReloadFromDisk(); err == nil {
		t.Error("expected error without a path")
	}
}
