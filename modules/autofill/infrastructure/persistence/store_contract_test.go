package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/ports"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
)

// runConfigStoreContract checks the behavior every ConfigStore backend shares.
func runConfigStoreContract(t *testing.T, s ports.ConfigStore) {
	t.Helper()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	owner, err := s.CreateConfiguration(ctx, types.Configuration{ID: "cfg-1", Name: "Inbound", LocationID: "loc-1", CreatedAt: t0, UpdatedAt: t0})
	if err != nil {
		t.Fatalf("create configuration err=%v", err)
	}
	if _, err := s.CreateConfiguration(ctx, types.Configuration{ID: "cfg-2", Name: "Other", LocationID: "loc-2", CreatedAt: t0.Add(time.Second), UpdatedAt: t0}); err != nil {
		t.Fatalf("create configuration err=%v", err)
	}

	list, err := s.ListConfigurations(ctx)
	if err != nil || len(list) != 2 || list[0].ID != "cfg-1" {
		t.Fatalf("list=%v err=%v", list, err)
	}

	owner.Name = "Renamed"
	owner.UpdatedAt = t0.Add(time.Hour)
	if _, err := s.UpdateConfiguration(ctx, owner); err != nil {
		t.Fatalf("update configuration err=%v", err)
	}
	got, err := s.GetConfiguration(ctx, "cfg-1")
	if err != nil || got.Name != "Renamed" || !got.UpdatedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("got=%+v err=%v", got, err)
	}
	if _, err := s.GetConfiguration(ctx, "missing"); !errors.Is(err, ports.ErrConfigurationNotFound) {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.UpdateConfiguration(ctx, types.Configuration{ID: "missing"}); !errors.Is(err, ports.ErrConfigurationNotFound) {
		t.Fatalf("err=%v", err)
	}

	parent := "folder-1"
	pos := 3
	fields := []types.ExtractionFieldConfig{
		{ID: "f-late", SortOrder: 2, TargetKey: "contact.city", TargetKind: types.TargetKindStandard, CreatedAt: t0},
		{ID: "f-b", SortOrder: 1, TargetKey: "cf_budget", TargetKind: types.TargetKindCustom, CreatedAt: t0.Add(time.Minute),
			OriginalRemoteSnapshot: &types.RemoteFieldSnapshot{ID: "cf_budget", Name: "Budget", DataType: "MONETORY", ParentID: &parent, Position: &pos}},
		{ID: "f-a", SortOrder: 1, TargetKey: "contact.email", CreatedAt: t0},
	}
	for _, f := range fields {
		f.ConfigurationID = "cfg-1"
		f.FieldName = f.ID
		f.FieldType = "TEXT"
		f.OverwritePolicy = types.OverwriteIfEmpty
		f.UpdatedAt = f.CreatedAt
		if _, err := s.CreateFieldConfig(ctx, f); err != nil {
			t.Fatalf("create field %s err=%v", f.ID, err)
		}
	}

	ordered, err := s.ListFieldConfigs(ctx, "cfg-1")
	if err != nil || len(ordered) != 3 {
		t.Fatalf("ordered=%v err=%v", ordered, err)
	}
	if ordered[0].ID != "f-a" || ordered[1].ID != "f-b" || ordered[2].ID != "f-late" {
		t.Fatalf("order=%s,%s,%s", ordered[0].ID, ordered[1].ID, ordered[2].ID)
	}
	if ordered[0].TargetKind != types.TargetKindStandard {
		t.Fatalf("legacy kind=%q", ordered[0].TargetKind)
	}
	snap := ordered[1].OriginalRemoteSnapshot
	if snap == nil || snap.Name != "Budget" || snap.ParentID == nil || *snap.ParentID != "folder-1" || snap.Position == nil || *snap.Position != 3 {
		t.Fatalf("snapshot=%+v", snap)
	}

	empty, err := s.ListFieldConfigs(ctx, "cfg-2")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty=%v err=%v", empty, err)
	}

	dup := types.ExtractionFieldConfig{ID: "f-dup", ConfigurationID: "cfg-1", FieldName: "dup", TargetKey: "contact.city", CreatedAt: t0, UpdatedAt: t0}
	if _, err := s.CreateFieldConfig(ctx, dup); !errors.Is(err, ports.ErrTargetKeyConflict) {
		t.Fatalf("dup err=%v", err)
	}
	dup.ConfigurationID = "cfg-2"
	if _, err := s.CreateFieldConfig(ctx, dup); err != nil {
		t.Fatalf("same key in another configuration err=%v", err)
	}
	orphan := types.ExtractionFieldConfig{ID: "f-orphan", ConfigurationID: "missing", FieldName: "x", TargetKey: "x", CreatedAt: t0, UpdatedAt: t0}
	if _, err := s.CreateFieldConfig(ctx, orphan); !errors.Is(err, ports.ErrConfigurationNotFound) {
		t.Fatalf("orphan err=%v", err)
	}

	edit, err := s.GetFieldConfig(ctx, "cfg-1", "f-a")
	if err != nil {
		t.Fatalf("get field err=%v", err)
	}
	edit.TargetKey = "contact.city"
	if _, err := s.UpdateFieldConfig(ctx, edit); !errors.Is(err, ports.ErrTargetKeyConflict) {
		t.Fatalf("update conflict err=%v", err)
	}
	edit.TargetKey = "contact.phone"
	edit.OriginalRemoteSnapshot = nil
	if _, err := s.UpdateFieldConfig(ctx, edit); err != nil {
		t.Fatalf("update err=%v", err)
	}
	if reread, _ := s.GetFieldConfig(ctx, "cfg-1", "f-a"); reread.TargetKey != "contact.phone" {
		t.Fatalf("reread=%+v", reread)
	}
	if _, err := s.GetFieldConfig(ctx, "cfg-2", "f-a"); !errors.Is(err, ports.ErrFieldConfigNotFound) {
		t.Fatalf("cross-owner get err=%v", err)
	}
	missing := edit
	missing.ID = "f-missing"
	if _, err := s.UpdateFieldConfig(ctx, missing); !errors.Is(err, ports.ErrFieldConfigNotFound) {
		t.Fatalf("update missing err=%v", err)
	}

	if err := s.DeleteFieldConfig(ctx, "cfg-1", "f-late"); err != nil {
		t.Fatalf("delete field err=%v", err)
	}
	if err := s.DeleteFieldConfig(ctx, "cfg-1", "f-late"); !errors.Is(err, ports.ErrFieldConfigNotFound) {
		t.Fatalf("delete again err=%v", err)
	}

	if err := s.DeleteConfiguration(ctx, "cfg-1"); err != nil {
		t.Fatalf("delete configuration err=%v", err)
	}
	if rest, err := s.ListFieldConfigs(ctx, "cfg-1"); err != nil || len(rest) != 0 {
		t.Fatalf("cascade rest=%v err=%v", rest, err)
	}
	if err := s.DeleteConfiguration(ctx, "cfg-1"); !errors.Is(err, ports.ErrConfigurationNotFound) {
		t.Fatalf("delete again err=%v", err)
	}
	if other, err := s.ListFieldConfigs(ctx, "cfg-2"); err != nil || len(other) != 1 {
		t.Fatalf("other=%v err=%v", other, err)
	}
}

func TestConfigMemoryStore_Contract(t *testing.T) {
	runConfigStoreContract(t, NewConfigMemoryStore())
}

func TestConfigMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewConfigMemoryStore()
	if _, err := s.CreateConfiguration(ctx, types.Configuration{ID: "cfg-1"}); err != nil {
		t.Fatalf("err=%v", err)
	}
	in := types.ExtractionFieldConfig{
		ID: "f-1", ConfigurationID: "cfg-1", TargetKey: "cf_1",
		OriginalRemoteSnapshot: &types.RemoteFieldSnapshot{ID: "cf_1", Name: "Budget"},
	}
	if _, err := s.CreateFieldConfig(ctx, in); err != nil {
		t.Fatalf("err=%v", err)
	}
	in.OriginalRemoteSnapshot.Name = "mutated"

	got, _ := s.GetFieldConfig(ctx, "cfg-1", "f-1")
	if got.OriginalRemoteSnapshot.Name != "Budget" {
		t.Fatalf("stored value aliased caller: %q", got.OriginalRemoteSnapshot.Name)
	}
	got.OriginalRemoteSnapshot.Name = "mutated"
	again, _ := s.GetFieldConfig(ctx, "cfg-1", "f-1")
	if again.OriginalRemoteSnapshot.Name != "Budget" {
		t.Fatalf("read value aliased store: %q", again.OriginalRemoteSnapshot.Name)
	}
}
