package collection

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func fullModel() *CollectionModel {
	return &CollectionModel{Value: []Column{
		{ColumnName: "plant", DataType: TypeText},
		{ColumnName: "temperature", DataType: TypeNumber, Unit: "C"},
		{ColumnName: "watered", DataType: TypeBool},
		{ColumnName: "day", DataType: TypeDate},
		{ColumnName: "at", DataType: TypeTime},
	}}
}

func fullRow() Row {
	return Row{
		{Column: "plant", Data: "cactus"},
		{Column: "temperature", Data: "21.5"},
		{Column: "watered", Data: "true"},
		{Column: "day", Data: "2026-08-30"},
		{Column: "at", Data: "14:30"},
	}
}

func TestValidateRow(t *testing.T) {
	m := fullModel()

	if messages := m.ValidateRow(fullRow()); len(messages) != 0 {
		t.Fatalf("valid row rejected: %v", messages)
	}

	cases := []struct {
		name   string
		mutate func(Row) Row
		want   string
	}{
		{
			"unknown column",
			func(r Row) Row { return append(r, Cell{Column: "ghost", Data: "x"}) },
			"ghost is not allowed",
		},
		{
			"duplicate column",
			func(r Row) Row { return append(r, Cell{Column: "plant", Data: "fern"}) },
			"plant is set more than once",
		},
		{
			"bad number",
			func(r Row) Row { r[1].Data = "warm"; return r },
			`temperature has to be "number"`,
		},
		{
			"bad date",
			func(r Row) Row { r[3].Data = "30.08.2026"; return r },
			`day has to be "date"`,
		},
		{
			"bad time",
			func(r Row) Row { r[4].Data = "2pm"; return r },
			`at has to be "time"`,
		},
		{
			"missing column",
			func(r Row) Row { return r[:4] },
			"at is missing or not valid",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			messages := m.ValidateRow(tc.mutate(fullRow()))
			if len(messages) == 0 {
				t.Fatal("expected a validation message")
			}
			found := false
			for _, msg := range messages {
				if msg == tc.want {
					found = true
				}
			}
			if !found {
				t.Errorf("messages %v do not contain %q", messages, tc.want)
			}
		})
	}
}

func TestValidateColumns(t *testing.T) {
	if err := ValidateColumns(nil); err == nil {
		t.Error("empty schema must be rejected")
	}
	if err := ValidateColumns([]Column{
		{ColumnName: "a", DataType: TypeText},
		{ColumnName: "a", DataType: TypeNumber},
	}); err == nil {
		t.Error("duplicate names must be rejected")
	}
	if err := ValidateColumns([]Column{
		{ColumnName: "a", DataType: "json"},
	}); err == nil {
		t.Error("unknown data type must be rejected")
	}
	if err := ValidateColumns([]Column{
		{ColumnName: "temperature", DataType: TypeNumber, Unit: "celsius"},
	}); err == nil {
		t.Error("oversized unit must be rejected")
	}
	if err := ValidateColumns([]Column{
		{ColumnName: "this name is way too long", DataType: TypeText},
	}); err == nil {
		t.Error("oversized column name must be rejected")
	}
}

func TestRowLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := Identity{ID: uuid.New(), Email: "owner@example.com"}
	c := mustCreate(t, db, "Garden", owner.ID)

	row := Row{
		{Column: "plant", Data: "cactus"},
		{Column: "temperature", Data: "21.5"},
	}
	if err := AppendRow(ctx, db, c.ID, row); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}

	bad := Row{{Column: "plant", Data: "fern"}}
	if err := AppendRow(ctx, db, c.ID, bad); err == nil {
		t.Fatal("incomplete row must be rejected")
	}

	edited := Row{
		{Column: "plant", Data: "fern"},
		{Column: "temperature", Data: "18"},
	}
	if err := EditRowAt(ctx, db, c.ID, 0, edited); err != nil {
		t.Fatalf("EditRowAt: %v", err)
	}
	if err := EditRowAt(ctx, db, c.ID, 5, edited); err == nil {
		t.Fatal("out of range edit must fail")
	}

	d, err := GetData(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if len(d.Value) != 1 || d.Value[0].Cell("plant").Data != "fern" {
		t.Fatal("edit not persisted")
	}

	simple := d.Simplified()
	if len(simple) != 1 || simple[0]["temperature"] != "18" {
		t.Fatalf("Simplified = %v", simple)
	}

	if err := DeleteRowAt(ctx, db, c.ID, 1); err == nil {
		t.Fatal("out of range delete must fail")
	}
	if err := DeleteRowAt(ctx, db, c.ID, 0); err != nil {
		t.Fatalf("DeleteRowAt: %v", err)
	}
	d, err = GetData(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if len(d.Value) != 0 {
		t.Fatal("delete not persisted")
	}
}

func TestSettingsLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := Identity{ID: uuid.New(), Email: "owner@example.com"}
	c := mustCreate(t, db, "Garden", owner.ID)

	presets, err := ListSettings(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("ListSettings: %v", err)
	}
	if len(presets) != 1 {
		t.Fatalf("expected the default preset, got %d", len(presets))
	}

	if err := DeleteSettings(ctx, db, c.ID, presets[0].ID); err == nil {
		t.Fatal("last preset must not be deletable")
	}

	extra, err := CreateSettings(ctx, db, c.ID, "compact", []byte(`{"columns":["plant"]}`))
	if err != nil {
		t.Fatalf("CreateSettings: %v", err)
	}

	updated, err := UpdateSettings(ctx, db, c.ID, extra.ID, "wide", []byte(`{"columns":["plant","temperature"]}`))
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if updated.Name != "wide" {
		t.Fatalf("name = %q", updated.Name)
	}

	if err := DeleteSettings(ctx, db, c.ID, extra.ID); err != nil {
		t.Fatalf("DeleteSettings: %v", err)
	}
	presets, err = ListSettings(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("ListSettings: %v", err)
	}
	if len(presets) != 1 || presets[0].Name != "default" {
		t.Fatal("only the default preset should remain")
	}
}
