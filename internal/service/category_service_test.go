package service

import (
	"context"
	"reflect"
	"testing"
)

func TestCategoryDescendantsCollectsAllLevels(t *testing.T) {
	env := setupServiceTest(t, "")
	root := env.createCategory(t, "apparel", nil)
	shirts := env.createCategory(t, "shirts", &root.ID)
	linen := env.createCategory(t, "linen-shirts", &shirts.ID)
	pants := env.createCategory(t, "pants", &root.ID)
	env.createCategory(t, "shoes", nil)

	got, err := env.categories.Descendants(context.Background(), root.ID)
	if err != nil {
		t.Fatalf("descendants failed: %v", err)
	}
	want := []uint{shirts.ID, linen.ID, pants.ID}
	sortUints(want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v got %v", want, got)
	}

	leaf, err := env.categories.Descendants(context.Background(), linen.ID)
	if err != nil {
		t.Fatalf("leaf descendants failed: %v", err)
	}
	if len(leaf) != 0 {
		t.Fatalf("leaf should have no descendants, got %v", leaf)
	}
}

func TestCategoryDescendantsStopsOnCycle(t *testing.T) {
	env := setupServiceTest(t, "")
	a := env.createCategory(t, "a", nil)
	b := env.createCategory(t, "b", &a.ID)
	c := env.createCategory(t, "c", &b.ID)
	// 人为制造环 a -> b -> c -> a
	if err := env.db.Model(a).Update("parent_id", c.ID).Error; err != nil {
		t.Fatalf("update parent failed: %v", err)
	}

	got, err := env.categories.Descendants(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("descendants failed: %v", err)
	}
	want := []uint{b.ID, c.ID}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v got %v", want, got)
	}
}

func TestCategoryExpandWithDescendants(t *testing.T) {
	env := setupServiceTest(t, "")
	c := env.createCategory(t, "c", nil)
	c1 := env.createCategory(t, "c1", &c.ID)
	d := env.createCategory(t, "d", nil)

	got, err := env.categories.ExpandWithDescendants(context.Background(), []uint{c.ID, c.ID, 0})
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	want := []uint{c.ID, c1.ID}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v got %v", want, got)
	}
	for _, id := range got {
		if id == d.ID {
			t.Fatalf("unrelated category %d should not be expanded", d.ID)
		}
	}
}

func sortUints(ids []uint) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
