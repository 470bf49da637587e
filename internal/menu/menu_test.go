package menu

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

const testDoc = `{
  "restaurant": {"name": "한마음 버거", "description": "voice kiosk test menu"},
  "categories": ["버거", "사이드", "음료"],
  "items": {
    "빅맥": {"category": "버거", "price": 6500, "description": "시그니처 버거",
             "available_options": {"type": ["단품", "세트", "라지세트"]}},
    "불고기버거": {"category": "버거", "price": 5500, "description": "달콤한 불고기 소스",
             "available_options": {"type": ["단품", "세트", "라지세트"]}},
    "감자튀김": {"category": "사이드", "price": 2500, "description": "바삭한 감자",
             "available_options": {"size": ["미디엄", "라지"]}},
    "콜라": {"category": "음료", "price": 2000, "description": "시원한 탄산음료"},
    "사이다": {"category": "음료", "price": 2000, "description": "시원한 탄산음료", "available": false}
  },
  "set_pricing": {"세트": 2000, "라지세트": 3000},
  "option_pricing": {"size=라지": 500}
}`

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := LoadBytes([]byte(testDoc))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	return c
}

func TestGet_CaseInsensitive(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)

	it, ok := c.Get("빅맥")
	if !ok || it.Price != 6500 {
		t.Fatalf("Get(빅맥) = %+v, %v", it, ok)
	}
	if _, ok := c.Get(" 빅맥 "); !ok {
		t.Error("Get should trim surrounding whitespace")
	}
	if _, ok := c.Get("없는메뉴"); ok {
		t.Error("Get(없는메뉴) should miss")
	}
}

func TestParse_RejectsUndeclaredCategory(t *testing.T) {
	t.Parallel()
	_, err := LoadBytes([]byte(`{
	  "categories": ["버거"],
	  "items": {"콜라": {"category": "음료", "price": 2000}}
	}`))
	if err == nil {
		t.Fatal("expected error for undeclared category")
	}
}

func TestItemsByCategory(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)

	drinks := c.ItemsByCategory("음료", false)
	if len(drinks) != 2 {
		t.Fatalf("음료 items = %d, want 2", len(drinks))
	}
	available := c.ItemsByCategory("음료", true)
	if len(available) != 1 || available[0].Name != "콜라" {
		t.Fatalf("available 음료 = %+v, want only 콜라", available)
	}
}

func TestSearch_ExactBeforeKeyword(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)

	res := c.Search("빅맥", "", true, 0)
	if len(res.Items) == 0 || res.Items[0].Name != "빅맥" {
		t.Fatalf("Search(빅맥) first hit = %+v, want 빅맥", res.Items)
	}
}

func TestSearch_KeywordAndDescription(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)

	// "탄산음료" appears only in descriptions.
	res := c.Search("탄산음료", "", false, 0)
	if res.Total != 2 {
		t.Fatalf("Search(탄산음료) total = %d, want 2", res.Total)
	}
}

func TestSearch_Substring(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)

	res := c.Search("불고기", "", true, 0)
	found := false
	for _, it := range res.Items {
		if it.Name == "불고기버거" {
			found = true
		}
	}
	if !found {
		t.Errorf("Search(불고기) = %v, want 불고기버거 included", res.Items)
	}
}

func TestSearch_OrderAndLimit(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)

	// All four available items mention nothing in common; search by a token
	// hitting both burgers through the 2-gram "버거".
	res := c.Search("버거", "", true, 1)
	if res.Total < 2 {
		t.Fatalf("Search(버거) total = %d, want >= 2", res.Total)
	}
	if len(res.Items) != 1 {
		t.Fatalf("limit not applied: got %d items", len(res.Items))
	}
	// Declared category order puts 버거 first; within it names sort.
	if res.Items[0].Category != "버거" {
		t.Errorf("first hit category = %q, want 버거", res.Items[0].Category)
	}
}

func TestSearch_FuzzyFallback(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)

	name, ok := c.ResolveName("빅맥 ")
	if !ok || name != "빅맥" {
		t.Fatalf("ResolveName(빅맥 ) = %q, %v", name, ok)
	}
	if _, ok := c.ResolveName("완전히다른것"); ok {
		t.Error("ResolveName should reject distant names")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)

	tests := []struct {
		name    string
		item    string
		qty     int
		options map[string]string
		wantErr error
	}{
		{"ok plain", "콜라", 1, nil, nil},
		{"ok with option", "빅맥", 2, map[string]string{"type": "세트"}, nil},
		{"unknown item", "없는메뉴", 1, nil, ErrItemNotFound},
		{"unavailable", "사이다", 1, nil, ErrItemUnavailable},
		{"bad option value", "빅맥", 1, map[string]string{"type": "더블세트"}, ErrInvalidOption},
		{"bad option key", "콜라", 1, map[string]string{"type": "세트"}, ErrInvalidOption},
		{"zero quantity", "콜라", 0, nil, ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := c.Validate(tt.item, tt.qty, tt.options)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetAvailability_IndexRoundTrip(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)

	before := c.snap.Load().keywords
	if err := c.SetAvailability("빅맥", false); err != nil {
		t.Fatalf("SetAvailability(false): %v", err)
	}
	if res := c.Search("빅맥", "", true, 0); len(res.Items) != 0 {
		t.Errorf("unavailable item still searchable: %v", res.Items)
	}
	if err := c.SetAvailability("빅맥", true); err != nil {
		t.Fatalf("SetAvailability(true): %v", err)
	}

	after := c.snap.Load().keywords
	if !reflect.DeepEqual(before, after) {
		t.Error("keyword index differs after availability round trip")
	}
}

func TestOptionSurcharge(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)

	if got := c.OptionSurcharge("type", "세트"); got != 2000 {
		t.Errorf("세트 surcharge = %d, want 2000", got)
	}
	if got := c.OptionSurcharge("type", "단품"); got != 0 {
		t.Errorf("단품 surcharge = %d, want 0", got)
	}
	if got := c.OptionSurcharge("size", "라지"); got != 500 {
		t.Errorf("size=라지 surcharge = %d, want 500", got)
	}
}

func TestReload_OnMtimeAdvance(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "menu.json")
	if err := os.WriteFile(path, []byte(testDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Unchanged mtime: no reload.
	reloaded, err := c.Reload()
	if err != nil || reloaded {
		t.Fatalf("Reload on unchanged file = %v, %v", reloaded, err)
	}

	// Rewrite with a price change and a future mtime.
	updated := []byte(`{
	  "categories": ["버거"],
	  "items": {"빅맥": {"category": "버거", "price": 7000}}
	}`)
	if err := os.WriteFile(path, updated, 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	reloaded, err = c.Reload()
	if err != nil || !reloaded {
		t.Fatalf("Reload after change = %v, %v", reloaded, err)
	}
	if it, _ := c.Get("빅맥"); it.Price != 7000 {
		t.Errorf("price after reload = %d, want 7000", it.Price)
	}
}

func TestReload_KeepsOldOnParseError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "menu.json")
	if err := os.WriteFile(path, []byte(testDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Reload(); err == nil {
		t.Fatal("expected parse error")
	}
	if _, ok := c.Get("빅맥"); !ok {
		t.Error("old snapshot lost after failed reload")
	}
}
