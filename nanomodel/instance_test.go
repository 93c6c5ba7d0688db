package nanomodel_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jmgilman/go/errors"

	"github.com/arthur-debert/nanomodel/nanomodel"
	"github.com/arthur-debert/nanomodel/nanomodel/testutil"
	"github.com/arthur-debert/nanomodel/types"
)

func TestInstanceUpdate(t *testing.T) {
	ctx := context.Background()
	u := testutil.LoadUniverse(t)
	bob, err := u.Users.FindByID(ctx, testutil.BobID, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = bob.Update(ctx, types.Document{"$set": map[string]any{"age": "50", "address.city": "Porto"}}, nil)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if age, _ := bob.Get("age"); age != 50.0 {
		t.Errorf("expected the local age coerced to 50, got %#v", age)
	}
	stored, _ := u.Users.FindOneRaw(ctx, types.Document{types.IDField: testutil.BobID}, nil)
	if stored["age"] != 50.0 || stored["address"].(map[string]any)["city"] != "Porto" {
		t.Errorf("unexpected stored document %v", stored)
	}

	// $setpath writes the in-memory value
	if err := bob.Set("tags", []any{"x", 2}); err != nil {
		t.Fatal(err)
	}
	if err := bob.Update(ctx, types.Document{"$setpath": "tags"}, nil); err != nil {
		t.Fatal(err)
	}
	stored, _ = u.Users.FindOneRaw(ctx, types.Document{types.IDField: testutil.BobID}, nil)
	if diff := cmp.Diff([]any{"x", "2"}, stored["tags"]); diff != "" {
		t.Errorf("setpath mismatch (-want +got):\n%s", diff)
	}

	u.Counter.Reset()
	err = bob.Update(ctx, types.Document{"$set": map[string]any{"nickname": "B"}}, nil)
	testutil.AssertCode(t, err, types.CodeSchemaDrift)
	err = bob.Update(ctx, types.Document{"$set": map[string]any{"age": "old"}}, nil)
	testutil.AssertCode(t, err, types.CodeTypeMismatch)
	testutil.AssertCalls(t, u.Counter, "update", 0)

	fresh, _ := u.Users.New(types.Document{"name": "Eve"})
	err = fresh.Update(ctx, types.Document{"$set": map[string]any{"age": 1}}, nil)
	testutil.AssertCode(t, err, types.CodeBadQuery)
}

func TestOperatorUpdatesAreValidated(t *testing.T) {
	ctx := context.Background()
	u := testutil.LoadUniverse(t)
	bob, err := u.Users.FindByID(ctx, testutil.BobID, nil)
	if err != nil {
		t.Fatal(err)
	}

	u.Counter.Reset()
	tests := []struct {
		name   string
		update types.Document
		code   errors.ErrorCode
	}{
		{"wrong element type", types.Document{"$push": map[string]any{"tags": map[string]any{"bad": true}}}, types.CodeTypeMismatch},
		{"wrong element in $each", types.Document{"$addToSet": map[string]any{"tags": map[string]any{"$each": []any{"ok", []any{1}}}}}, types.CodeTypeMismatch},
		{"undeclared push", types.Document{"$push": map[string]any{"undeclaredField": 1}}, types.CodeSchemaDrift},
		{"undeclared inc", types.Document{"$inc": map[string]any{"visits": 1}}, types.CodeSchemaDrift},
		{"push to a scalar", types.Document{"$push": map[string]any{"name": "x"}}, types.CodeTypeMismatch},
		{"inc a string", types.Document{"$inc": map[string]any{"email": 1}}, types.CodeTypeMismatch},
		{"unset a required field", types.Document{"$unset": map[string]any{"name": true}}, types.CodeRequiredFieldMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertCode(t, bob.Update(ctx, tt.update, nil), tt.code)
		})
	}
	testutil.AssertCalls(t, u.Counter, "update", 0)

	again, err := u.Users.FindByID(ctx, testutil.BobID, nil)
	if err != nil {
		t.Fatalf("expected Bob to stay readable, got %v", err)
	}
	if diff := cmp.Diff([]any{}, again.Document()["tags"]); diff != "" {
		t.Errorf("tags changed (-want +got):\n%s", diff)
	}

	// pushed elements are coerced before they are stored
	if err := bob.Update(ctx, types.Document{"$push": map[string]any{"tags": 7}}, nil); err != nil {
		t.Fatal(err)
	}
	stored, _ := u.Users.FindOneRaw(ctx, types.Document{types.IDField: testutil.BobID}, nil)
	if diff := cmp.Diff([]any{"7"}, stored["tags"]); diff != "" {
		t.Errorf("stored tags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"7"}, bob.Document()["tags"]); diff != "" {
		t.Errorf("local tags mismatch (-want +got):\n%s", diff)
	}
}

func TestIncThenSaveKeepsStoredValue(t *testing.T) {
	ctx := context.Background()
	u := testutil.LoadUniverse(t)
	bob, err := u.Users.FindByID(ctx, testutil.BobID, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := bob.Update(ctx, types.Document{"$inc": map[string]any{"age": 1}}, nil); err != nil {
		t.Fatal(err)
	}
	if age, _ := bob.Get("age"); age != 43.0 {
		t.Errorf("expected the local age to follow $inc, got %#v", age)
	}
	if _, err := bob.Save(ctx, nil); err != nil {
		t.Fatal(err)
	}
	again, err := u.Users.FindByID(ctx, testutil.BobID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if age, _ := again.Get("age"); age != 43.0 {
		t.Errorf("expected Save to keep the incremented age, got %#v", age)
	}
}

func TestRemoveMakesInstanceStale(t *testing.T) {
	ctx := context.Background()
	u := testutil.LoadUniverse(t)

	cy, err := u.Users.FindByID(ctx, testutil.CyID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := cy.Remove(ctx); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if !cy.IsRemoved() {
		t.Error("expected the instance to be marked removed")
	}

	_, err = cy.Save(ctx, nil)
	testutil.AssertCode(t, err, types.CodeStaleInstance)
	testutil.AssertCode(t, cy.Update(ctx, types.Document{"$set": map[string]any{"age": 1}}, nil), types.CodeStaleInstance)
	testutil.AssertCode(t, cy.Reload(ctx), types.CodeStaleInstance)
	testutil.AssertCode(t, cy.Remove(ctx), types.CodeStaleInstance)

	_, err = u.Users.FindByID(ctx, testutil.CyID, nil)
	testutil.AssertCode(t, err, types.CodeNotFound)

	id, err := cy.Insert(ctx, nil)
	if err != nil || id != testutil.CyID {
		t.Fatalf("expected re-insert under the same id, got %s (%v)", id.Hex(), err)
	}
	if _, err := u.Users.FindByID(ctx, testutil.CyID, nil); err != nil {
		t.Errorf("expected the re-inserted document, got %v", err)
	}
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	u := testutil.LoadUniverse(t)

	a, _ := u.Users.FindByID(ctx, testutil.AdaID, nil)
	b, _ := u.Users.FindByID(ctx, testutil.AdaID, nil)
	if err := b.Update(ctx, types.Document{"$set": map[string]any{"age": 37}}, nil); err != nil {
		t.Fatal(err)
	}
	addr, _ := a.Embedded("address")

	if err := a.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if age, _ := a.Get("age"); age != 37.0 {
		t.Errorf("expected reloaded age 37, got %v", age)
	}
	if city, _ := addr.Get("city"); city != "London" {
		t.Errorf("expected the handle to survive reload, got %v", city)
	}
}

func TestSaveValidatesBeforeWriting(t *testing.T) {
	ctx := context.Background()
	u := testutil.LoadUniverse(t)

	coll, err := u.Pool.Collection(ctx, "users")
	if err != nil {
		t.Fatal(err)
	}
	id, err := coll.Insert(ctx, types.Document{"name": "Bad", "age": "not a number"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := u.Users.FindByID(ctx, id, &nanomodel.FindOptions{DirectObject: true})
	if err != nil {
		t.Fatal(err)
	}
	u.Counter.Reset()
	_, err = raw.Save(ctx, nil)
	testutil.AssertCode(t, err, types.CodeTypeMismatch)
	testutil.AssertCalls(t, u.Counter, "save", 0)

	// nil is always permitted, even on a required field
	bob, _ := u.Users.FindByID(ctx, testutil.BobID, nil)
	if err := bob.Set("name", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Save(ctx, nil); err != nil {
		t.Errorf("expected nil to pass validation, got %v", err)
	}

	dup, _ := u.Users.New(types.Document{"name": "Dup", "email": "ada@example.com"})
	_, err = dup.Save(ctx, nil)
	if !types.IsDuplicateKey(err) {
		t.Errorf("expected the storage error unchanged, got %v", err)
	}
	if !dup.IsNew() {
		t.Error("a failed insert leaves the instance transient")
	}
}

func TestHandles(t *testing.T) {
	ctx := context.Background()
	u := testutil.LoadUniverse(t)
	ada, _ := u.Users.FindByID(ctx, testutil.AdaID, nil)

	addr, err := ada.Embedded("address")
	if err != nil {
		t.Fatal(err)
	}
	if again, _ := ada.Embedded("address"); again != addr {
		t.Error("expected the handle to be reused")
	}
	if err := addr.Set("zip", 12345); err != nil {
		t.Fatal(err)
	}
	if zip, _ := ada.Get("address.zip"); zip != "12345" {
		t.Errorf("expected the write to reach the instance, got %#v", zip)
	}
	testutil.AssertCode(t, addr.Set("planet", "earth"), types.CodeSchemaDrift)

	tags, err := ada.Array("tags")
	if err != nil {
		t.Fatal(err)
	}
	if err := tags.Push("logic", 7); err != nil {
		t.Fatal(err)
	}
	if err := tags.Push("ok", map[string]any{"bad": true}); !types.IsTypeMismatch(err) {
		t.Errorf("expected a type mismatch, got %v", err)
	}
	if diff := cmp.Diff([]any{"admin", "math", "logic", "7"}, tags.Values()); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if err := tags.RemoveAt(0); err != nil {
		t.Fatal(err)
	}
	if v, _ := tags.At(0); v != "math" || tags.Len() != 3 {
		t.Errorf("unexpected tags after removal: %v", tags.Values())
	}

	_, err = ada.Embedded("tags")
	testutil.AssertCode(t, err, types.CodeTypeMismatch)
	_, err = ada.Array("nope")
	testutil.AssertCode(t, err, types.CodeSchemaDrift)

	if _, err := ada.Save(ctx, nil); err != nil {
		t.Fatal(err)
	}
	stored, _ := u.Users.FindOneRaw(ctx, types.Document{types.IDField: testutil.AdaID}, nil)
	if diff := cmp.Diff(map[string]any{"city": "London", "zip": "12345"}, stored["address"]); diff != "" {
		t.Errorf("stored address mismatch (-want +got):\n%s", diff)
	}

	// a missing sub-document is created on first write
	cy, _ := u.Users.FindByID(ctx, testutil.CyID, nil)
	cyAddr, _ := cy.Embedded("address")
	if cyAddr.Exists() {
		t.Fatal("Cy has no address yet")
	}
	if err := cyAddr.Set("city", "Oslo"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(types.Document{"city": "Oslo"}, cyAddr.Document()); diff != "" {
		t.Errorf("address mismatch (-want +got):\n%s", diff)
	}

	// arrays of documents hand out element handles
	intro, _ := u.Posts.FindByID(ctx, testutil.IntroID, nil)
	comments, _ := intro.Array("comments")
	first, err := comments.Embedded(0)
	if err != nil {
		t.Fatal(err)
	}
	if text, _ := first.Get("text"); text != "nice" {
		t.Errorf("expected the first comment, got %v", text)
	}
	if err := comments.Push(map[string]any{"author": testutil.AdaID.Hex(), "text": "thanks"}); err != nil {
		t.Fatal(err)
	}
	if author, _ := intro.Get("comments.1.author"); author != testutil.AdaID {
		t.Errorf("expected the pushed author coerced to an id, got %#v", author)
	}
}

func TestArraySearch(t *testing.T) {
	ctx := context.Background()
	u := testutil.LoadUniverse(t)
	intro, err := u.Posts.FindByID(ctx, testutil.IntroID, nil)
	if err != nil {
		t.Fatal(err)
	}
	comments, err := intro.Array("comments")
	if err != nil {
		t.Fatal(err)
	}
	err = comments.Push(
		map[string]any{"author": testutil.AdaID, "text": "thanks"},
		map[string]any{"author": testutil.AdaID, "text": "+1"},
		map[string]any{"author": testutil.BobID, "text": "ok"},
		map[string]any{"author": testutil.AdaID, "text": "bye"},
	)
	if err != nil {
		t.Fatal(err)
	}

	byAda := types.Document{"author": testutil.AdaID}
	found, err := comments.Find(byAda)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 3 {
		t.Errorf("expected 3 comments by Ada, got %v", found)
	}

	first, ok, err := comments.FindOne(types.Document{"text": map[string]any{"$in": []any{"ok", "bye"}}})
	if err != nil || !ok {
		t.Fatalf("expected a match, got %v (%v)", first, err)
	}
	if diff := cmp.Diff(map[string]any{"author": testutil.BobID, "text": "ok"}, first); diff != "" {
		t.Errorf("first match mismatch (-want +got):\n%s", diff)
	}
	if _, ok, _ := comments.FindOne(types.Document{"text": "missing"}); ok {
		t.Error("expected no match")
	}

	if n, _ := comments.IndexOf(types.Document{"author": map[string]any{"$ne": testutil.BobID}}); n != 1 {
		t.Errorf("expected index 1, got %d", n)
	}
	if n, _ := comments.IndexOf(types.Document{"text": "missing"}); n != -1 {
		t.Errorf("expected -1, got %d", n)
	}

	// two adjacent matches at 1 and 2 and one more at 4
	removed, err := comments.Remove(byAda)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}
	var texts []any
	for _, c := range comments.Values() {
		texts = append(texts, c.(map[string]any)["text"])
	}
	if diff := cmp.Diff([]any{"nice", "ok"}, texts); diff != "" {
		t.Errorf("remaining comments mismatch (-want +got):\n%s", diff)
	}

	_, err = comments.Find(types.Document{"text": nil})
	testutil.AssertCode(t, err, types.CodeBadQuery)
	_, err = comments.Remove(types.Document{"text": nil})
	testutil.AssertCode(t, err, types.CodeBadQuery)
	if comments.Len() != 2 {
		t.Errorf("a bad query must not change the array, got %v", comments.Values())
	}
}
