// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package device

import "testing"

func TestCatalogParses(t *testing.T) {
	if len(catalog) == 0 {
		t.Fatal("embedded catalog parsed to zero devices")
	}
	for _, d := range catalog {
		if d.Name == "" {
			t.Error("device with empty name")
		}
		if d.Signature == 0 {
			t.Errorf("%s: zero signature", d.Name)
		}
		if d.AppSize == 0 {
			t.Errorf("%s: zero app size", d.Name)
		}
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	d, ok := Lookup("ATXMEGA256A3")
	if !ok {
		t.Fatal("Lookup(ATXMEGA256A3) not found")
	}
	if d.Name != "atxmega256a3" {
		t.Errorf("Name = %q, want atxmega256a3", d.Name)
	}
	if d.AppSize != 262144 {
		t.Errorf("AppSize = %d, want 262144", d.AppSize)
	}
}

func TestLookupBySignature(t *testing.T) {
	want, _ := Lookup("atxmega256a3")
	d, ok := LookupBySignature(want.Signature)
	if !ok || d.Name != "atxmega256a3" {
		t.Fatalf("LookupBySignature(%#x) = %+v, %v", want.Signature, d, ok)
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, ok := Lookup("not-a-real-part"); ok {
		t.Error("Lookup found a device for a bogus name")
	}
	if _, ok := LookupBySignature(0); ok {
		t.Error("LookupBySignature found a device for signature 0")
	}
}
