package domain

import "testing"

func TestRegistryRegisterIdempotent(t *testing.T) {
	r := NewRegistry()

	first := r.Register("conn1")
	first.Wallet = "wallet"
	second := r.Register("conn1")

	if first != second {
		t.Fatal("register replaced an existing session")
	}
	if second.Wallet != "wallet" {
		t.Fatalf("wallet = %q", second.Wallet)
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestRegistryLookupAndRemove(t *testing.T) {
	r := NewRegistry()
	r.Register("conn1")

	if _, ok := r.Lookup("conn1"); !ok {
		t.Fatal("registered session not found")
	}
	if _, ok := r.Lookup("conn2"); ok {
		t.Fatal("unknown session found")
	}

	r.Remove("conn1")
	if _, ok := r.Lookup("conn1"); ok {
		t.Fatal("removed session still present")
	}
	if r.Len() != 0 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestRegistryResetRolesKeepsWallets(t *testing.T) {
	r := NewRegistry()
	s := r.Register("conn1")
	s.Wallet = "wallet"
	s.Role = RolePlayer

	r.ResetRoles()

	got, _ := r.Lookup("conn1")
	if got.Role != RoleUnset {
		t.Fatalf("role = %s", got.Role)
	}
	if got.Wallet != "wallet" {
		t.Fatalf("wallet = %q", got.Wallet)
	}
}
