package enums

import "testing"

func TestParseRole(t *testing.T) {
	for _, value := range []string{"admin", "hr", "manager", "finance", "instructor", "employee"} {
		role, err := ParseRole(value)
		if err != nil {
			t.Fatalf("ParseRole(%q) returned error: %v", value, err)
		}
		if role.String() != value {
			t.Fatalf("expected %q, got %q", value, role)
		}
		if !role.IsValid() {
			t.Fatalf("parsed role %q should be valid", role)
		}
	}
}

func TestParseRoleRejectsUnknown(t *testing.T) {
	for _, value := range []string{"", "Admin", "superuser", " employee"} {
		if _, err := ParseRole(value); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
}

func TestDefaultRoleIsLeastPrivileged(t *testing.T) {
	if DefaultRole != RoleEmployee {
		t.Fatalf("expected default role employee, got %s", DefaultRole)
	}
	if !DefaultRole.IsValid() {
		t.Fatal("default role must be valid")
	}
}

func TestRoleIsValid(t *testing.T) {
	if Role("wizard").IsValid() {
		t.Fatal("unknown role should be invalid")
	}
}
