package rbac

import (
	"testing"
)

func TestHighestRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  string
	}{
		{name: "пустой набор", roles: nil, want: ""},
		{name: "один admin", roles: []string{RoleAdmin}, want: RoleAdmin},
		{name: "один agent", roles: []string{RoleAgent}, want: RoleAgent},
		{name: "admin + agent", roles: []string{RoleAdmin, RoleAgent}, want: RoleAdmin},
		{name: "agent + admin", roles: []string{RoleAgent, RoleAdmin}, want: RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HighestRole(tt.roles)
			if got != tt.want {
				t.Errorf("HighestRole(%v) = %q, хотели %q", tt.roles, got, tt.want)
			}
		})
	}
}

func TestMapGroupsToRole(t *testing.T) {
	adminGroups := []string{"dh-admins"}
	agentGroups := []string{"dh-agents"}

	tests := []struct {
		name   string
		groups []string
		want   string
	}{
		{name: "группа admins -> admin", groups: []string{"dh-admins"}, want: RoleAdmin},
		{name: "группа agents -> agent", groups: []string{"dh-agents"}, want: RoleAgent},
		{name: "обе группы -> admin (max)", groups: []string{"dh-agents", "dh-admins"}, want: RoleAdmin},
		{name: "полный путь группы", groups: []string{"/dh-admins"}, want: RoleAdmin},
		{name: "нет совпадений -> пустая строка", groups: []string{"other"}, want: ""},
		{name: "пустой список групп -> пустая строка", groups: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapGroupsToRole(tt.groups, adminGroups, agentGroups)
			if got != tt.want {
				t.Errorf("MapGroupsToRole(%v, ...) = %q, хотели %q", tt.groups, got, tt.want)
			}
		})
	}
}

func TestResolveRole(t *testing.T) {
	adminGroups := []string{"dh-admins"}
	agentGroups := []string{"dh-agents"}

	tests := []struct {
		name        string
		profileRole string
		groups      []string
		realmRoles  []string
		want        string
	}{
		{
			name:        "профиль имеет приоритет над группами",
			profileRole: RoleAgent,
			groups:      []string{"dh-admins"},
			want:        RoleAgent,
		},
		{
			name:        "профиль admin",
			profileRole: RoleAdmin,
			want:        RoleAdmin,
		},
		{
			name:       "нет профиля, группа admins",
			groups:     []string{"dh-admins"},
			realmRoles: []string{RoleAgent},
			want:       RoleAdmin,
		},
		{
			name:       "нет профиля и групп, роль realm",
			realmRoles: []string{"offline_access", RoleAdmin},
			want:       RoleAdmin,
		},
		{
			name:        "неизвестная роль в профиле игнорируется",
			profileRole: "superuser",
			groups:      []string{"dh-agents"},
			want:        RoleAgent,
		},
		{
			name:       "ничего не найдено -> agent",
			groups:     []string{"other"},
			realmRoles: []string{"offline_access"},
			want:       FallbackRole,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveRole(tt.profileRole, tt.groups, tt.realmRoles, adminGroups, agentGroups)
			if got != tt.want {
				t.Errorf("ResolveRole() = %q, хотели %q", got, tt.want)
			}
		})
	}
}

func TestHomePath(t *testing.T) {
	if got := HomePath(RoleAdmin); got != "/admin" {
		t.Errorf("HomePath(admin) = %q, хотели /admin", got)
	}
	if got := HomePath(RoleAgent); got != "/simulador" {
		t.Errorf("HomePath(agent) = %q, хотели /simulador", got)
	}
}

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{RoleAdmin, true},
		{RoleAgent, true},
		{"readonly", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := IsValidRole(tt.role); got != tt.want {
				t.Errorf("IsValidRole(%q) = %v, хотели %v", tt.role, got, tt.want)
			}
		})
	}
}
