// Пакет rbac — определение роли пользователя симулятора.
// Приоритет источников: профиль в БД, группы IdP, роли realm,
// при отсутствии совпадений — agent.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// FallbackRole — роль по умолчанию, если ни один источник её не определил.
const FallbackRole = RoleAgent

// roleWeight — вес роли для сравнения.
var roleWeight = map[string]int{
	RoleAgent: 1,
	RoleAdmin: 2,
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	if roleWeight[a] >= roleWeight[b] {
		return a
	}
	return b
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст — возвращает пустую строку.
func HighestRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	highest := roles[0]
	for _, r := range roles[1:] {
		highest = maxRole(highest, r)
	}
	return highest
}

// MapGroupsToRole определяет роль по группам IdP.
// Возвращает максимальную роль из всех совпадений или пустую строку.
func MapGroupsToRole(groups []string, adminGroups, agentGroups []string) string {
	adminSet := toSet(adminGroups)
	agentSet := toSet(agentGroups)

	var roles []string
	for _, g := range groups {
		// Keycloak отдаёт группы с ведущим "/" при включённом full path
		if len(g) > 0 && g[0] == '/' {
			g = g[1:]
		}
		if adminSet[g] {
			roles = append(roles, RoleAdmin)
		}
		if agentSet[g] {
			roles = append(roles, RoleAgent)
		}
	}

	return HighestRole(roles)
}

// MapRealmRoles выбирает максимальную из известных ролей realm.
func MapRealmRoles(realmRoles []string) string {
	var roles []string
	for _, r := range realmRoles {
		if IsValidRole(r) {
			roles = append(roles, r)
		}
	}
	return HighestRole(roles)
}

// ResolveRole вычисляет итоговую роль по приоритету источников.
func ResolveRole(profileRole string, groups, realmRoles, adminGroups, agentGroups []string) string {
	if IsValidRole(profileRole) {
		return profileRole
	}
	if role := MapGroupsToRole(groups, adminGroups, agentGroups); role != "" {
		return role
	}
	if role := MapRealmRoles(realmRoles); role != "" {
		return role
	}
	return FallbackRole
}

// HomePath — стартовая страница роли.
func HomePath(role string) string {
	if role == RoleAdmin {
		return "/admin"
	}
	return "/simulador"
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
