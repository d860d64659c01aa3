// Package ids derives stable identifiers for records the engines create, so
// that replaying the same input yields the same ids.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

var (
	invoiceNS = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://haulledger.dev/ns/invoice"))
	taskNS    = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://haulledger.dev/ns/task"))
)

func name(parts ...string) []byte {
	return []byte(strings.Join(parts, "|"))
}

// Invoice is the id of the auto-created invoice for a load.
func Invoice(tenantID, loadID string) string {
	return uuid.NewSHA1(invoiceNS, name(tenantID, loadID)).String()
}

// Task is the id of the task an action materialises for an entity.
func Task(tenantID, ruleID, actionKey, entityType, entityID string) string {
	return uuid.NewSHA1(taskNS, name(tenantID, ruleID, actionKey, entityType, entityID)).String()
}
