package gateway

import "sort"

// Rooms are an addressing convention, never created or destroyed.

// PersonalRoom is the room every connection of a user auto-joins.
func PersonalRoom(userID string) string { return "user_" + userID }

// ConversationRoom is the canonical room for a pair of participants:
// order-independent, ConversationRoom(a,b) == ConversationRoom(b,a).
func ConversationRoom(a, b string) string {
	p := []string{a, b}
	sort.Strings(p)
	return "conv_" + p[0] + "_" + p[1]
}
