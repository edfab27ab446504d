package fanout

// Recipients returns the chat participants to notify for a message from
// senderID: every distinct, non-empty participant except the sender, in
// participant order.
func Recipients(participants []string, senderID string) []string {
	seen := map[string]struct{}{senderID: {}}
	var out []string
	for _, id := range participants {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// AddedRequesters returns the ids present in after but not in before, in
// the order they appear in after and without duplicates. Only membership
// matters: reordering adds nothing, and an id added while another is
// removed is still reported.
func AddedRequesters(before, after []string) []string {
	seen := make(map[string]struct{}, len(before)+len(after))
	for _, id := range before {
		seen[id] = struct{}{}
	}
	var added []string
	for _, id := range after {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		added = append(added, id)
	}
	return added
}
